//go:build !unix

package jobrunner

import "os/exec"

// killGroupOnCancel keeps the default Cancel, which kills the direct child.
func killGroupOnCancel(*exec.Cmd) {}
