package jobrunner

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"

	drepo "SignalDesk/internal/domain/repository"
)

// maxCapture bounds how much of each output stream is kept; only the tail matters.
const maxCapture = 64 << 10

// waitDelay bounds how long Wait keeps draining output after the job is
// killed, in case a descendant outside the process group still holds the pipes.
const waitDelay = 2 * time.Second

// Runner launches an external command as a detached job.
type Runner struct {
	command []string
	workDir string
	timeout time.Duration
	env     []string
}

// Option configures Runner.
type Option func(*Runner)

// WithWorkDir sets the job working directory.
func WithWorkDir(dir string) Option {
	return func(r *Runner) { r.workDir = dir }
}

// WithTimeout kills the job after d. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithEnv appends environment entries ("KEY=value") to the inherited environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) { r.env = append(r.env, env...) }
}

// New creates a runner for command (argv form).
func New(command []string, opts ...Option) *Runner {
	r := &Runner{command: command}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the job. The job is not bound to ctx: it keeps running after
// the caller returns. Exactly one JobResult is sent on the returned channel.
func (r *Runner) Start(_ context.Context) (<-chan drepo.JobResult, error) {
	if len(r.command) == 0 {
		return nil, errors.New("empty job command")
	}

	jobCtx, cancel := context.Background(), context.CancelFunc(func() {})
	if r.timeout > 0 {
		jobCtx, cancel = context.WithTimeout(context.Background(), r.timeout)
	}

	cmd := exec.CommandContext(jobCtx, r.command[0], r.command[1:]...)
	cmd.Dir = r.workDir
	if len(r.env) > 0 {
		cmd.Env = append(cmd.Environ(), r.env...)
	}
	stdout, stderr := &tailBuffer{max: maxCapture}, &tailBuffer{max: maxCapture}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	killGroupOnCancel(cmd)

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}

	done := make(chan drepo.JobResult, 1)
	go func() {
		defer cancel()
		defer close(done)

		err := cmd.Wait()
		res := drepo.JobResult{Stdout: stdout.String(), Stderr: stderr.String()}
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			res.ExitCode = 0
		case errors.As(err, &exitErr):
			res.ExitCode = exitErr.ExitCode()
			if res.ExitCode < 0 {
				// killed by signal (timeout)
				res.ExitCode = 1
				res.Err = err
			}
		default:
			res.ExitCode = 1
			res.Err = err
		}
		if jobCtx.Err() == context.DeadlineExceeded {
			res.Err = errors.Join(res.Err, jobCtx.Err())
		}
		done <- res
	}()
	return done, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

var _ drepo.JobRunner = (*Runner)(nil)
