package jobrunner

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
}

func TestRunnerSuccess(t *testing.T) {
	skipOnWindows(t)
	r := New([]string{"/bin/sh", "-c", "echo generated; echo warn 1>&2"})

	ch, err := r.Start(context.Background())
	require.NoError(t, err)

	res := <-ch
	assert.Equal(t, 0, res.ExitCode)
	assert.NoError(t, res.Err)
	assert.Equal(t, "generated\n", res.Stdout)
	assert.Equal(t, "warn\n", res.Stderr)

	_, open := <-ch
	assert.False(t, open)
}

func TestRunnerExitCode(t *testing.T) {
	skipOnWindows(t)
	r := New([]string{"/bin/sh", "-c", "echo 'insufficient data' 1>&2; exit 3"})

	ch, err := r.Start(context.Background())
	require.NoError(t, err)

	res := <-ch
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Stderr, "insufficient data")
}

func TestRunnerPassesEnv(t *testing.T) {
	skipOnWindows(t)
	r := New([]string{"/bin/sh", "-c", "echo $SIGNALDESK_DATA_DIR"}, WithEnv("SIGNALDESK_DATA_DIR=/srv/signals"))

	ch, err := r.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/srv/signals\n", (<-ch).Stdout)
}

func TestRunnerLaunchFailure(t *testing.T) {
	_, err := New([]string{"/definitely/not/here"}).Start(context.Background())
	assert.Error(t, err)

	_, err = New(nil).Start(context.Background())
	assert.Error(t, err)
}

func TestRunnerTimeout(t *testing.T) {
	skipOnWindows(t)
	r := New([]string{"/bin/sh", "-c", "sleep 5"}, WithTimeout(50*time.Millisecond))

	ch, err := r.Start(context.Background())
	require.NoError(t, err)

	select {
	case res := <-ch:
		assert.NotEqual(t, 0, res.ExitCode)
		assert.Error(t, res.Err)
	case <-time.After(3 * time.Second):
		t.Fatal("job was not killed")
	}
}

func TestRunnerTimeoutKillsDescendants(t *testing.T) {
	skipOnWindows(t)
	r := New([]string{"/bin/sh", "-c", "sleep 30 & sleep 30 & wait"}, WithTimeout(50*time.Millisecond))

	start := time.Now()
	ch, err := r.Start(context.Background())
	require.NoError(t, err)

	select {
	case res := <-ch:
		assert.NotEqual(t, 0, res.ExitCode)
		assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), waitDelay+time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("descendants kept the job alive")
	}
}

func TestTailBufferKeepsEnd(t *testing.T) {
	b := &tailBuffer{max: 8}
	_, _ = b.Write([]byte("0123456789"))
	_, _ = b.Write([]byte("ab"))
	assert.Equal(t, "456789ab", b.String())
	assert.True(t, strings.HasSuffix(b.String(), "ab"))
}
