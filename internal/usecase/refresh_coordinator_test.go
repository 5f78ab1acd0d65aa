package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
)

type fakeJobRunner struct {
	mu      sync.Mutex
	started int
	done    chan drepo.JobResult
	err     error
}

func (f *fakeJobRunner) Start(context.Context) (<-chan drepo.JobResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.started++
	f.done = make(chan drepo.JobResult, 1)
	return f.done, nil
}

func (f *fakeJobRunner) finish(res drepo.JobResult) {
	f.mu.Lock()
	ch := f.done
	f.mu.Unlock()
	ch <- res
	close(ch)
}

type RefreshCoordinatorSuite struct {
	suite.Suite
	runner *fakeJobRunner
	coord  *RefreshCoordinator
}

func (s *RefreshCoordinatorSuite) SetupTest() {
	s.runner = &fakeJobRunner{}
	s.coord = NewRefreshCoordinator(s.runner, 20, nil, nil)
	n := 0
	s.coord.newID = func() string {
		n++
		return "run-" + string(rune('0'+n))
	}
}

func (s *RefreshCoordinatorSuite) TestInitialState() {
	st := s.coord.Status()
	s.False(st.Running)
	s.Equal("idle", st.Message)
	s.Nil(st.StartedAt)
	s.Nil(st.ExitCode)
}

func (s *RefreshCoordinatorSuite) TestSingleFlight() {
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []bool
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started, _, err := s.coord.Start(ctx)
			s.NoError(err)
			mu.Lock()
			results = append(results, started)
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.ElementsMatch([]bool{true, false}, results)
	s.Equal(1, s.runner.started)

	st := s.coord.Status()
	s.True(st.Running)
	s.Equal("running signal generation...", st.Message)

	s.runner.finish(drepo.JobResult{ExitCode: 0, Stdout: "done\n"})
	s.coord.Wait()

	st = s.coord.Status()
	s.False(st.Running)
	s.Equal("ok", st.Message)
	s.Require().NotNil(st.ExitCode)
	s.Equal(0, *st.ExitCode)
	s.NotNil(st.FinishedAt)
}

func (s *RefreshCoordinatorSuite) TestConflictLeavesStateUntouched() {
	ctx := context.Background()
	started, first, err := s.coord.Start(ctx)
	s.Require().NoError(err)
	s.True(started)

	started, second, err := s.coord.Start(ctx)
	s.Require().NoError(err)
	s.False(started)
	s.Equal(first, second)

	s.runner.finish(drepo.JobResult{})
	s.coord.Wait()
}

func (s *RefreshCoordinatorSuite) TestFailureMessageFromOutputTail() {
	var hooked models.RefreshRunState
	s.coord.OnComplete(func(_ context.Context, st models.RefreshRunState) { hooked = st })

	_, _, err := s.coord.Start(context.Background())
	s.Require().NoError(err)
	s.runner.finish(drepo.JobResult{
		ExitCode: 2,
		Stderr:   "warming up\ninsufficient data for ETHUSDT: 1h has 10 candles, need 220\n\n",
		Stdout:   "",
	})
	s.coord.Wait()

	st := s.coord.Status()
	s.False(st.Running)
	s.Equal(2, *st.ExitCode)
	s.Equal("insufficient data fo", st.Message)
	s.Len([]rune(st.Message), 20)
	s.Equal(st, hooked)
}

func (s *RefreshCoordinatorSuite) TestStdoutTailWinsOverStderr() {
	_, _, err := s.coord.Start(context.Background())
	s.Require().NoError(err)
	s.runner.finish(drepo.JobResult{ExitCode: 1, Stderr: "first\n", Stdout: "last line\n"})
	s.coord.Wait()
	s.Equal("last line", s.coord.Status().Message)
}

func (s *RefreshCoordinatorSuite) TestFailureWithoutOutput() {
	_, _, err := s.coord.Start(context.Background())
	s.Require().NoError(err)
	s.runner.finish(drepo.JobResult{ExitCode: 137})
	s.coord.Wait()
	s.Equal("failed to run signal generation", s.coord.Status().Message)
}

func (s *RefreshCoordinatorSuite) TestLaunchFailure() {
	s.runner.err = errors.New("exec: no such file")

	started, st, err := s.coord.Start(context.Background())
	s.Error(err)
	s.False(started)
	s.False(st.Running)
	s.Equal(1, *st.ExitCode)
	s.True(strings.HasPrefix(st.Message, "failed to start refresh: "))
	s.NotNil(st.FinishedAt)

	// the coordinator is idle again
	s.runner.err = nil
	started, _, err = s.coord.Start(context.Background())
	s.NoError(err)
	s.True(started)
	s.runner.finish(drepo.JobResult{})
	s.coord.Wait()
}

func (s *RefreshCoordinatorSuite) TestStatusIsACopy() {
	_, _, _ = s.coord.Start(context.Background())
	st := s.coord.Status()
	*st.StartedAt = "tampered"
	s.NotEqual("tampered", *s.coord.Status().StartedAt)
	s.runner.finish(drepo.JobResult{})
	s.coord.Wait()
}

func TestRefreshCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(RefreshCoordinatorSuite))
}
