package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

const (
	refreshIdleMessage     = "idle"
	refreshRunningMessage  = "running signal generation..."
	refreshOKMessage       = "ok"
	refreshFailedMessage   = "failed to run signal generation"
	defaultRefreshMsgLimit = 240
)

// RefreshCoordinator runs at most one generation job at a time and keeps
// the state of the last one. It is the only writer of that state.
type RefreshCoordinator struct {
	mu       sync.Mutex
	state    models.RefreshRunState
	runner   drepo.JobRunner
	msgLimit int
	metrics  drepo.Metrics
	onDone   []func(context.Context, models.RefreshRunState)
	now      func() time.Time
	newID    func() string
	wg       sync.WaitGroup
	l        *applogger.Logger
}

func NewRefreshCoordinator(runner drepo.JobRunner, msgLimit int, metrics drepo.Metrics, l *applogger.Logger) *RefreshCoordinator {
	if msgLimit <= 0 {
		msgLimit = defaultRefreshMsgLimit
	}
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &RefreshCoordinator{
		state:    models.RefreshRunState{Message: refreshIdleMessage},
		runner:   runner,
		msgLimit: msgLimit,
		metrics:  metrics,
		now:      time.Now,
		newID:    uuid.NewString,
		l:        l.Component("refresh"),
	}
}

// OnComplete registers fn to run after every finished job.
func (c *RefreshCoordinator) OnComplete(fn func(context.Context, models.RefreshRunState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDone = append(c.onDone, fn)
}

// Start launches a job unless one is running. It returns started=false
// without side effects on conflict, and an error only when the job could
// not be launched.
func (c *RefreshCoordinator) Start(ctx context.Context) (bool, models.RefreshRunState, error) {
	c.mu.Lock()
	if c.state.Running {
		st := c.state.Clone()
		c.mu.Unlock()
		c.metrics.RecordRefresh("conflict")
		return false, st, nil
	}
	startedAt := util.FormatTimestamp(c.now())
	c.state = models.RefreshRunState{
		RunID:     c.newID(),
		Running:   true,
		StartedAt: &startedAt,
		Message:   refreshRunningMessage,
	}
	runID := c.state.RunID
	c.mu.Unlock()

	done, err := c.runner.Start(ctx)
	if err != nil {
		st := c.finish(runID, 1, fmt.Sprintf("failed to start refresh: %v", err))
		c.metrics.RecordRefresh("launch_failed")
		c.l.Error("refresh launch failed", applogger.String("run_id", runID), applogger.Error(err))
		return false, st, err
	}

	c.metrics.RecordRefresh("started")
	c.l.Info("refresh started", applogger.String("run_id", runID))

	c.mu.Lock()
	st := c.state.Clone()
	c.mu.Unlock()

	c.wg.Add(1)
	go c.await(runID, done)
	return true, st, nil
}

func (c *RefreshCoordinator) await(runID string, done <-chan drepo.JobResult) {
	defer c.wg.Done()

	res, ok := <-done
	if !ok {
		res = drepo.JobResult{ExitCode: 1}
	}

	msg := refreshOKMessage
	if res.ExitCode != 0 {
		msg = util.Truncate(util.LastNonEmptyLine(res.Stderr+"\n"+res.Stdout), c.msgLimit)
		if msg == "" {
			msg = refreshFailedMessage
		}
	}
	st := c.finish(runID, res.ExitCode, msg)

	if res.ExitCode == 0 {
		c.metrics.RecordRefresh("ok")
		c.l.Info("refresh finished", applogger.String("run_id", runID), applogger.Any("finished_at", st.FinishedAt))
	} else {
		c.metrics.RecordRefresh("failed")
		c.l.Warn("refresh failed",
			applogger.String("run_id", runID),
			applogger.Int("exit_code", res.ExitCode),
			applogger.String("message", msg),
		)
	}

	c.mu.Lock()
	hooks := append([]func(context.Context, models.RefreshRunState){}, c.onDone...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(context.Background(), st)
	}
}

func (c *RefreshCoordinator) finish(runID string, exitCode int, msg string) models.RefreshRunState {
	finishedAt := util.FormatTimestamp(c.now())
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.RunID != runID {
		return c.state.Clone()
	}
	c.state.Running = false
	c.state.FinishedAt = &finishedAt
	c.state.ExitCode = &exitCode
	c.state.Message = msg
	return c.state.Clone()
}

// Status returns a copy of the current state.
func (c *RefreshCoordinator) Status() models.RefreshRunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Wait blocks until the in-flight job, if any, has been recorded.
func (c *RefreshCoordinator) Wait() {
	c.wg.Wait()
}
