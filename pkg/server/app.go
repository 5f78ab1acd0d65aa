package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"SignalDesk/pkg/config"
	xhttp "SignalDesk/pkg/http"
	pkgkafka "SignalDesk/pkg/kafka"
	applogger "SignalDesk/pkg/logger"
)

// Background is a component started with the app and stopped on shutdown.
type Background interface {
	Start(ctx context.Context)
	Stop()
}

// Closer releases a resource on shutdown.
type Closer interface {
	Close()
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	background []Background
	closers    []Closer
	httpServer *xhttp.Server
}

// New creates a new App instance. consumer and kh are optional.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:      cfg,
		log:      l.Component("app"),
		handler:  handler,
		consumer: consumer,
		kh:       kh,
	}
}

// AddBackground registers components that run for the app's lifetime.
func (a *App) AddBackground(bs ...Background) { a.background = append(a.background, bs...) }

// AddCloser registers resources released after the HTTP server stops, in
// reverse order.
func (a *App) AddCloser(cs ...Closer) { a.closers = append(a.closers, cs...) }

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithAllowOrigins(a.cfg.Server.AllowOrigins),
		xhttp.WithLogger(a.log),
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(a.cfg.Metrics.Path))
	}
	a.httpServer = xhttp.NewServer(a.handler, opts...)

	for _, b := range a.background {
		b.Start(bgCtx)
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("signaldesk started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("provider", a.cfg.Market.Provider),
		applogger.String("export", a.cfg.Export.Backend),
	)

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first, then background work, then infrastructure.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	for i := len(a.background) - 1; i >= 0; i-- {
		a.background[i].Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}

	a.log.Info("shutdown complete")
	return nil
}
