package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	mid "TriggerDesk/internal/middleware"
	"TriggerDesk/internal/usecase"
	"TriggerDesk/pkg/config"
	xhttp "TriggerDesk/pkg/http"
	pkgkafka "TriggerDesk/pkg/kafka"
	applogger "TriggerDesk/pkg/logger"
)

// Components groups everything the App starts and stops. Optional parts are nil.
type Components struct {
	Engines   *usecase.EngineSet
	Pipeline  *mid.TickPipeline
	Collector *usecase.TickCollector
	Consumer  *pkgkafka.Consumer
	Ticks     *usecase.KafkaTicksHandler
	Replay    *usecase.ReplayService
	HTTP      *xhttp.Server
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg  *config.Config
	log  *applogger.Logger
	c    Components
	wg   sync.WaitGroup
	stop context.CancelFunc
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{cfg: cfg, log: log.With("app"), c: c}
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Start launches the engines, the tick source, the cadence task and the HTTP server.
func (a *App) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	a.stop = cancel

	if a.c.Engines != nil {
		a.goRun(func() { a.c.Engines.Run(ctx) })
		a.log.Info("live engines started", applogger.Strings("symbols", a.cfg.Market.Symbols))
	}

	switch {
	case a.c.Collector != nil:
		if err := a.c.Collector.Start(ctx); err != nil {
			cancel()
			return err
		}
		a.log.Info("tick collector started", applogger.String("source", "polygon"))
	case a.c.Consumer != nil && a.c.Ticks != nil:
		a.c.Pipeline.Start(ctx)
		a.c.Consumer.RegisterHandler(a.c.Ticks)
		if err := a.c.Consumer.Start(); err != nil {
			cancel()
			return err
		}
		a.log.Info("kafka tick consumer started", applogger.String("topic", a.c.Ticks.Topic()))
	default:
		a.log.Warn("no tick source configured")
	}

	if a.c.Replay != nil && a.cfg.Replay.Enabled {
		a.goRun(func() { a.c.Replay.RunCadence(ctx, a.cfg.Replay.CadenceInterval) })
		a.log.Info("replay cadence started",
			applogger.String("symbol", a.cfg.CadenceSymbol()),
			applogger.Duration("interval", a.cfg.Replay.CadenceInterval))
	}

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			cancel()
			return err
		}
	}
	return nil
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	if err := a.Start(context.Background()); err != nil {
		a.log.Error("start failed", applogger.Error(err))
		return err
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	a.log.Info("shutdown signal received", applogger.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(ctx)
}

// Shutdown stops intake first, then the HTTP server, then waits for background loops.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	if a.c.Collector != nil {
		if err := a.c.Collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
		if a.c.Pipeline != nil {
			a.c.Pipeline.Stop()
		}
	}
	if a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.stop != nil {
		a.stop()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("timed out waiting for background loops", applogger.Error(ctx.Err()))
	}
	a.log.Info("shutdown complete")
	return nil
}
