// Package appcore wires the task orchestration and event notification core
// of a UI application. A host's composition root constructs exactly one
// [App] per application lifetime and hands its orchestrator and bus to
// consumers through whatever injection mechanism it provides.
//
// The package-level default instance is a convenience facade only; nothing
// in the task or event packages requires an ambient singleton.
package appcore

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/uiforge/appcore/config"
	"github.com/uiforge/appcore/event"
	"github.com/uiforge/appcore/logging"
	"github.com/uiforge/appcore/task"
)

// App owns one task orchestrator and one event bus, sharing a logger.
type App struct {
	Tasks  *task.Orchestrator
	Events *event.Bus

	logger *logging.Logger
	cfg    *config.Config

	closeOnce sync.Once
	closeErr  error
}

// New builds an App from cfg. A nil cfg uses defaults.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}

	var logger *logging.Logger
	if cfg.Logging.Path != "" {
		var err error
		logger, err = logging.Open(cfg.Logging.Path, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
	} else {
		logger = logging.New(os.Stderr, cfg.Logging.Level)
	}

	app := &App{
		Tasks: task.New(
			task.WithLogger(logger.WithComponent("tasks")),
			task.WithMaxConcurrent(cfg.Tasks.MaxConcurrent),
		),
		Events: event.New(
			event.WithLogger(logger.WithComponent("events")),
			event.WithWarnUnhandled(cfg.Events.WarnUnhandled),
		),
		logger: logger,
		cfg:    cfg,
	}

	logger.Info("appcore initialized",
		"max_concurrent", cfg.Tasks.MaxConcurrent,
		"warn_unhandled", cfg.Events.WarnUnhandled)
	return app, nil
}

// Logger returns the app's root logger for host-side diagnostics.
func (a *App) Logger() *logging.Logger {
	return a.logger
}

// Close cancels all outstanding tasks, waits up to the configured shutdown
// grace for them to observe cancellation, then tears down the event bus and
// the logger. Tasks still running when the grace expires keep running, but
// anything they log after the logger closes is lost. Safe to call more than
// once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.Tasks.CancelAll()

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Tasks.ShutdownGrace())
		defer cancel()
		if err := a.Tasks.WaitContext(ctx); err != nil {
			a.logger.Warn("tasks still outstanding at shutdown",
				"active_count", a.Tasks.ActiveCount())
		}

		busErr := a.Events.Close()
		a.logger.Info("appcore closed")
		logErr := a.logger.Close()

		if busErr != nil {
			a.closeErr = busErr
		} else {
			a.closeErr = logErr
		}
	})
	return a.closeErr
}

var (
	defaultMu  sync.RWMutex
	defaultApp *App
)

// Default returns the process-wide App installed by SetDefault, or nil if
// none has been installed.
func Default() *App {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultApp
}

// SetDefault installs app as the process-wide default. Intended to be
// called once by the composition root; passing nil clears the default.
func SetDefault(app *App) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultApp = app
}
