package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/device"
)

// App is the main application container that manages all services and their lifecycle.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new App instance with all services initialized but not started.
// configPath is watched for changes; pass "" to disable hot reload.
func New(cfg *config.Config, configPath string, transport device.Transport) (*App, error) {
	services, err := NewServices(cfg, configPath, transport)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Start starts all services.
// The provided context is used for cancellation.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	// Event loop exit (Shutdown event) cancels the app context
	onStop := func() {
		log.Info().Msg("Event loop exited, initiating shutdown")
		a.cancel()
	}

	if err := a.services.Start(a.ctx, onStop); err != nil {
		return err
	}

	log.Info().
		Int("pages", len(a.cfg.Pages)).
		Str("home", a.cfg.Deckd.HomePage).
		Msg("deckd started")
	return nil
}

// Stop gracefully shuts down all services.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}

	if a.services != nil {
		return a.services.Stop()
	}

	return nil
}

// Wait blocks until the application context is cancelled.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// Services exposes the wired services, mainly for tests
func (a *App) Services() *Services {
	return a.services
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
