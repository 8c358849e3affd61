package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/eventbus"
)

// ReloadService turns settled config file changes into ConfigReloaded events.
// A file that fails to load or validate is logged and the running
// configuration stays in place.
type ReloadService struct {
	watcher *config.Watcher
	bus     *eventbus.Bus
}

// NewReloadService creates a new ReloadService.
func NewReloadService(path string, bus *eventbus.Bus) *ReloadService {
	return &ReloadService{
		watcher: config.NewWatcher(path, config.DefaultQuietPeriod),
		bus:     bus,
	}
}

// Run watches until ctx is cancelled. A watch that cannot be established
// disables hot reload but is not fatal.
func (s *ReloadService) Run(ctx context.Context) {
	log.Info().Str("path", s.watcher.Path()).Msg("Watching configuration for changes")
	if err := s.watcher.Run(ctx, s.reload); err != nil {
		log.Error().Err(err).Msg("Config watcher failed, hot reload disabled")
	}
}

func (s *ReloadService) reload() {
	cfg, err := config.Load(s.watcher.Path())
	if err != nil {
		log.Warn().Err(err).Str("path", s.watcher.Path()).Msg("Config reload failed, keeping current configuration")
		return
	}
	log.Info().Int("pages", len(cfg.Pages)).Msg("Configuration file changed")
	s.bus.Publish(eventbus.ConfigReloaded{Config: cfg})
}
