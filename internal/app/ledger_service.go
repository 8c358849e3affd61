package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/ledger"
)

// LedgerService enforces the action ledger retention policy.
type LedgerService struct {
	retention time.Duration
	interval  time.Duration
	ledger    *ledger.Ledger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(cfg config.DatabaseConfig, l *ledger.Ledger) *LedgerService {
	return &LedgerService{
		retention: cfg.RetentionPeriod.Duration(),
		interval:  cfg.CleanupInterval.Duration(),
		ledger:    l,
	}
}

// Run prunes once at startup, then on every interval until ctx is cancelled.
func (s *LedgerService) Run(ctx context.Context) {
	s.cleanup()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *LedgerService) cleanup() {
	deleted, err := s.ledger.DeleteOlderThan(s.retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", s.retention).Msg("Cleaned up old ledger entries")
	}
}
