package api

import (
	"context"
	"time"

	"github.com/birbparty/nestlink/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// TokenPurger removes expired credentials
type TokenPurger interface {
	PurgeExpired() (access, refresh int)
}

// Sweeper periodically purges expired tokens from the store
type Sweeper struct {
	store    TokenPurger
	interval time.Duration
}

// NewSweeper creates a sweeper. A non-positive interval defaults to 5m.
func NewSweeper(store TokenPurger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{store: store, interval: interval}
}

// Start runs sweep cycles until ctx is done
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	telemetry.WithFields(logrus.Fields{"interval": s.interval.String()}).Info("Token sweeper started")

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			telemetry.L().Info("Token sweeper stopped")
			return
		}
	}
}

// Sweep runs one purge cycle and returns the number of tokens removed
func (s *Sweeper) Sweep() int {
	access, refresh := s.store.PurgeExpired()
	sweptTokens.Add(float64(access + refresh))

	if access+refresh > 0 {
		telemetry.WithFields(logrus.Fields{
			"access":  access,
			"refresh": refresh,
		}).Info("Purged expired tokens")
	}
	return access + refresh
}
