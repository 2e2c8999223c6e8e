// purge.go implements the SecretPurger background job, which periodically
// deletes dead secrets: expired secrets past their retention grace period and
// consumed one-time secrets past theirs. Dead secrets cannot be disclosed and
// carry no value for their owner, but their content is still sensitive, so
// they are removed from the database rather than kept forever. The job is a
// no-op when secrets.retention.enabled is false, so it is always safe to
// start regardless of deployment environment.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/secretdrop/secretdrop/internal/config"
	"github.com/secretdrop/secretdrop/internal/db/repositories"
	"github.com/secretdrop/secretdrop/internal/telemetry"
)

// SecretPurger periodically removes dead secrets past their retention window.
type SecretPurger struct {
	secretRepo *repositories.SecretRepository
	cfg        *config.RetentionConfig
	interval   time.Duration
	stopChan   chan struct{}
}

// NewSecretPurger creates a new SecretPurger. The purge interval defaults to
// one hour when the configuration leaves it unset.
func NewSecretPurger(secretRepo *repositories.SecretRepository, cfg *config.RetentionConfig) *SecretPurger {
	interval := cfg.PurgeInterval
	if interval <= 0 {
		interval = time.Hour
	}
	return &SecretPurger{
		secretRepo: secretRepo,
		cfg:        cfg,
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the background purge loop. It runs an initial purge
// immediately, then repeats on the configured interval. The loop exits when
// ctx is cancelled or Stop() is called.
func (p *SecretPurger) Start(ctx context.Context) {
	if !p.cfg.Enabled {
		slog.Info("secret purger disabled (secrets.retention.enabled=false)")
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Info("secret purger started",
		"interval", p.interval,
		"expired_after", p.cfg.ExpiredAfter,
		"viewed_after", p.cfg.ViewedAfter)

	p.runPurge(ctx)

	for {
		select {
		case <-ticker.C:
			p.runPurge(ctx)
		case <-p.stopChan:
			slog.Info("secret purger stopped")
			return
		case <-ctx.Done():
			slog.Info("secret purger context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (p *SecretPurger) Stop() {
	close(p.stopChan)
}

// runPurge deletes secrets past their retention cutoffs.
func (p *SecretPurger) runPurge(ctx context.Context) {
	now := time.Now()
	expiredBefore := now.Add(-p.cfg.ExpiredAfter)
	viewedBefore := now.Add(-p.cfg.ViewedAfter)

	purged, err := p.secretRepo.PurgeDeadSecrets(ctx, expiredBefore, viewedBefore)
	if err != nil {
		slog.Error("secret purger failed", "error", err)
		return
	}
	if purged == 0 {
		return
	}

	telemetry.SecretsPurgedTotal.Add(float64(purged))
	slog.Info("purged dead secrets", "count", purged)
}
