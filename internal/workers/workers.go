package workers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"keyhub/internal/engine/licensing"
	"keyhub/internal/platform/audit"
	"keyhub/internal/platform/metrics"
)

// Job is a periodic maintenance task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Start runs every job once immediately and then on its interval until ctx
// is cancelled. The returned WaitGroup finishes when all jobs have stopped.
func Start(ctx context.Context, jobs ...Job) *sync.WaitGroup {
	var wg sync.WaitGroup
	for _, job := range jobs {
		if job.Interval <= 0 {
			log.Warn().Str("job", job.Name).Msg("job disabled, no interval")
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			loop(ctx, job)
		}(job)
	}
	return &wg
}

func loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		runOnce(ctx, job)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("job failed")
		return
	}
	log.Debug().Str("job", job.Name).Dur("took", time.Since(start)).Msg("job finished")
}

// PruneAuditLogs drops audit entries older than retention. A zero retention
// keeps everything.
func PruneAuditLogs(auditLogger *audit.Logger, retention, interval time.Duration) Job {
	return Job{
		Name:     "audit_prune",
		Interval: interval,
		Run: func(ctx context.Context) error {
			if retention <= 0 {
				return nil
			}
			n, err := auditLogger.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info().Int64("removed", n).Msg("pruned audit log")
			}
			return nil
		},
	}
}

// RefreshKeyGauges publishes the key store counts as gauges.
func RefreshKeyGauges(keystore *licensing.Keystore, m *metrics.Metrics, interval time.Duration) Job {
	return Job{
		Name:     "key_gauges",
		Interval: interval,
		Run: func(ctx context.Context) error {
			stats, err := keystore.Stats(ctx)
			if err != nil {
				return err
			}
			m.Keys.WithLabelValues("total").Set(float64(stats.Total))
			m.Keys.WithLabelValues("active").Set(float64(stats.Active))
			m.Keys.WithLabelValues("expired").Set(float64(stats.Expired))
			m.Keys.WithLabelValues("used").Set(float64(stats.Used))
			m.Keys.WithLabelValues("blacklisted_users").Set(float64(stats.Blacklisted))
			return nil
		},
	}
}
