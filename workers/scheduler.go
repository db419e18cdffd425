// workers/scheduler.go
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// CachePurger drops expired cache entries.
type CachePurger interface {
	PurgeExpired() int
}

// CoinFlusher credits coins collected since the last run.
type CoinFlusher interface {
	FlushCoins(ctx context.Context) (int, error)
}

type MaintenanceConfig struct {
	PurgeInterval     time.Duration
	ArchiveInterval   time.Duration
	CoinFlushInterval time.Duration
}

// StartMaintenance schedules the cache sweep and, when set, the coin flush
// and the ledger snapshot. Jobs run with ctx; the caller shuts the scheduler
// down.
func StartMaintenance(ctx context.Context, cache CachePurger, coins CoinFlusher, archiver *LedgerArchiver, cfg MaintenanceConfig) (gocron.Scheduler, error) {
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = time.Minute
	}
	if cfg.ArchiveInterval <= 0 {
		cfg.ArchiveInterval = 6 * time.Hour
	}
	if cfg.CoinFlushInterval <= 0 {
		cfg.CoinFlushInterval = 10 * time.Second
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	// Every minute: drop expired reward pages
	_, err = sched.NewJob(
		gocron.DurationJob(cfg.PurgeInterval),
		gocron.NewTask(func() {
			if n := cache.PurgeExpired(); n > 0 {
				log.Debug().Int("entries", n).Msg("🧹 purged expired reward pages")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule cache purge: %w", err)
	}

	if coins != nil {
		// Failed flushes keep their coins pending for the next tick
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.CoinFlushInterval),
			gocron.NewTask(func() {
				if _, err := coins.FlushCoins(ctx); err != nil {
					log.Warn().Err(err).Msg("⚠️ scheduled coin flush failed")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule coin flush: %w", err)
		}
	}

	if archiver != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.ArchiveInterval),
			gocron.NewTask(func() {
				if _, err := archiver.Archive(ctx); err != nil {
					log.Error().Err(err).Msg("❌ ledger archive failed")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule ledger archive: %w", err)
		}
	}

	sched.Start()
	return sched, nil
}
