package history

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultRetention keeps archived sessions for a week.
	DefaultRetention = 7 * 24 * time.Hour
	// DefaultPruneSchedule runs pruning daily at 03:00.
	DefaultPruneSchedule = "0 3 * * *"
)

// Cleanup prunes archived sessions on a cron schedule.
type Cleanup struct {
	store     *Store
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	entryID   cron.EntryID
	logger    zerolog.Logger
}

// CleanupConfig holds cleanup configuration.
type CleanupConfig struct {
	Store     *Store
	Retention time.Duration
	Schedule  string
	Logger    zerolog.Logger
}

// NewCleanup creates a cleanup scheduler for the store.
func NewCleanup(cfg CleanupConfig) (*Cleanup, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultPruneSchedule
	}

	return &Cleanup{
		store:     cfg.Store,
		retention: cfg.Retention,
		schedule:  cfg.Schedule,
		cron:      cron.New(),
		logger:    cfg.Logger,
	}, nil
}

// Start schedules pruning. Invalid schedules fail here, not at run time.
func (c *Cleanup) Start() error {
	entryID, err := c.cron.AddFunc(c.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if _, err := c.store.PruneArchived(ctx, c.retention); err != nil {
			c.logger.Error().Err(err).Msg("Scheduled prune failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", c.schedule, err)
	}

	c.entryID = entryID
	c.cron.Start()

	c.logger.Info().
		Str("schedule", c.schedule).
		Dur("retention", c.retention).
		Msg("History cleanup scheduled")

	return nil
}

// Stop cancels the schedule and waits for a running prune to finish.
func (c *Cleanup) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
	c.logger.Info().Msg("History cleanup stopped")
}
