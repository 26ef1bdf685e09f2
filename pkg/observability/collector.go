package observability

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/robfig/cron/v3"
)

// DefaultStatsSchedule is the cron spec of the pool statistics collector
const DefaultStatsSchedule = "@every 15s"

// StatsSource reports connection pool statistics, typically a *sql.DB
type StatsSource interface {
	Stats() sql.DBStats
}

// StatsCollector copies pool statistics into the metrics on a cron schedule
type StatsCollector struct {
	cron    *cron.Cron
	source  StatsSource
	metrics *Metrics
	logger  *Logger
}

// NewStatsCollector schedules collection; it does not run until Start
func NewStatsCollector(schedule string, source StatsSource, metrics *Metrics, logger *Logger) (*StatsCollector, error) {
	if schedule == "" {
		schedule = DefaultStatsSchedule
	}
	if logger == nil {
		logger = NewLogger(InfoLevel, nil)
	}
	c := &StatsCollector{
		cron:    cron.New(),
		source:  source,
		metrics: metrics,
		logger:  logger,
	}
	if _, err := c.cron.AddFunc(schedule, c.Collect); err != nil {
		return nil, fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
	}
	return c, nil
}

// Collect takes one sample
func (c *StatsCollector) Collect() {
	defer RecoverPanic(c.logger, "stats collector")
	stats := c.source.Stats()
	c.metrics.UpdateDBStats(stats)
	c.logger.WithFields(map[string]interface{}{
		"in_use":     stats.InUse,
		"idle":       stats.Idle,
		"wait_count": stats.WaitCount,
	}).Debug("collected pool statistics")
}

// Start runs the schedule in the background
func (c *StatsCollector) Start() {
	c.cron.Start()
}

// Stop halts the schedule and waits for a running collection to finish
func (c *StatsCollector) Stop(ctx context.Context) error {
	stopped := c.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
