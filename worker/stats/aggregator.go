// Package stats rolls request logs up into hourly aggregate tables.
package stats

import (
	"context"
	"time"

	"github.com/Laisky/zap"

	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/common/helper"
	"github.com/llmgateway/llmgateway/common/logger"
	"github.com/llmgateway/llmgateway/model"
)

// Start runs the aggregation cycle on its interval until the context is
// canceled, with a faster ticker that keeps only the in-progress hour fresh
// between full cycles. Upserts are idempotent, so overlapping runs from
// multiple replicas converge without coordination.
func Start(ctx context.Context) {
	ticker := time.NewTicker(config.StatsRefreshInterval)
	defer ticker.Stop()
	currentTicker := time.NewTicker(config.CurrentMinuteHistInterval)
	defer currentTicker.Stop()
	logger.Logger.Info("stats aggregator started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RunCycle()
		case <-currentTicker.C:
			runCurrentHour(helper.TruncateHour(time.Now()))
		}
	}
}

// RunCycle executes one backfill + stale + current-hour pass.
func RunCycle() {
	now := time.Now()
	currentHourStart := helper.TruncateHour(now)

	if config.StatsBackfillEnabled {
		runBackfill(currentHourStart)
	}
	if config.StatsStaleEnabled {
		runStaleRefresh()
	}
	runCurrentHour(currentHourStart)
}

// runBackfill aggregates finished hours that have logs but no stats row yet,
// looking back at most the configured number of days.
func runBackfill(currentHourStart time.Time) {
	since := currentHourStart.AddDate(0, 0, -config.StatsBackfillDays)
	buckets, err := model.FindBackfillBuckets(since, currentHourStart, config.StatsBatchSize)
	if err != nil {
		logger.Logger.Error("find backfill buckets", zap.Error(err))
		return
	}
	for _, bucket := range buckets {
		if err := model.UpsertHourlyStats(bucket.ProjectID, bucket.Hour); err != nil {
			logger.Logger.Error("backfill bucket",
				zap.String("project", bucket.ProjectID),
				zap.String("hour", bucket.Hour), zap.Error(err))
		}
	}
	if len(buckets) > 0 {
		logger.Logger.Info("stats backfill", zap.Int("buckets", len(buckets)))
	}
}

// runStaleRefresh recomputes recent buckets that received logs after their
// stats row was last written.
func runStaleRefresh() {
	since := time.Now().AddDate(0, 0, -config.StatsStaleDays)
	buckets, err := model.FindStaleBuckets(since, config.StatsBatchSize)
	if err != nil {
		logger.Logger.Error("find stale buckets", zap.Error(err))
		return
	}
	for _, bucket := range buckets {
		if err := model.UpsertHourlyStats(bucket.ProjectID, bucket.Hour); err != nil {
			logger.Logger.Error("refresh stale bucket",
				zap.String("project", bucket.ProjectID),
				zap.String("hour", bucket.Hour), zap.Error(err))
		}
	}
}

// runCurrentHour keeps the in-progress hour fresh for every active project.
func runCurrentHour(currentHourStart time.Time) {
	projects, err := model.FindCurrentHourProjects(currentHourStart)
	if err != nil {
		logger.Logger.Error("find current hour projects", zap.Error(err))
		return
	}
	hour := helper.HourKey(currentHourStart)
	for _, projectID := range projects {
		if err := model.UpsertHourlyStats(projectID, hour); err != nil {
			logger.Logger.Error("refresh current hour",
				zap.String("project", projectID), zap.Error(err))
		}
	}
}
