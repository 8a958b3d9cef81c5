package tasks

import (
	"context"
	"time"

	"shoptrend/internal/monitoring"
	"shoptrend/internal/task"

	"go.uber.org/zap"
)

// Snapshotter 监控计数器快照来源
type Snapshotter interface {
	Snapshot() monitoring.Snapshot
}

// MonitoringReportTask 定期将监控快照写入日志，不健康时记 Warn
type MonitoringReportTask struct {
	schedule   string
	enabled    bool
	source     Snapshotter
	thresholds monitoring.Thresholds
	logger     *zap.Logger
}

// NewMonitoringReportTask 创建监控报告任务
func NewMonitoringReportTask(schedule string, source Snapshotter, thresholds monitoring.Thresholds, logger *zap.Logger) *MonitoringReportTask {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonitoringReportTask{
		schedule:   schedule,
		enabled:    schedule != "",
		source:     source,
		thresholds: thresholds,
		logger:     logger,
	}
}

var _ task.Task = (*MonitoringReportTask)(nil)

func (t *MonitoringReportTask) Name() string {
	return "monitoring_report"
}

func (t *MonitoringReportTask) Schedule() string {
	return t.schedule
}

func (t *MonitoringReportTask) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	health := t.thresholds.Evaluate(t.source.Snapshot())
	s := health.Snapshot
	fields := []zap.Field{
		zap.Int64("requests", s.RequestCount),
		zap.Int64("cache_hits", s.CacheHitCount),
		zap.Int64("cache_misses", s.CacheMissCount),
		zap.Float64("cache_hit_rate", s.CacheHitRate),
		zap.Int64("aggregation_success", s.AggregationSuccessCount),
		zap.Int64("aggregation_failure", s.AggregationFailureCount),
		zap.Int64("consecutive_failures", s.ConsecutiveFailures),
		zap.Int64("batch_success", s.BatchJobSuccessCount),
		zap.Int64("batch_failure", s.BatchJobFailureCount),
		zap.Int64("active_batch_jobs", s.ActiveBatchJobs),
		zap.Int64("max_response_time_ms", s.MaxResponseTimeMs),
		zap.Time("since", s.Since),
	}

	if !health.Healthy {
		t.logger.Warn("monitoring report: unhealthy", append(fields, zap.Strings("problems", health.Problems))...)
		return nil
	}
	t.logger.Info("monitoring report", fields...)
	return nil
}

func (t *MonitoringReportTask) Timeout() time.Duration {
	return 10 * time.Second
}

func (t *MonitoringReportTask) Enabled() bool {
	return t.enabled
}
