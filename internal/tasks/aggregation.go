package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shoptrend/internal/aggregation"
	"shoptrend/internal/model"
	"shoptrend/internal/task"

	"go.uber.org/zap"
)

// BatchRunner 执行一批关键词的聚合
type BatchRunner interface {
	RunBatchJob(ctx context.Context, keywords []string, t model.AggregationType, asOf time.Time) (*aggregation.BatchResult, error)
}

// KeywordSource 已有样本的关键词来源
type KeywordSource interface {
	Keywords(ctx context.Context) ([]string, error)
}

// AggregationTaskConfig 聚合任务配置
type AggregationTaskConfig struct {
	Type     model.AggregationType
	Schedule string
	Timeout  time.Duration
	Enabled  bool
	Keywords []string // 固定关键词，与存储中的关键词合并
}

// AggregationTask 按窗口类型定时聚合所有关键词
type AggregationTask struct {
	cfg    AggregationTaskConfig
	runner BatchRunner
	source KeywordSource
	logger *zap.Logger
	now    func() time.Time
}

// NewAggregationTask 创建聚合任务，source 可为 nil
func NewAggregationTask(cfg AggregationTaskConfig, runner BatchRunner, source KeywordSource, logger *zap.Logger) *AggregationTask {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregationTask{
		cfg:    cfg,
		runner: runner,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

var _ task.Task = (*AggregationTask)(nil)

// AggregationTaskName 聚合任务名称，如 trend_aggregation_daily
func AggregationTaskName(t model.AggregationType) string {
	return "trend_aggregation_" + strings.ToLower(string(t))
}

func (t *AggregationTask) Name() string {
	return AggregationTaskName(t.cfg.Type)
}

func (t *AggregationTask) Schedule() string {
	return t.cfg.Schedule
}

func (t *AggregationTask) Timeout() time.Duration {
	return t.cfg.Timeout
}

func (t *AggregationTask) Enabled() bool {
	return t.cfg.Enabled
}

// Run 聚合截至当前时刻的窗口；有关键词失败时返回错误，成功的关键词结果仍已保存
func (t *AggregationTask) Run(ctx context.Context) error {
	keywords, err := t.keywords(ctx)
	if err != nil {
		return err
	}
	if len(keywords) == 0 {
		t.logger.Info("no keywords to aggregate", zap.String("task", t.Name()))
		return nil
	}

	result, err := t.runner.RunBatchJob(ctx, keywords, t.cfg.Type, t.now())
	if err != nil {
		return fmt.Errorf("run %s batch: %w", t.cfg.Type, err)
	}
	if result.Failed() {
		return fmt.Errorf("%d of %d keywords failed, first %q: %s",
			len(result.Failures), len(keywords), result.Failures[0].Keyword, result.Failures[0].Error)
	}
	return nil
}

// keywords 合并配置与存储中的关键词，去重后保持配置顺序在前
func (t *AggregationTask) keywords(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(list []string) {
		for _, kw := range list {
			kw = model.NormalizeKeyword(kw)
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			out = append(out, kw)
		}
	}

	add(t.cfg.Keywords)
	if t.source != nil {
		stored, err := t.source.Keywords(ctx)
		if err != nil {
			return nil, fmt.Errorf("list keywords: %w", err)
		}
		add(stored)
	}
	return out, nil
}
