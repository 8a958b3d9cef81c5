package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shoptrend/internal/task"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler 任务调度器
type Scheduler struct {
	cron           *cron.Cron
	registry       *task.TaskRegistry
	logger         *zap.Logger
	running        bool
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	jobEntries     map[string]cron.EntryID
	defaultTimeout time.Duration

	// 正在执行的任务与最近一次结果，定时触发和手动触发共用
	execMu     sync.Mutex
	executing  map[string]bool
	lastResult map[string]task.TaskResult
}

// Config 调度器配置
type Config struct {
	Logger         *zap.Logger
	Registry       *task.TaskRegistry
	DefaultTimeout time.Duration
	Location       *time.Location
}

// TaskStatus 任务当前状态
type TaskStatus struct {
	Name       string           `json:"name"`
	Schedule   string           `json:"schedule"`
	Enabled    bool             `json:"enabled"`
	Running    bool             `json:"running"`
	NextRun    *time.Time       `json:"next_run,omitempty"`
	LastResult *task.TaskResult `json:"last_result,omitempty"`
}

// NewScheduler 创建新的调度器
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	if cfg.Registry == nil {
		cfg.Registry = task.NewTaskRegistry()
	}

	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Minute
	}

	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	opts := []cron.Option{
		cron.WithLocation(cfg.Location),
		cron.WithSeconds(), // 支持秒级精度
		cron.WithChain(
			cron.Recover(cron.DefaultLogger), // 恢复 panic
		),
	}

	c := cron.New(opts...)

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:           c,
		registry:       cfg.Registry,
		logger:         cfg.Logger,
		ctx:            ctx,
		cancel:         cancel,
		jobEntries:     make(map[string]cron.EntryID),
		defaultTimeout: cfg.DefaultTimeout,
		executing:      make(map[string]bool),
		lastResult:     make(map[string]task.TaskResult),
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	// 注册所有启用的任务
	tasks := s.registry.GetEnabledTasks()
	for name, t := range tasks {
		if err := s.addTask(name, t); err != nil {
			s.logger.Error("failed to add task",
				zap.String("task", name),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("task registered",
			zap.String("task", name),
			zap.String("schedule", t.Schedule()),
		)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("scheduler started",
		zap.Int("total_tasks", len(tasks)),
	)

	return nil
}

// Stop 停止调度器，等待正在执行的定时任务结束
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.logger.Info("stopping scheduler...")

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info("scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("context cancelled while stopping scheduler")
		s.cancel()
		s.running = false
		return ctx.Err()
	}

	s.cancel()
	s.running = false

	return nil
}

// addTask 添加任务到调度器
func (s *Scheduler) addTask(name string, t task.Task) error {
	schedule := t.Schedule()
	if schedule == "" {
		return fmt.Errorf("task schedule cannot be empty")
	}

	entryID, err := s.cron.AddFunc(schedule, s.wrapTask(name, t))
	if err != nil {
		return fmt.Errorf("failed to parse schedule: %w", err)
	}

	s.jobEntries[name] = entryID
	return nil
}

// wrapTask 包装定时触发的执行逻辑
func (s *Scheduler) wrapTask(name string, t task.Task) func() {
	return func() {
		if _, err := s.execute(s.ctx, name, t, false); err != nil {
			s.logger.Warn("scheduled run skipped",
				zap.String("task", name),
				zap.Error(err),
			)
		}
	}
}

// RunNow 立即执行指定任务并等待结果
//
// 任务未注册返回 task.ErrTaskNotFound，同名任务正在执行返回 task.ErrTaskRunning。
// 未启用的任务同样可以手动执行。
func (s *Scheduler) RunNow(ctx context.Context, name string) (task.TaskResult, error) {
	t, ok := s.registry.GetTask(name)
	if !ok {
		return task.TaskResult{}, fmt.Errorf("%w: %s", task.ErrTaskNotFound, name)
	}
	return s.execute(ctx, name, t, true)
}

// execute 执行任务，同名任务不会并发执行
func (s *Scheduler) execute(parent context.Context, name string, t task.Task, manual bool) (task.TaskResult, error) {
	s.execMu.Lock()
	if s.executing[name] {
		s.execMu.Unlock()
		return task.TaskResult{}, fmt.Errorf("%w: %s", task.ErrTaskRunning, name)
	}
	s.executing[name] = true
	s.execMu.Unlock()

	defer func() {
		s.execMu.Lock()
		delete(s.executing, name)
		s.execMu.Unlock()
	}()

	startTime := time.Now()
	s.logger.Info("task started",
		zap.String("task", name),
		zap.Bool("manual", manual),
		zap.Time("start_time", startTime),
	)

	// 确定超时时间
	timeout := t.Timeout()
	if timeout == 0 {
		timeout = s.defaultTimeout
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	err := t.Run(ctx)
	result := task.NewTaskResult(name, startTime, time.Now(), err, manual)

	s.execMu.Lock()
	s.lastResult[name] = result
	s.execMu.Unlock()

	s.logTaskResult(result)
	return result, nil
}

// logTaskResult 记录任务执行结果
func (s *Scheduler) logTaskResult(result task.TaskResult) {
	fields := []zap.Field{
		zap.String("task", result.TaskName),
		zap.Time("start_time", result.StartTime),
		zap.Time("end_time", result.EndTime),
		zap.Duration("duration", result.Duration),
		zap.Bool("success", result.Success),
		zap.Bool("manual", result.Manual),
	}

	if result.Error != nil {
		fields = append(fields, zap.Error(result.Error))
		s.logger.Error("task completed with error", fields...)
	} else {
		s.logger.Info("task completed successfully", fields...)
	}
}

// LastResults 返回每个任务最近一次执行结果的副本
func (s *Scheduler) LastResults() map[string]task.TaskResult {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	out := make(map[string]task.TaskResult, len(s.lastResult))
	for k, v := range s.lastResult {
		out[k] = v
	}
	return out
}

// Status 返回所有已注册任务的状态，按名称排序
func (s *Scheduler) Status() []TaskStatus {
	s.mu.RLock()
	entries := make(map[string]cron.EntryID, len(s.jobEntries))
	for k, v := range s.jobEntries {
		entries[k] = v
	}
	running := s.running
	s.mu.RUnlock()

	s.execMu.Lock()
	defer s.execMu.Unlock()

	all := s.registry.GetAllTasks()
	out := make([]TaskStatus, 0, len(all))
	for _, name := range s.registry.Names() {
		t, ok := all[name]
		if !ok {
			continue
		}
		st := TaskStatus{
			Name:     name,
			Schedule: t.Schedule(),
			Enabled:  t.Enabled(),
			Running:  s.executing[name],
		}
		if id, ok := entries[name]; ok && running {
			if next := s.cron.Entry(id).Next; !next.IsZero() {
				st.NextRun = &next
			}
		}
		if r, ok := s.lastResult[name]; ok {
			st.LastResult = &r
		}
		out = append(out, st)
	}
	return out
}

// IsRunning 检查调度器是否运行中
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetTaskCount 获取已加入 cron 的任务数量
func (s *Scheduler) GetTaskCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobEntries)
}

// RemoveTask 从 cron 中移除任务
func (s *Scheduler) RemoveTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, exists := s.jobEntries[name]
	if !exists {
		return fmt.Errorf("%w: %s", task.ErrTaskNotFound, name)
	}

	s.cron.Remove(entryID)
	delete(s.jobEntries, name)

	s.logger.Info("task removed",
		zap.String("task", name),
	)

	return nil
}
