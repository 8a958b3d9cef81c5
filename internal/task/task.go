package task

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Task 定义了所有定时任务必须实现的接口
type Task interface {
	// Name 返回任务名称，用于标识、日志记录和手动触发
	Name() string

	// Schedule 返回 cron 表达式（秒 分 时 日 月 周）
	// 例如: "0 10 1 * * *" 表示每天 01:10:00 执行
	Schedule() string

	// Run 执行任务逻辑，ctx 用于取消和超时控制
	Run(ctx context.Context) error

	// Timeout 返回任务执行的超时时间，0 表示使用调度器默认值
	Timeout() time.Duration

	// Enabled 返回任务是否启用
	Enabled() bool
}

// TaskResult 任务执行结果
type TaskResult struct {
	TaskName  string        `json:"task_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     error         `json:"-"`
	Message   string        `json:"error,omitempty"`
	Manual    bool          `json:"manual"`
}

// NewTaskResult 根据执行区间和错误构造结果
func NewTaskResult(name string, start, end time.Time, err error, manual bool) TaskResult {
	r := TaskResult{
		TaskName:  name,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Success:   err == nil,
		Error:     err,
		Manual:    manual,
	}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// TaskRegistry 任务注册表，可并发读取
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewTaskRegistry 创建新的任务注册表
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks: make(map[string]Task),
	}
}

// Register 注册任务
func (r *TaskRegistry) Register(task Task) error {
	name := task.Name()
	if name == "" {
		return ErrEmptyTaskName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[name]; exists {
		return ErrTaskAlreadyRegistered
	}

	r.tasks[name] = task
	return nil
}

// GetTask 获取任务
func (r *TaskRegistry) GetTask(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, exists := r.tasks[name]
	return task, exists
}

// GetAllTasks 获取所有任务
func (r *TaskRegistry) GetAllTasks() map[string]Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]Task, len(r.tasks))
	for k, v := range r.tasks {
		result[k] = v
	}
	return result
}

// GetEnabledTasks 获取所有启用的任务
func (r *TaskRegistry) GetEnabledTasks() map[string]Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]Task)
	for name, task := range r.tasks {
		if task.Enabled() {
			result[name] = task
		}
	}
	return result
}

// Names 按字母序返回所有任务名
func (r *TaskRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
