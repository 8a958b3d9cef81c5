package calltracker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shoptrend/internal/keylock"
	"shoptrend/internal/model"
)

// Store 外部调用记录的持久化接口
type Store interface {
	CreateCall(ctx context.Context, call model.RetryableCall) error
	// GetCall 不存在时返回 model.ErrNotFound
	GetCall(ctx context.Context, id string) (model.RetryableCall, error)
	UpdateCall(ctx context.Context, call model.RetryableCall) error
}

// Tracker 可重试外部调用的跟踪器
//
// 状态迁移由 model.RetryableCall 的纯函数完成，这里只负责读写存储，
// 同一 id 的迁移通过按 key 的互斥锁串行执行。
type Tracker struct {
	store  Store
	locks  *keylock.KeyedMutex
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// New 创建跟踪器
func New(store Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:  store,
		locks:  keylock.New(),
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Start 创建一条 PENDING 调用记录，返回 id
func (t *Tracker) Start(ctx context.Context, name string, params map[string]string) (string, error) {
	call := model.NewRetryableCall(t.newID(), name, params, t.now())
	if err := t.store.CreateCall(ctx, call); err != nil {
		return "", fmt.Errorf("create call %s: %w", name, err)
	}
	return call.ID, nil
}

// Succeed PENDING -> SUCCESS
func (t *Tracker) Succeed(ctx context.Context, id, result string, elapsedMs int64) error {
	return t.transition(ctx, id, func(c model.RetryableCall) (model.RetryableCall, error) {
		return c.Succeeded(result, elapsedMs, t.now())
	})
}

// Fail PENDING -> FAILED
func (t *Tracker) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return t.transition(ctx, id, func(c model.RetryableCall) (model.RetryableCall, error) {
		return c.Failed(msg, t.now())
	})
}

// Retry FAILED -> PENDING，次数用尽时返回 model.ErrExhaustedRetries
func (t *Tracker) Retry(ctx context.Context, id string) error {
	return t.transition(ctx, id, func(c model.RetryableCall) (model.RetryableCall, error) {
		return c.Retried(t.now())
	})
}

// CanRetry 调用是否可以重试
func (t *Tracker) CanRetry(ctx context.Context, id string) (bool, error) {
	call, err := t.store.GetCall(ctx, id)
	if err != nil {
		return false, err
	}
	return call.CanRetry(), nil
}

// Get 读取调用记录
func (t *Tracker) Get(ctx context.Context, id string) (model.RetryableCall, error) {
	return t.store.GetCall(ctx, id)
}

func (t *Tracker) transition(ctx context.Context, id string, fn func(model.RetryableCall) (model.RetryableCall, error)) error {
	unlock := t.locks.Lock(id)
	defer unlock()

	call, err := t.store.GetCall(ctx, id)
	if err != nil {
		return err
	}
	next, err := fn(call)
	if err != nil {
		return err
	}
	if err := t.store.UpdateCall(ctx, next); err != nil {
		return fmt.Errorf("update call %s: %w", id, err)
	}
	return nil
}

// Execute 执行 fn 并跟踪结果，失败时在 CanRetry 且未超过 retries 次时重试
//
// 返回调用 id 与最后一次执行的错误。fn 的返回字符串作为调用结果保存。
func (t *Tracker) Execute(ctx context.Context, name string, params map[string]string, retries int, fn func(context.Context) (string, error)) (string, error) {
	if retries > model.MaxRetryCount {
		retries = model.MaxRetryCount
	}
	id, err := t.Start(ctx, name, params)
	if err != nil {
		return "", err
	}

	for attempt := 0; ; attempt++ {
		started := t.now()
		result, callErr := fn(ctx)
		elapsed := t.now().Sub(started).Milliseconds()

		if callErr == nil {
			if err := t.Succeed(ctx, id, result, elapsed); err != nil {
				t.logger.Warn("记录调用成功失败", zap.String("call_id", id), zap.Error(err))
			}
			return id, nil
		}

		if err := t.Fail(ctx, id, callErr); err != nil {
			t.logger.Warn("记录调用失败失败", zap.String("call_id", id), zap.Error(err))
			return id, callErr
		}
		t.logger.Warn("外部调用失败",
			zap.String("call_id", id),
			zap.String("name", name),
			zap.Int("attempt", attempt+1),
			zap.Error(callErr))

		if attempt >= retries || ctx.Err() != nil {
			return id, callErr
		}
		ok, err := t.CanRetry(ctx, id)
		if err != nil || !ok {
			return id, callErr
		}
		if err := t.Retry(ctx, id); err != nil {
			return id, callErr
		}
	}
}
