package model

import (
	"fmt"
	"time"
)

// MaxRetryCount 外部调用允许的最大重试次数
const MaxRetryCount = 3

// CallStatus 外部调用状态
type CallStatus string

const (
	CallPending CallStatus = "PENDING"
	CallSuccess CallStatus = "SUCCESS"
	CallFailed  CallStatus = "FAILED"
)

// RetryableCall 一次可重试的外部工具/API 调用记录
//
// 状态机：PENDING -> SUCCESS（终态）| FAILED；FAILED 在 RetryCount < MaxRetryCount 时
// 可通过 Retried 回到 PENDING。
type RetryableCall struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Params          map[string]string `json:"params,omitempty"`
	Status          CallStatus        `json:"status"`
	RetryCount      int               `json:"retry_count"`
	Result          string            `json:"result,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	ExecutedAt      time.Time         `json:"executed_at"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewRetryableCall 创建 PENDING 状态的调用
func NewRetryableCall(id, name string, params map[string]string, now time.Time) RetryableCall {
	return RetryableCall{
		ID:         id,
		Name:       name,
		Params:     params,
		Status:     CallPending,
		ExecutedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CanRetry 仅当状态为 FAILED 且重试次数未达上限时可重试
func (c RetryableCall) CanRetry() bool {
	return c.Status == CallFailed && c.RetryCount < MaxRetryCount
}

// Terminal 是否处于终态
func (c RetryableCall) Terminal() bool {
	return c.Status == CallSuccess || (c.Status == CallFailed && !c.CanRetry())
}

// Succeeded PENDING -> SUCCESS
func (c RetryableCall) Succeeded(result string, elapsedMs int64, now time.Time) (RetryableCall, error) {
	if c.Status != CallPending {
		return c, fmt.Errorf("%w: cannot succeed call %s in status %s", ErrInvalidTransition, c.ID, c.Status)
	}
	c.Status = CallSuccess
	c.Result = result
	c.ErrorMessage = ""
	c.ExecutionTimeMs = elapsedMs
	c.UpdatedAt = now
	return c, nil
}

// Failed PENDING -> FAILED
func (c RetryableCall) Failed(message string, now time.Time) (RetryableCall, error) {
	if c.Status != CallPending {
		return c, fmt.Errorf("%w: cannot fail call %s in status %s", ErrInvalidTransition, c.ID, c.Status)
	}
	c.Status = CallFailed
	c.ErrorMessage = message
	c.UpdatedAt = now
	return c, nil
}

// Retried FAILED -> PENDING，重试次数加一。已达上限时返回 ErrExhaustedRetries 且不修改计数。
func (c RetryableCall) Retried(now time.Time) (RetryableCall, error) {
	if c.RetryCount >= MaxRetryCount {
		return c, fmt.Errorf("%w: call %s already retried %d times", ErrExhaustedRetries, c.ID, c.RetryCount)
	}
	if c.Status != CallFailed {
		return c, fmt.Errorf("%w: cannot retry call %s in status %s", ErrInvalidTransition, c.ID, c.Status)
	}
	c.RetryCount++
	c.Status = CallPending
	c.ExecutedAt = now
	c.UpdatedAt = now
	return c, nil
}
