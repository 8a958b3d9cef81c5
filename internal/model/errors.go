package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 记录不存在（价格、样本、调用记录）
	ErrNotFound = errors.New("record not found")

	// ErrValidation 参数或状态校验失败
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition 状态机非法迁移，属于 ErrValidation
	ErrInvalidTransition = fmt.Errorf("%w: invalid state transition", ErrValidation)

	// ErrExternalSource 外部趋势数据源调用失败（超时或错误），按关键词隔离
	ErrExternalSource = errors.New("external source failure")

	// ErrCache 缓存读写失败，调用方应降级处理
	ErrCache = errors.New("cache failure")

	// ErrExhaustedRetries 重试次数已耗尽
	ErrExhaustedRetries = errors.New("retries exhausted")
)
