package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"shoptrend/internal/model"
)

// DefaultPrefix 默认缓存 key 前缀
const DefaultPrefix = "trend"

// Store 缓存后端
type Store interface {
	// Get 读取 key，不存在或已过期时 found 为 false
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set 写入 key，ttl <= 0 表示不过期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePattern 删除匹配 glob 模式的所有 key，返回删除数量
	DeletePattern(ctx context.Context, pattern string) (int64, error)
}

// Recorder 命中/未命中计数
type Recorder interface {
	RecordCacheHit()
	RecordCacheMiss()
}

// Options 缓存层配置
type Options struct {
	Prefix     string
	DefaultTTL time.Duration
}

// Layer 查询结果缓存层
//
// 读错误降级为未命中，写错误只记录日志，缓存故障不会影响调用方。
// 并发未命中时可能重复计算并互相覆盖，结果一致即可接受。
type Layer struct {
	store      Store
	prefix     string
	defaultTTL time.Duration
	recorder   Recorder
	logger     *zap.Logger
}

// NewLayer 创建缓存层
func NewLayer(store Store, opts Options, recorder Recorder, logger *zap.Logger) *Layer {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Layer{
		store:      store,
		prefix:     prefix,
		defaultTTL: opts.DefaultTTL,
		recorder:   recorder,
		logger:     logger,
	}
}

// Key 计算查询对应的缓存 key：prefix:TYPE:keywordHash:fingerprint
func (l *Layer) Key(q Query) string {
	return fmt.Sprintf("%s:%s:%s:%s", l.prefix, typeSegment(q.Type), KeywordHash(q.Keyword), q.Fingerprint())
}

// Get 读取缓存，每次调用恰好记录一次命中或未命中
func (l *Layer) Get(ctx context.Context, q Query) ([]byte, bool) {
	key := l.Key(q)
	value, found, err := l.store.Get(ctx, key)
	if err != nil {
		l.logger.Warn("缓存读取失败，按未命中处理",
			zap.String("key", key),
			zap.Error(fmt.Errorf("%w: %v", model.ErrCache, err)))
		found = false
	}
	if found {
		l.recordHit()
		return value, true
	}
	l.recordMiss()
	return nil, false
}

// Put 写入缓存，ttl <= 0 时使用默认 TTL
func (l *Layer) Put(ctx context.Context, q Query, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	key := l.Key(q)
	if err := l.store.Set(ctx, key, payload, ttl); err != nil {
		l.logger.Warn("缓存写入失败",
			zap.String("key", key),
			zap.Error(fmt.Errorf("%w: %v", model.ErrCache, err)))
	}
}

// GetJSON 读取并反序列化，反序列化失败按未命中处理（已计入命中数）
func (l *Layer) GetJSON(ctx context.Context, q Query, v any) bool {
	payload, ok := l.Get(ctx, q)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, v); err != nil {
		l.logger.Warn("缓存内容反序列化失败", zap.String("key", l.Key(q)), zap.Error(err))
		return false
	}
	return true
}

// PutJSON 序列化并写入
func (l *Layer) PutJSON(ctx context.Context, q Query, v any, ttl time.Duration) {
	payload, err := json.Marshal(v)
	if err != nil {
		l.logger.Warn("缓存内容序列化失败", zap.String("key", l.Key(q)), zap.Error(err))
		return
	}
	l.Put(ctx, q, payload, ttl)
}

// Invalidate 按范围删除缓存，返回删除数量
func (l *Layer) Invalidate(ctx context.Context, scope Scope) (int64, error) {
	pattern, ok := l.pattern(scope)
	if !ok {
		return 0, nil
	}
	n, err := l.store.DeletePattern(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("%w: invalidate %s: %v", model.ErrCache, pattern, err)
	}
	l.logger.Debug("缓存已失效", zap.String("pattern", pattern), zap.Int64("deleted", n))
	return n, nil
}

func (l *Layer) pattern(scope Scope) (string, bool) {
	switch scope.kind {
	case scopeAll:
		return l.prefix + ":*", true
	case scopeType:
		return fmt.Sprintf("%s:%s:*", l.prefix, typeSegment(model.AggregationType(scope.value))), true
	case scopeKeyword:
		return fmt.Sprintf("%s:*:%s:*", l.prefix, KeywordHash(scope.value)), true
	}
	return "", false
}

func (l *Layer) recordHit() {
	if l.recorder != nil {
		l.recorder.RecordCacheHit()
	}
}

func (l *Layer) recordMiss() {
	if l.recorder != nil {
		l.recorder.RecordCacheMiss()
	}
}

type scopeKind int

const (
	scopeNone scopeKind = iota
	scopeAll
	scopeKeyword
	scopeType
)

// Scope 失效范围
type Scope struct {
	kind  scopeKind
	value string
}

// ScopeAll 全部缓存
func ScopeAll() Scope {
	return Scope{kind: scopeAll}
}

// ScopeKeyword 某个关键词的全部缓存，空关键词为空操作
func ScopeKeyword(keyword string) Scope {
	if normalize(keyword) == "" {
		return Scope{}
	}
	return Scope{kind: scopeKeyword, value: keyword}
}

// ScopeType 某个聚合类型的全部缓存，空类型为空操作
func ScopeType(t model.AggregationType) Scope {
	if strings.TrimSpace(string(t)) == "" {
		return Scope{}
	}
	return Scope{kind: scopeType, value: string(t)}
}

// ParseScope 从字符串解析失效范围：all | keyword | type
func ParseScope(kind, value string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "all":
		return ScopeAll(), nil
	case "keyword":
		return ScopeKeyword(value), nil
	case "type":
		t, err := model.ParseAggregationType(value)
		if err != nil {
			return Scope{}, err
		}
		return ScopeType(t), nil
	}
	return Scope{}, fmt.Errorf("%w: unknown cache scope %q", model.ErrValidation, kind)
}

// String 便于日志输出
func (s Scope) String() string {
	switch s.kind {
	case scopeAll:
		return "all"
	case scopeKeyword:
		return "keyword:" + s.value
	case scopeType:
		return "type:" + s.value
	}
	return "none"
}
