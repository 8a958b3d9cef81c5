package pricing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shoptrend/internal/keylock"
	"shoptrend/internal/model"
)

// DefaultHistoryLimit 默认历史记录条数
const DefaultHistoryLimit = 50

// Store 价格历史持久化接口
type Store interface {
	// LatestPrice RecordedAt 最新的观测（时间相同取 ID 较大者），不存在时返回 model.ErrNotFound
	LatestPrice(ctx context.Context, productID int64) (model.PriceObservation, error)
	// AppendPrice 追加观测并返回带 ID 的记录
	AppendPrice(ctx context.Context, obs model.PriceObservation) (model.PriceObservation, error)
	// PriceHistory 按 RecordedAt 倒序返回最近 limit 条
	PriceHistory(ctx context.Context, productID int64, limit int) ([]model.PriceObservation, error)
}

// Options 价格跟踪配置
type Options struct {
	// SerializePerProduct 对同一商品的读-写过程加锁（仅单进程内有效），默认后写覆盖
	SerializePerProduct bool
}

// Service 商品价格跟踪
type Service struct {
	store  Store
	locks  *keylock.KeyedMutex
	logger *zap.Logger
}

// NewService 创建价格跟踪服务
func NewService(store Store, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: store, logger: logger}
	if opts.SerializePerProduct {
		s.locks = keylock.New()
	}
	return s
}

// Classify 与上一次观测比较，返回变动方向与变动金额（绝对值）
func Classify(prior *model.PriceObservation, price decimal.Decimal) (model.PriceChange, decimal.Decimal) {
	if prior == nil {
		return model.PriceStable, decimal.Zero
	}
	switch price.Cmp(prior.Price) {
	case 1:
		return model.PriceUp, price.Sub(prior.Price)
	case -1:
		return model.PriceDown, prior.Price.Sub(price)
	}
	return model.PriceStable, decimal.Zero
}

// Track 记录一次价格观测
//
// 无论价格是否变化都会追加一条记录，价格为负时返回 model.ErrValidation。
func (s *Service) Track(ctx context.Context, productID int64, price decimal.Decimal, observedAt time.Time) (*model.PriceObservation, error) {
	if productID <= 0 {
		return nil, fmt.Errorf("%w: product id must be positive", model.ErrValidation)
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", model.ErrValidation)
	}
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	if s.locks != nil {
		unlock := s.locks.Lock(strconv.FormatInt(productID, 10))
		defer unlock()
	}

	var prior *model.PriceObservation
	latest, err := s.store.LatestPrice(ctx, productID)
	switch {
	case err == nil:
		prior = &latest
	case errors.Is(err, model.ErrNotFound):
	default:
		return nil, fmt.Errorf("load latest price of product %d: %w", productID, err)
	}

	change, amount := Classify(prior, price)
	obs, err := s.store.AppendPrice(ctx, model.PriceObservation{
		ProductID:         productID,
		Price:             price,
		RecordedAt:        observedAt.UTC(),
		PriceChange:       change,
		PriceChangeAmount: amount,
	})
	if err != nil {
		return nil, fmt.Errorf("append price of product %d: %w", productID, err)
	}
	return &obs, nil
}

// Observe 隔离边界：调用 Track，失败只记录日志并返回 nil，不影响调用方
func (s *Service) Observe(ctx context.Context, productID int64, price decimal.Decimal, observedAt time.Time) *model.PriceObservation {
	obs, err := s.Track(ctx, productID, price, observedAt)
	if err != nil {
		s.logger.Warn("价格跟踪失败",
			zap.Int64("product_id", productID),
			zap.String("price", price.String()),
			zap.Error(err))
		return nil
	}
	if obs.PriceChange != model.PriceStable {
		s.logger.Info("价格变动",
			zap.Int64("product_id", productID),
			zap.String("change", string(obs.PriceChange)),
			zap.String("amount", obs.PriceChangeAmount.String()))
	}
	return obs
}

// History 查询商品价格历史
func (s *Service) History(ctx context.Context, productID int64, limit int) ([]model.PriceObservation, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.store.PriceHistory(ctx, productID, limit)
}
