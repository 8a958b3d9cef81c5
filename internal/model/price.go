package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceChange 价格变动方向
type PriceChange string

const (
	PriceUp     PriceChange = "UP"
	PriceDown   PriceChange = "DOWN"
	PriceStable PriceChange = "STABLE"
)

// PriceObservation 商品价格观测记录（只追加）
type PriceObservation struct {
	ID                int64           `json:"id"`
	ProductID         int64           `json:"product_id"`
	Price             decimal.Decimal `json:"price"`
	RecordedAt        time.Time       `json:"recorded_at"`
	PriceChange       PriceChange     `json:"price_change"`
	PriceChangeAmount decimal.Decimal `json:"price_change_amount"`
}
