package model

// MongoDB 集合名称
const (
	CollectionTrendSamples      = "trend_samples"
	CollectionTrendAggregations = "trend_aggregations"
)

// 关系型数据库表名
const (
	TablePriceHistory = "price_history"
	TableToolCalls    = "tool_calls"
)
