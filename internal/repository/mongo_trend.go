package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"shoptrend/internal/database"
	"shoptrend/internal/model"
)

var zeroDecimal128, _ = primitive.ParseDecimal128("0")

// sampleDocument trend_samples 集合中的文档
type sampleDocument struct {
	Keyword            string               `bson:"keyword"`
	Date               time.Time            `bson:"date"`
	Ratio              primitive.Decimal128 `bson:"ratio"`
	ClickCount         int64                `bson:"click_count"`
	DeviceDistribution map[string]float64   `bson:"device_distribution,omitempty"`
	GenderDistribution map[string]float64   `bson:"gender_distribution,omitempty"`
	AgeDistribution    map[string]float64   `bson:"age_distribution,omitempty"`
	CreatedAt          time.Time            `bson:"created_at"`
	UpdatedAt          time.Time            `bson:"updated_at"`
}

// aggregationDocument trend_aggregations 集合中的文档
type aggregationDocument struct {
	Keyword          string               `bson:"keyword"`
	AggregationDate  time.Time            `bson:"aggregation_date"`
	Type             string               `bson:"type"`
	WindowStart      time.Time            `bson:"window_start"`
	WindowEnd        time.Time            `bson:"window_end"`
	SampleCount      int                  `bson:"sample_count"`
	TotalRatio       primitive.Decimal128 `bson:"total_ratio"`
	TotalClickCount  int64                `bson:"total_click_count"`
	AvgRatio         primitive.Decimal128 `bson:"avg_ratio"`
	MaxRatio         primitive.Decimal128 `bson:"max_ratio"`
	MinRatio         primitive.Decimal128 `bson:"min_ratio"`
	PreviousAvgRatio primitive.Decimal128 `bson:"previous_avg_ratio"`
	Direction        string               `bson:"direction"`
	Strength         primitive.Decimal128 `bson:"strength"`
	UpdatedAt        time.Time            `bson:"updated_at"`
}

// MongoTrendRepository 趋势样本与聚合结果的 MongoDB 存储
type MongoTrendRepository struct {
	storage *database.Storage
	logger  *zap.Logger
}

// NewMongoTrendRepository 创建 MongoTrendRepository
func NewMongoTrendRepository(storage *database.Storage, logger *zap.Logger) *MongoTrendRepository {
	return &MongoTrendRepository{
		storage: storage,
		logger:  logger,
	}
}

// UpsertSamples 批量 upsert 样本
//
// 比率与分布整体覆盖，click_count 使用 $max 合并，趋势源刷新不会抹掉点击统计。
func (r *MongoTrendRepository) UpsertSamples(ctx context.Context, samples []model.TrendSample) error {
	if len(samples) == 0 {
		return nil
	}

	now := time.Now().UTC()
	var models []mongo.WriteModel
	for _, sample := range samples {
		sample = sample.Normalize()
		if err := sample.Validate(); err != nil {
			return err
		}
		ratio, err := toDecimal128(sample.Ratio)
		if err != nil {
			return err
		}

		filter := bson.M{
			"keyword": sample.Keyword,
			"date":    sample.Date,
		}
		update := bson.M{
			"$set": bson.M{
				"ratio":               ratio,
				"device_distribution": sample.DeviceDistribution.Float64Map(),
				"gender_distribution": sample.GenderDistribution.Float64Map(),
				"age_distribution":    sample.AgeDistribution.Float64Map(),
				"updated_at":          now,
			},
			"$max": bson.M{
				"click_count": sample.ClickCount,
			},
			"$setOnInsert": bson.M{
				"created_at": now,
			},
		}

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(filter).
			SetUpdate(update).
			SetUpsert(true))
	}

	if _, err := r.storage.BulkUpsert(ctx, model.CollectionTrendSamples, models); err != nil {
		return fmt.Errorf("failed to save trend samples: %w", err)
	}

	if r.logger != nil {
		r.logger.Debug("saved trend samples", zap.Int("count", len(models)))
	}
	return nil
}

// SamplesBetween 查询 [from, to] 日期范围内的样本
func (r *MongoTrendRepository) SamplesBetween(ctx context.Context, keyword string, from, to time.Time) ([]model.TrendSample, error) {
	filter := bson.M{
		"keyword": model.NormalizeKeyword(keyword),
		"date": bson.M{
			"$gte": model.DayOf(from),
			"$lte": model.DayOf(to),
		},
	}
	opts := options.Find().SetSort(bson.M{"date": 1})

	cursor, err := r.storage.FindDocuments(ctx, model.CollectionTrendSamples, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query trend samples: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []sampleDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode trend samples: %w", err)
	}

	out := make([]model.TrendSample, 0, len(docs))
	for _, doc := range docs {
		s, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// IncrementClicks 累加某天的点击数，样本不存在时以 0 比率创建
func (r *MongoTrendRepository) IncrementClicks(ctx context.Context, keyword string, day time.Time, delta int64) error {
	keyword = model.NormalizeKeyword(keyword)
	if keyword == "" {
		return fmt.Errorf("%w: keyword is empty", model.ErrValidation)
	}
	if delta < 0 {
		return fmt.Errorf("%w: click delta must not be negative", model.ErrValidation)
	}

	now := time.Now().UTC()
	filter := bson.M{"keyword": keyword, "date": model.DayOf(day)}
	update := bson.M{
		"$inc": bson.M{"click_count": delta},
		"$set": bson.M{"updated_at": now},
		"$setOnInsert": bson.M{
			"ratio":      zeroDecimal128,
			"created_at": now,
		},
	}
	if _, err := r.storage.UpsertOne(ctx, model.CollectionTrendSamples, filter, update); err != nil {
		return fmt.Errorf("failed to increment clicks: %w", err)
	}
	return nil
}

// Keywords 所有出现过样本的关键词
func (r *MongoTrendRepository) Keywords(ctx context.Context) ([]string, error) {
	values, err := r.storage.Distinct(ctx, model.CollectionTrendSamples, "keyword", bson.M{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

// UpsertAggregation 按 (keyword, aggregation_date, type) 覆盖
func (r *MongoTrendRepository) UpsertAggregation(ctx context.Context, agg model.TrendAggregation) error {
	doc, err := newAggregationDocument(agg)
	if err != nil {
		return err
	}

	filter := bson.M{
		"keyword":          doc.Keyword,
		"aggregation_date": doc.AggregationDate,
		"type":             doc.Type,
	}
	update := bson.M{
		"$set": bson.M{
			"window_start":       doc.WindowStart,
			"window_end":         doc.WindowEnd,
			"sample_count":       doc.SampleCount,
			"total_ratio":        doc.TotalRatio,
			"total_click_count":  doc.TotalClickCount,
			"avg_ratio":          doc.AvgRatio,
			"max_ratio":          doc.MaxRatio,
			"min_ratio":          doc.MinRatio,
			"previous_avg_ratio": doc.PreviousAvgRatio,
			"direction":          doc.Direction,
			"strength":           doc.Strength,
			"updated_at":         time.Now().UTC(),
		},
	}

	result, err := r.storage.UpsertOne(ctx, model.CollectionTrendAggregations, filter, update)
	if err != nil {
		return fmt.Errorf("failed to save trend aggregation: %w", err)
	}

	if r.logger != nil {
		r.logger.Debug("saved trend aggregation",
			zap.String("keyword", doc.Keyword),
			zap.String("type", doc.Type),
			zap.Time("aggregation_date", doc.AggregationDate),
			zap.Int64("upserted_count", result.UpsertedCount),
			zap.Int64("modified_count", result.ModifiedCount),
		)
	}
	return nil
}

// Aggregations 按条件查询聚合结果，按聚合日期倒序
func (r *MongoTrendRepository) Aggregations(ctx context.Context, f model.AggregationFilter) ([]model.TrendAggregation, error) {
	filter := bson.M{}
	if f.Keyword != "" {
		filter["keyword"] = model.NormalizeKeyword(f.Keyword)
	}
	if f.Type != "" {
		filter["type"] = string(f.Type)
	}
	dateRange := bson.M{}
	if !f.From.IsZero() {
		dateRange["$gte"] = model.DayOf(f.From)
	}
	if !f.To.IsZero() {
		dateRange["$lte"] = model.DayOf(f.To)
	}
	if len(dateRange) > 0 {
		filter["aggregation_date"] = dateRange
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "aggregation_date", Value: -1},
		{Key: "keyword", Value: 1},
		{Key: "type", Value: 1},
	})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cursor, err := r.storage.FindDocuments(ctx, model.CollectionTrendAggregations, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query trend aggregations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []aggregationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode trend aggregations: %w", err)
	}

	out := make([]model.TrendAggregation, 0, len(docs))
	for _, doc := range docs {
		agg, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

// EnsureIndexes 创建必要的索引
func (r *MongoTrendRepository) EnsureIndexes(ctx context.Context) error {
	sampleIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "keyword", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if err := r.storage.EnsureIndexes(ctx, model.CollectionTrendSamples, sampleIndexes); err != nil {
		return err
	}

	aggregationIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "keyword", Value: 1},
				{Key: "aggregation_date", Value: 1},
				{Key: "type", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "type", Value: 1}, {Key: "aggregation_date", Value: -1}},
		},
	}
	return r.storage.EnsureIndexes(ctx, model.CollectionTrendAggregations, aggregationIndexes)
}

func (d sampleDocument) toModel() (model.TrendSample, error) {
	ratio, err := fromDecimal128(d.Ratio)
	if err != nil {
		return model.TrendSample{}, err
	}
	return model.TrendSample{
		Keyword:            d.Keyword,
		Date:               d.Date.UTC(),
		Ratio:              ratio,
		ClickCount:         d.ClickCount,
		DeviceDistribution: model.DistributionFromFloat64(d.DeviceDistribution),
		GenderDistribution: model.DistributionFromFloat64(d.GenderDistribution),
		AgeDistribution:    model.DistributionFromFloat64(d.AgeDistribution),
	}, nil
}

func newAggregationDocument(agg model.TrendAggregation) (aggregationDocument, error) {
	doc := aggregationDocument{
		Keyword:         model.NormalizeKeyword(agg.Keyword),
		AggregationDate: model.DayOf(agg.AggregationDate),
		Type:            string(agg.Type),
		WindowStart:     agg.WindowStart.UTC(),
		WindowEnd:       agg.WindowEnd.UTC(),
		SampleCount:     agg.SampleCount,
		TotalClickCount: agg.TotalClickCount,
		Direction:       string(agg.Direction),
		UpdatedAt:       agg.UpdatedAt,
	}
	fields := []struct {
		src decimal.Decimal
		dst *primitive.Decimal128
	}{
		{agg.TotalRatio, &doc.TotalRatio},
		{agg.AvgRatio, &doc.AvgRatio},
		{agg.MaxRatio, &doc.MaxRatio},
		{agg.MinRatio, &doc.MinRatio},
		{agg.PreviousAvgRatio, &doc.PreviousAvgRatio},
		{agg.Strength, &doc.Strength},
	}
	for _, f := range fields {
		v, err := toDecimal128(f.src)
		if err != nil {
			return doc, err
		}
		*f.dst = v
	}
	return doc, nil
}

func (d aggregationDocument) toModel() (model.TrendAggregation, error) {
	agg := model.TrendAggregation{
		Keyword:         d.Keyword,
		AggregationDate: d.AggregationDate.UTC(),
		Type:            model.AggregationType(d.Type),
		WindowStart:     d.WindowStart.UTC(),
		WindowEnd:       d.WindowEnd.UTC(),
		SampleCount:     d.SampleCount,
		TotalClickCount: d.TotalClickCount,
		Direction:       model.Direction(d.Direction),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	fields := []struct {
		src primitive.Decimal128
		dst *decimal.Decimal
	}{
		{d.TotalRatio, &agg.TotalRatio},
		{d.AvgRatio, &agg.AvgRatio},
		{d.MaxRatio, &agg.MaxRatio},
		{d.MinRatio, &agg.MinRatio},
		{d.PreviousAvgRatio, &agg.PreviousAvgRatio},
		{d.Strength, &agg.Strength},
	}
	for _, f := range fields {
		v, err := fromDecimal128(f.src)
		if err != nil {
			return agg, err
		}
		*f.dst = v
	}
	return agg, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert %s to decimal128: %w", d.String(), err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("convert decimal128 %s: %w", v.String(), err)
	}
	return d, nil
}
