package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Storage MongoDB 存储管理器，封装常用的集合操作
type Storage struct {
	db     *mongo.Database
	logger *zap.Logger
}

// NewStorage 创建新的存储管理器
func NewStorage(db *mongo.Database, logger *zap.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// GetCollection 获取集合
func (s *Storage) GetCollection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// UpsertOne 按 filter 更新单个文档，不存在时插入
func (s *Storage) UpsertOne(ctx context.Context, collectionName string, filter bson.M, update bson.M) (*mongo.UpdateResult, error) {
	opts := options.Update().SetUpsert(true)
	result, err := s.db.Collection(collectionName).UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to upsert document",
				zap.String("collection", collectionName),
				zap.Any("filter", filter),
				zap.Error(err),
			)
		}
		return nil, fmt.Errorf("failed to upsert document: %w", err)
	}
	return result, nil
}

// BulkUpsert 无序批量写入
func (s *Storage) BulkUpsert(ctx context.Context, collectionName string, models []mongo.WriteModel) (*mongo.BulkWriteResult, error) {
	if len(models) == 0 {
		return &mongo.BulkWriteResult{}, nil
	}

	opts := options.BulkWrite().SetOrdered(false)
	result, err := s.db.Collection(collectionName).BulkWrite(ctx, models, opts)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to bulk write",
				zap.String("collection", collectionName),
				zap.Int("count", len(models)),
				zap.Error(err),
			)
		}
		return nil, fmt.Errorf("failed to bulk write: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("bulk write finished",
			zap.String("collection", collectionName),
			zap.Int64("upserted_count", result.UpsertedCount),
			zap.Int64("modified_count", result.ModifiedCount),
			zap.Int64("matched_count", result.MatchedCount),
		)
	}
	return result, nil
}

// FindDocuments 查询文档，调用方负责关闭游标
func (s *Storage) FindDocuments(ctx context.Context, collectionName string, filter bson.M, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	cursor, err := s.db.Collection(collectionName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to find documents in %s: %w", collectionName, err)
	}
	return cursor, nil
}

// FindOne 查询单个文档并解码，不存在时返回 mongo.ErrNoDocuments
func (s *Storage) FindOne(ctx context.Context, collectionName string, filter bson.M, out interface{}, opts ...*options.FindOneOptions) error {
	return s.db.Collection(collectionName).FindOne(ctx, filter, opts...).Decode(out)
}

// Distinct 查询某个字段的去重值
func (s *Storage) Distinct(ctx context.Context, collectionName, field string, filter bson.M) ([]interface{}, error) {
	values, err := s.db.Collection(collectionName).Distinct(ctx, field, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to distinct %s in %s: %w", field, collectionName, err)
	}
	return values, nil
}

// EnsureIndexes 在集合上创建索引
func (s *Storage) EnsureIndexes(ctx context.Context, collectionName string, indexes []mongo.IndexModel) error {
	if _, err := s.db.Collection(collectionName).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for %s: %w", collectionName, err)
	}
	if s.logger != nil {
		s.logger.Info("indexes ensured", zap.String("collection", collectionName), zap.Int("count", len(indexes)))
	}
	return nil
}
