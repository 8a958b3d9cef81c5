package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"shoptrend/internal/model"
)

// Dialect SQL 方言
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// SQLStore 价格历史与外部调用记录的关系型存储（PostgreSQL / MySQL）
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewSQLStore 创建 SQLStore
func NewSQLStore(db *sql.DB, dialect Dialect, logger *zap.Logger) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, logger: logger}
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS price_history (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL,
		price NUMERIC(15,2) NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		price_change VARCHAR(10) NOT NULL,
		price_change_amount NUMERIC(15,2) NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history (product_id, recorded_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS tool_calls (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		params TEXT,
		status VARCHAR(10) NOT NULL,
		retry_count INT NOT NULL DEFAULT 0,
		result TEXT,
		error_message TEXT,
		executed_at TIMESTAMPTZ NOT NULL,
		execution_time_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS price_history (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		product_id BIGINT NOT NULL,
		price DECIMAL(15,2) NOT NULL,
		recorded_at DATETIME(3) NOT NULL,
		price_change VARCHAR(10) NOT NULL,
		price_change_amount DECIMAL(15,2) NOT NULL DEFAULT 0,
		INDEX idx_price_history_product (product_id, recorded_at, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS tool_calls (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		params TEXT,
		status VARCHAR(10) NOT NULL,
		retry_count INT NOT NULL DEFAULT 0,
		result TEXT,
		error_message TEXT,
		executed_at DATETIME(3) NOT NULL,
		execution_time_ms BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema 创建表与索引
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	stmts := postgresSchema
	if s.dialect == DialectMySQL {
		stmts = mysqlSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	if s.logger != nil {
		s.logger.Info("relational schema ensured", zap.String("dialect", string(s.dialect)))
	}
	return nil
}

// rebind 将 ? 占位符转换为当前方言的占位符
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const priceColumns = "id, product_id, price, recorded_at, price_change, price_change_amount"

// LatestPrice 商品 recorded_at 最新的价格观测，时间相同时取 id 较大者
func (s *SQLStore) LatestPrice(ctx context.Context, productID int64) (model.PriceObservation, error) {
	query := s.rebind("SELECT " + priceColumns + " FROM " + model.TablePriceHistory +
		" WHERE product_id = ? ORDER BY recorded_at DESC, id DESC LIMIT 1")

	var obs model.PriceObservation
	err := scanPrice(s.db.QueryRowContext(ctx, query, productID), &obs)
	if errors.Is(err, sql.ErrNoRows) {
		return obs, fmt.Errorf("price of product %d: %w", productID, model.ErrNotFound)
	}
	if err != nil {
		return obs, fmt.Errorf("failed to query latest price: %w", err)
	}
	return obs, nil
}

// AppendPrice 追加价格观测
func (s *SQLStore) AppendPrice(ctx context.Context, obs model.PriceObservation) (model.PriceObservation, error) {
	insert := "INSERT INTO " + model.TablePriceHistory +
		" (product_id, price, recorded_at, price_change, price_change_amount) VALUES (?, ?, ?, ?, ?)"
	args := []interface{}{obs.ProductID, obs.Price, obs.RecordedAt.UTC(), string(obs.PriceChange), obs.PriceChangeAmount}

	if s.dialect == DialectPostgres {
		if err := s.db.QueryRowContext(ctx, s.rebind(insert+" RETURNING id"), args...).Scan(&obs.ID); err != nil {
			return obs, fmt.Errorf("failed to insert price: %w", err)
		}
		return obs, nil
	}

	result, err := s.db.ExecContext(ctx, insert, args...)
	if err != nil {
		return obs, fmt.Errorf("failed to insert price: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return obs, fmt.Errorf("failed to read inserted price id: %w", err)
	}
	obs.ID = id
	return obs, nil
}

// PriceHistory 商品价格历史，最新在前
func (s *SQLStore) PriceHistory(ctx context.Context, productID int64, limit int) ([]model.PriceObservation, error) {
	query := s.rebind("SELECT " + priceColumns + " FROM " + model.TablePriceHistory +
		" WHERE product_id = ? ORDER BY recorded_at DESC, id DESC LIMIT ?")

	rows, err := s.db.QueryContext(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var out []model.PriceObservation
	for rows.Next() {
		var obs model.PriceObservation
		if err := scanPrice(rows, &obs); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrice(row rowScanner, obs *model.PriceObservation) error {
	var change string
	if err := row.Scan(&obs.ID, &obs.ProductID, &obs.Price, &obs.RecordedAt, &change, &obs.PriceChangeAmount); err != nil {
		return err
	}
	obs.PriceChange = model.PriceChange(change)
	obs.RecordedAt = obs.RecordedAt.UTC()
	return nil
}

const callColumns = "id, name, params, status, retry_count, result, error_message, executed_at, execution_time_ms, created_at, updated_at"

// CreateCall 保存新调用记录
func (s *SQLStore) CreateCall(ctx context.Context, call model.RetryableCall) error {
	params, err := encodeParams(call.Params)
	if err != nil {
		return err
	}
	query := s.rebind("INSERT INTO " + model.TableToolCalls + " (" + callColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	_, err = s.db.ExecContext(ctx, query,
		call.ID, call.Name, params, string(call.Status), call.RetryCount,
		call.Result, call.ErrorMessage, call.ExecutedAt.UTC(), call.ExecutionTimeMs,
		call.CreatedAt.UTC(), call.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert call: %w", err)
	}
	return nil
}

// GetCall 读取调用记录
func (s *SQLStore) GetCall(ctx context.Context, id string) (model.RetryableCall, error) {
	query := s.rebind("SELECT " + callColumns + " FROM " + model.TableToolCalls + " WHERE id = ?")

	var (
		call                  model.RetryableCall
		params, result, errMs sql.NullString
		status                string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&call.ID, &call.Name, &params, &status, &call.RetryCount,
		&result, &errMs, &call.ExecutedAt, &call.ExecutionTimeMs,
		&call.CreatedAt, &call.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return call, fmt.Errorf("call %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return call, fmt.Errorf("failed to query call: %w", err)
	}

	call.Status = model.CallStatus(status)
	call.Result = result.String
	call.ErrorMessage = errMs.String
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &call.Params); err != nil {
			return call, fmt.Errorf("failed to decode call params: %w", err)
		}
	}
	return call, nil
}

// UpdateCall 更新调用记录的状态字段
func (s *SQLStore) UpdateCall(ctx context.Context, call model.RetryableCall) error {
	query := s.rebind("UPDATE " + model.TableToolCalls +
		" SET status = ?, retry_count = ?, result = ?, error_message = ?, executed_at = ?, execution_time_ms = ?, updated_at = ? WHERE id = ?")
	res, err := s.db.ExecContext(ctx, query,
		string(call.Status), call.RetryCount, call.Result, call.ErrorMessage,
		call.ExecutedAt.UTC(), call.ExecutionTimeMs, call.UpdatedAt.UTC(), call.ID)
	if err != nil {
		return fmt.Errorf("failed to update call: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("call %s: %w", call.ID, model.ErrNotFound)
	}
	return nil
}

func encodeParams(params map[string]string) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode call params: %w", err)
	}
	return string(raw), nil
}
