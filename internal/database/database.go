package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// connectTimeout 建立连接时 ping 的超时
const connectTimeout = 5 * time.Second

// Databases 已启用的后端连接，未启用的字段为 nil
type Databases struct {
	MySQL      *sql.DB
	PostgreSQL *sql.DB
	MongoDB    *mongo.Database
	Redis      *redis.Client
	logger     *zap.Logger
}

// Config 各后端的连接参数
type Config struct {
	MySQL      MySQLConfig
	PostgreSQL PostgreSQLConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	Logger     *zap.Logger
}

// Pool database/sql 连接池参数，零值使用驱动默认值
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MySQLConfig 价格与调用记录的 MySQL 后端
type MySQLConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	Database string
	Charset  string
	Pool     Pool
}

// PostgreSQLConfig 价格与调用记录的 PostgreSQL 后端
type PostgreSQLConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	Database string
	SSLMode  string
	Pool     Pool
}

// MongoDBConfig 趋势样本与聚合结果的 MongoDB 后端
type MongoDBConfig struct {
	Enabled     bool
	URI         string
	Database    string
	AuthSource  string
	Username    string
	Password    string
	MaxPoolSize uint64
}

// RedisConfig 查询缓存的 Redis 后端
type RedisConfig struct {
	Enabled     bool
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

// New 按配置依次连接已启用的后端，任一失败时关闭已建立的连接
func New(cfg Config) (*Databases, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Databases{logger: logger}

	backends := []struct {
		name    string
		enabled bool
		connect func() error
	}{
		{"MySQL", cfg.MySQL.Enabled, func() (err error) {
			d.MySQL, err = openSQL("mysql", MySQLDSN(cfg.MySQL), cfg.MySQL.Pool)
			return err
		}},
		{"PostgreSQL", cfg.PostgreSQL.Enabled, func() (err error) {
			d.PostgreSQL, err = openSQL("postgres", PostgreSQLDSN(cfg.PostgreSQL), cfg.PostgreSQL.Pool)
			return err
		}},
		{"MongoDB", cfg.MongoDB.Enabled, func() (err error) {
			d.MongoDB, err = openMongo(cfg.MongoDB)
			return err
		}},
		{"Redis", cfg.Redis.Enabled, func() (err error) {
			d.Redis, err = openRedis(cfg.Redis)
			return err
		}},
	}

	for _, b := range backends {
		if !b.enabled {
			continue
		}
		if err := b.connect(); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("failed to connect %s: %w", b.name, err)
		}
		logger.Info("database connected", zap.String("backend", b.name))
	}
	return d, nil
}

// MySQLDSN 构造 MySQL 连接串，时间字段按 UTC 解析
func MySQLDSN(cfg MySQLConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.Charset)
}

// PostgreSQLDSN 构造 PostgreSQL 连接串
func PostgreSQLDSN(cfg PostgreSQLConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)
}

func openSQL(driver, dsn string, pool Pool) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

func openMongo(cfg MongoDBConfig) (*mongo.Database, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			AuthSource: cfg.AuthSource,
			Username:   cfg.Username,
			Password:   cfg.Password,
		})
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*connectTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}
	return client.Database(cfg.Database), nil
}

func openRedis(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return client, nil
}

type backendCheck struct {
	name  string
	close func(ctx context.Context) error
	ping  func(ctx context.Context) error
}

// backends 当前已连接的后端
func (d *Databases) backends() []backendCheck {
	var out []backendCheck
	if d.MySQL != nil {
		out = append(out, backendCheck{"MySQL", func(context.Context) error { return d.MySQL.Close() }, d.MySQL.PingContext})
	}
	if d.PostgreSQL != nil {
		out = append(out, backendCheck{"PostgreSQL", func(context.Context) error { return d.PostgreSQL.Close() }, d.PostgreSQL.PingContext})
	}
	if d.MongoDB != nil {
		client := d.MongoDB.Client()
		out = append(out, backendCheck{"MongoDB", client.Disconnect, func(ctx context.Context) error { return client.Ping(ctx, nil) }})
	}
	if d.Redis != nil {
		out = append(out, backendCheck{"Redis", func(context.Context) error { return d.Redis.Close() }, func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }})
	}
	return out
}

// Close 关闭所有已建立的连接，返回合并后的错误
func (d *Databases) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var errs []error
	for _, b := range d.backends() {
		if err := b.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", b.name, err))
			continue
		}
		d.logger.Info("database connection closed", zap.String("backend", b.name))
	}
	return errors.Join(errs...)
}

// Ping 检查已连接后端，返回第一个失败
func (d *Databases) Ping(ctx context.Context) error {
	for _, b := range d.backends() {
		if err := b.ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", b.name, err)
		}
	}
	return nil
}
