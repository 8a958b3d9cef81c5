package database

import (
	"shoptrend/internal/config"

	"go.uber.org/zap"
)

// ConfigFromAppConfig 从应用配置转换为数据库配置
//
// 只启用当前存储与缓存后端实际需要的连接。
func ConfigFromAppConfig(cfg *config.Config, logger *zap.Logger) Config {
	my, pg, mg := cfg.Database.MySQL, cfg.Database.PostgreSQL, cfg.Database.MongoDB
	return Config{
		MySQL: MySQLConfig{
			Enabled:  my.Enabled && cfg.Storage.Relational == "mysql",
			Host:     my.Host,
			Port:     my.Port,
			Username: my.Username,
			Password: my.Password,
			Database: my.Database,
			Charset:  my.Charset,
			Pool:     Pool{MaxOpenConns: my.MaxOpenConns, MaxIdleConns: my.MaxIdleConns, ConnMaxLifetime: my.ConnMaxLifetime},
		},
		PostgreSQL: PostgreSQLConfig{
			Enabled:  pg.Enabled && cfg.Storage.Relational == "postgresql",
			Host:     pg.Host,
			Port:     pg.Port,
			Username: pg.Username,
			Password: pg.Password,
			Database: pg.Database,
			SSLMode:  pg.SSLMode,
			Pool:     Pool{MaxOpenConns: pg.MaxOpenConns, MaxIdleConns: pg.MaxIdleConns, ConnMaxLifetime: pg.ConnMaxLifetime},
		},
		MongoDB: MongoDBConfig{
			Enabled:     mg.Enabled && cfg.Storage.Trend == "mongodb",
			URI:         mg.URI,
			Database:    mg.Database,
			AuthSource:  mg.AuthSource,
			Username:    mg.Username,
			Password:    mg.Password,
			MaxPoolSize: mg.MaxPoolSize,
		},
		Redis: RedisConfig{
			Enabled:     cfg.Redis.Enabled && cfg.Cache.Backend == "redis",
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
		},
		Logger: logger,
	}
}
