package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	TrendSource TrendSourceConfig `mapstructure:"trend_source"`
	Pricing     PricingConfig     `mapstructure:"pricing"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Server      ServerConfig      `mapstructure:"server"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Env     string `mapstructure:"env"` // development, production
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	DefaultTimeout string `mapstructure:"default_timeout"` // 例如: "30m"
	Location       string `mapstructure:"location"`        // 例如: "Asia/Seoul"
	DailyCron      string `mapstructure:"daily_cron"`      // 带秒字段的 cron 表达式
	WeeklyCron     string `mapstructure:"weekly_cron"`
	MonthlyCron    string `mapstructure:"monthly_cron"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // 日志输出路径
	MaxSize    int    `mapstructure:"max_size"`    // 日志文件最大大小(MB)
	MaxBackups int    `mapstructure:"max_backups"` // 保留的日志文件数量
	MaxAge     int    `mapstructure:"max_age"`     // 日志保留天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧日志
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	PostgreSQL PostgreSQLConfig `mapstructure:"postgresql"`
	MongoDB    MongoDBConfig    `mapstructure:"mongodb"`
}

// MySQLConfig MySQL 配置
type MySQLConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Charset  string `mapstructure:"charset"`
	// 连接池配置
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeStr string `mapstructure:"conn_max_lifetime"`

	// 解析后的时间，由 Load 函数填充
	ConnMaxLifetime time.Duration
}

// PostgreSQLConfig PostgreSQL 配置
type PostgreSQLConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	// 连接池配置
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeStr string `mapstructure:"conn_max_lifetime"`

	// 解析后的时间，由 Load 函数填充
	ConnMaxLifetime time.Duration
}

// MongoDBConfig MongoDB 配置
type MongoDBConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	AuthSource  string `mapstructure:"auth_source"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Addr           string `mapstructure:"addr"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	PoolSize       int    `mapstructure:"pool_size"`
	DialTimeoutStr string `mapstructure:"dial_timeout"`

	DialTimeout time.Duration
}

// StorageConfig 存储后端选择
type StorageConfig struct {
	Trend      string `mapstructure:"trend"`      // memory, mongodb
	Relational string `mapstructure:"relational"` // memory, postgresql, mysql
}

// CacheConfig 查询缓存配置
type CacheConfig struct {
	Backend       string `mapstructure:"backend"` // memory, redis
	Prefix        string `mapstructure:"prefix"`
	DefaultTTLStr string `mapstructure:"default_ttl"`

	DefaultTTL time.Duration
}

// AggregationConfig 聚合任务配置
type AggregationConfig struct {
	Workers          int      `mapstructure:"workers"`        // 单批次内并行处理的关键词数
	Epsilon          float64  `mapstructure:"epsilon"`        // 判定涨跌的平均比率差阈值
	SourceRetries    int      `mapstructure:"source_retries"` // 趋势源调用失败的重试次数（最多 3）
	SourceTimeoutStr string   `mapstructure:"source_timeout"`
	BatchTimeoutStr  string   `mapstructure:"batch_timeout"`
	Keywords         []string `mapstructure:"keywords"` // 定时任务固定处理的关键词

	SourceTimeout time.Duration
	BatchTimeout  time.Duration
}

// TrendSourceConfig 外部趋势数据源配置
type TrendSourceConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	BaseURL           string `mapstructure:"base_url"`
	ClientID          string `mapstructure:"client_id"`
	ClientSecret      string `mapstructure:"client_secret"`
	Category          string `mapstructure:"category"`
	TimeoutStr        string `mapstructure:"timeout"`
	Breakdowns        bool   `mapstructure:"breakdowns"`          // 是否拉取设备/性别/年龄分布
	PrintResponseBody bool   `mapstructure:"print_response_body"` // 是否打印响应体（用于调试）

	Timeout time.Duration
}

// PricingConfig 价格跟踪配置
type PricingConfig struct {
	SerializePerProduct bool `mapstructure:"serialize_per_product"`
}

// MonitoringConfig 健康检查阈值与监控报告
type MonitoringConfig struct {
	MinCacheHitRate        float64 `mapstructure:"min_cache_hit_rate"`
	MinCacheSamples        int64   `mapstructure:"min_cache_samples"` // 样本不足时不评估命中率
	MaxConsecutiveFailures int64   `mapstructure:"max_consecutive_failures"`
	MaxResponseTimeMs      int64   `mapstructure:"max_response_time_ms"`
	ReportCron             string  `mapstructure:"report_cron"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"` // 是否启用服务器
	Host    string `mapstructure:"host"`    // 监听地址
	Port    int    `mapstructure:"port"`    // 监听端口
	Mode    string `mapstructure:"mode"`    // gin 模式: debug, release, test
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	if configPath != "" {
		viper.AddConfigPath(configPath)
	}

	// 设置环境变量，例如 SHOPTREND_REDIS_ADDR
	viper.SetEnvPrefix("SHOPTREND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 解析时间字符串
	if err := config.parseDurations(); err != nil {
		return nil, fmt.Errorf("failed to parse durations: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// parseDurations 解析时间字符串
func (c *Config) parseDurations() error {
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"database.mysql.conn_max_lifetime", c.Database.MySQL.ConnMaxLifetimeStr, &c.Database.MySQL.ConnMaxLifetime},
		{"database.postgresql.conn_max_lifetime", c.Database.PostgreSQL.ConnMaxLifetimeStr, &c.Database.PostgreSQL.ConnMaxLifetime},
		{"redis.dial_timeout", c.Redis.DialTimeoutStr, &c.Redis.DialTimeout},
		{"cache.default_ttl", c.Cache.DefaultTTLStr, &c.Cache.DefaultTTL},
		{"aggregation.source_timeout", c.Aggregation.SourceTimeoutStr, &c.Aggregation.SourceTimeout},
		{"aggregation.batch_timeout", c.Aggregation.BatchTimeoutStr, &c.Aggregation.BatchTimeout},
		{"trend_source.timeout", c.TrendSource.TimeoutStr, &c.TrendSource.Timeout},
	}

	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		duration, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = duration
	}
	return nil
}

// Validate 检查配置组合是否可用
func (c *Config) Validate() error {
	switch c.Storage.Trend {
	case "memory":
	case "mongodb":
		if !c.Database.MongoDB.Enabled {
			return fmt.Errorf("storage.trend=mongodb requires database.mongodb.enabled")
		}
	default:
		return fmt.Errorf("unknown storage.trend %q", c.Storage.Trend)
	}

	switch c.Storage.Relational {
	case "memory":
	case "postgresql":
		if !c.Database.PostgreSQL.Enabled {
			return fmt.Errorf("storage.relational=postgresql requires database.postgresql.enabled")
		}
	case "mysql":
		if !c.Database.MySQL.Enabled {
			return fmt.Errorf("storage.relational=mysql requires database.mysql.enabled")
		}
	default:
		return fmt.Errorf("unknown storage.relational %q", c.Storage.Relational)
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("cache.backend=redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}

	if c.Aggregation.Workers < 1 {
		return fmt.Errorf("aggregation.workers must be >= 1")
	}
	if c.Aggregation.SourceRetries < 0 || c.Aggregation.SourceRetries > 3 {
		return fmt.Errorf("aggregation.source_retries must be between 0 and 3")
	}
	if c.Aggregation.Epsilon < 0 {
		return fmt.Errorf("aggregation.epsilon must not be negative")
	}
	if c.Monitoring.MinCacheHitRate < 0 || c.Monitoring.MinCacheHitRate > 1 {
		return fmt.Errorf("monitoring.min_cache_hit_rate must be between 0 and 1")
	}
	if c.TrendSource.Enabled && c.TrendSource.BaseURL == "" {
		return fmt.Errorf("trend_source.base_url is required when trend_source.enabled")
	}
	return nil
}

// setDefaults 设置默认配置值
func setDefaults() {
	// App 默认值
	viper.SetDefault("app.name", "shoptrend")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.env", "development")

	// Scheduler 默认值
	viper.SetDefault("scheduler.default_timeout", "30m")
	viper.SetDefault("scheduler.location", "Asia/Seoul")
	viper.SetDefault("scheduler.daily_cron", "0 10 1 * * *")  // 每天 01:10
	viper.SetDefault("scheduler.weekly_cron", "0 30 1 * * 1") // 每周一 01:30
	viper.SetDefault("scheduler.monthly_cron", "0 0 2 1 * *") // 每月 1 日 02:00

	// Logger 默认值
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.output_path", "logs/app.log")
	viper.SetDefault("logger.max_size", 100)
	viper.SetDefault("logger.max_backups", 3)
	viper.SetDefault("logger.max_age", 7)
	viper.SetDefault("logger.compress", true)

	// Database 默认值
	// MySQL
	viper.SetDefault("database.mysql.enabled", false)
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", 3306)
	viper.SetDefault("database.mysql.charset", "utf8mb4")
	viper.SetDefault("database.mysql.max_open_conns", 25)
	viper.SetDefault("database.mysql.max_idle_conns", 5)
	viper.SetDefault("database.mysql.conn_max_lifetime", "5m")

	// PostgreSQL
	viper.SetDefault("database.postgresql.enabled", false)
	viper.SetDefault("database.postgresql.host", "localhost")
	viper.SetDefault("database.postgresql.port", 5432)
	viper.SetDefault("database.postgresql.sslmode", "disable")
	viper.SetDefault("database.postgresql.max_open_conns", 25)
	viper.SetDefault("database.postgresql.max_idle_conns", 5)
	viper.SetDefault("database.postgresql.conn_max_lifetime", "5m")

	// MongoDB
	viper.SetDefault("database.mongodb.enabled", false)
	viper.SetDefault("database.mongodb.uri", "mongodb://localhost:27017")
	viper.SetDefault("database.mongodb.database", "shoptrend")
	viper.SetDefault("database.mongodb.auth_source", "admin")
	viper.SetDefault("database.mongodb.max_pool_size", 100)

	// Redis
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 20)
	viper.SetDefault("redis.dial_timeout", "5s")

	// Storage
	viper.SetDefault("storage.trend", "memory")
	viper.SetDefault("storage.relational", "memory")

	// Cache
	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("cache.prefix", "trend")
	viper.SetDefault("cache.default_ttl", "10m")

	// Aggregation
	viper.SetDefault("aggregation.workers", 4)
	viper.SetDefault("aggregation.epsilon", 0.5)
	viper.SetDefault("aggregation.source_retries", 2)
	viper.SetDefault("aggregation.source_timeout", "10s")
	viper.SetDefault("aggregation.batch_timeout", "20m")
	viper.SetDefault("aggregation.keywords", []string{})

	// Trend source
	viper.SetDefault("trend_source.enabled", false)
	viper.SetDefault("trend_source.base_url", "https://openapi.naver.com")
	viper.SetDefault("trend_source.category", "50000000")
	viper.SetDefault("trend_source.timeout", "15s")
	viper.SetDefault("trend_source.breakdowns", false)
	viper.SetDefault("trend_source.print_response_body", false) // 默认不打印响应体

	// Pricing
	viper.SetDefault("pricing.serialize_per_product", false)

	// Monitoring
	viper.SetDefault("monitoring.min_cache_hit_rate", 0.5)
	viper.SetDefault("monitoring.min_cache_samples", 100)
	viper.SetDefault("monitoring.max_consecutive_failures", 3)
	viper.SetDefault("monitoring.max_response_time_ms", 5000)
	viper.SetDefault("monitoring.report_cron", "0 */15 * * * *")

	// Server 默认值
	viper.SetDefault("server.enabled", true)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")
}

// GetDefaultTimeout 获取默认超时时间
func (c *Config) GetDefaultTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Scheduler.DefaultTimeout)
}

// GetLocation 获取时区
func (c *Config) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Scheduler.Location)
}
