package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Production ProductionConfig `mapstructure:"production"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN postgres 连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Enabled 未配置 endpoint 时不归档报表
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ProductionConfig 生产业务策略
type ProductionConfig struct {
	AutoCompleteThreshold float64 `mapstructure:"auto_complete_threshold"`
	ProgressWeighting     string  `mapstructure:"progress_weighting"`
	AutoCompleteOrder     bool    `mapstructure:"auto_complete_order"`
	StopReasonMinLength   int     `mapstructure:"stop_reason_min_length"`
	// OnShortage 建单时原料不足的处理: reject | partial | draft_po
	OnShortage  string        `mapstructure:"on_shortage"`
	LockBackend string        `mapstructure:"lock_backend"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	LockWait    time.Duration `mapstructure:"lock_wait"`
	CatalogFile string        `mapstructure:"catalog_file"`
}

// Policy 转换为引擎策略
func (c ProductionConfig) Policy() engine.Policy {
	return engine.Policy{
		AutoCompleteThreshold: c.AutoCompleteThreshold,
		ProgressWeighting:     c.ProgressWeighting,
		AutoCompleteOrder:     c.AutoCompleteOrder,
		StopReasonMinLength:   c.StopReasonMinLength,
	}
}

func Load() (*Config, error) {
	v := viper.New()

	// 设置配置文件
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// 配置文件不存在，使用默认值和环境变量
	}

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "nimo")
	v.SetDefault("database.dbname", "nimo_mes")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 10*time.Minute)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("minio.bucket", "mes-reports")

	v.SetDefault("jwt.issuer", "nimo-mes")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("production.auto_complete_threshold", engine.DefaultAutoCompleteThreshold)
	v.SetDefault("production.progress_weighting", engine.ProgressWeightingEqual)
	v.SetDefault("production.auto_complete_order", true)
	v.SetDefault("production.stop_reason_min_length", engine.DefaultStopReasonMinLength)
	v.SetDefault("production.on_shortage", "reject")
	v.SetDefault("production.lock_backend", "local")
	v.SetDefault("production.lock_ttl", 30*time.Second)
	v.SetDefault("production.lock_wait", 10*time.Second)
	v.SetDefault("production.catalog_file", "configs/products.yaml")
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// MinIO
	v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("minio.bucket", "MINIO_BUCKET")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// 生产策略
	v.BindEnv("production.auto_complete_threshold", "MES_AUTO_COMPLETE_THRESHOLD")
	v.BindEnv("production.progress_weighting", "MES_PROGRESS_WEIGHTING")
	v.BindEnv("production.on_shortage", "MES_ON_SHORTAGE")
	v.BindEnv("production.lock_backend", "MES_LOCK_BACKEND")
}

// Validate 校验配置取值范围
func (c *Config) Validate() error {
	if err := c.Production.Policy().Validate(); err != nil {
		return err
	}
	switch c.Production.OnShortage {
	case "reject", "partial", "draft_po":
	default:
		return fmt.Errorf("unknown production.on_shortage %q", c.Production.OnShortage)
	}
	switch c.Production.LockBackend {
	case "local", "redis":
	default:
		return fmt.Errorf("unknown production.lock_backend %q", c.Production.LockBackend)
	}
	if c.Production.LockTTL <= 0 {
		return fmt.Errorf("production.lock_ttl must be positive")
	}
	return nil
}

// GetEnvOrDefault 获取环境变量，如果不存在则返回默认值
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
