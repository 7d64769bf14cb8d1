package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port                   string `mapstructure:"port"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

type AuthConfig struct {
	// HMAC secret for HS* tokens
	JWTSecret string `mapstructure:"jwt_secret"`
	// PEM encoded RSA or ECDSA public key for RS*/ES* tokens
	JWTPublicKeyPEM    string   `mapstructure:"jwt_public_key_pem"`
	AllowedAlgorithms  []string `mapstructure:"allowed_algorithms"`
	MaxTokenAgeMinutes int      `mapstructure:"max_token_age_minutes"`
	LookupTimeoutMs    int      `mapstructure:"lookup_timeout_ms"`
}

type DatabaseConfig struct {
	Driver                 string `mapstructure:"driver"` // postgres | sqlite
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	SlowQueryMs            int    `mapstructure:"slow_query_ms"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
}

type RedisConfig struct {
	Addr                     string `mapstructure:"addr"`
	Password                 string `mapstructure:"password"`
	DB                       int    `mapstructure:"db"`
	CommunityCacheTTLSeconds int    `mapstructure:"community_cache_ttl_seconds"`
	KeyPrefix                string `mapstructure:"key_prefix"`
}

type AuditConfig struct {
	QueueSize       int `mapstructure:"queue_size"`
	BatchSize       int `mapstructure:"batch_size"`
	FlushIntervalMs int `mapstructure:"flush_interval_ms"`
	WriteTimeoutMs  int `mapstructure:"write_timeout_ms"`

	// retention windows, in days
	DenialRetentionDays     int `mapstructure:"denial_retention_days"`
	StandardRetentionDays   int `mapstructure:"standard_retention_days"`
	ComplianceRetentionDays int `mapstructure:"compliance_retention_days"`
}

type LedgerConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
}

type RateLimitConfig struct {
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load() (*Config, error) {
	// .env is optional; real env vars still win over it
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// e.g. GUILDGATE_AUTH_JWT_SECRET
	v.SetEnvPrefix("guildgate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults registers every key so AutomaticEnv can override it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout_seconds", 5)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_public_key_pem", "")
	v.SetDefault("auth.allowed_algorithms", []string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512", "ES256"})
	v.SetDefault("auth.max_token_age_minutes", 1440)
	v.SetDefault("auth.lookup_timeout_ms", 2000)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.slow_query_ms", 200)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.cleanup_interval_minutes", 60)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.community_cache_ttl_seconds", 60)
	v.SetDefault("redis.key_prefix", "guildgate")

	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.batch_size", 50)
	v.SetDefault("audit.flush_interval_ms", 500)
	v.SetDefault("audit.write_timeout_ms", 3000)
	v.SetDefault("audit.denial_retention_days", 30)
	v.SetDefault("audit.standard_retention_days", 90)
	v.SetDefault("audit.compliance_retention_days", 2555)

	v.SetDefault("ledger.max_retries", 5)

	v.SetDefault("rate_limit.qps", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
