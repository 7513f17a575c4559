package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Licensing LicensingConfig `mapstructure:"licensing"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Webhooks  WebhooksConfig  `mapstructure:"webhooks"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Workers   WorkersConfig   `mapstructure:"workers"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type StorageConfig struct {
	// Driver is one of "memory", "jsonfile", "sqlite".
	Driver  string       `mapstructure:"driver"`
	DataDir string       `mapstructure:"data_dir"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

type LicensingConfig struct {
	KeyPrefix     string        `mapstructure:"key_prefix"`
	ResetCooldown time.Duration `mapstructure:"reset_cooldown"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type RateLimitConfig struct {
	VerifyPerMinute int      `mapstructure:"verify_per_minute"`
	Burst           int      `mapstructure:"burst"`
	TrustedProxies  []string `mapstructure:"trusted_proxies"`
}

type WebhooksConfig struct {
	Secret string `mapstructure:"secret"`
}

type WorkersConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	AuditRetention time.Duration `mapstructure:"audit_retention"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("storage.driver", "jsonfile")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.sqlite.path", "data/keyhub.db")
	v.SetDefault("storage.sqlite.max_connections", 4)
	v.SetDefault("storage.sqlite.auto_migrate", true)

	v.SetDefault("licensing.key_prefix", "ZPOFES-")
	v.SetDefault("licensing.reset_cooldown", 24*time.Hour)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "keyhub")
	v.SetDefault("jwt.access_token_ttl", 12*time.Hour)

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password_hash", "")

	v.SetDefault("rate_limit.verify_per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.trusted_proxies", []string{})

	v.SetDefault("webhooks.secret", "")

	v.SetDefault("workers.interval", time.Hour)
	v.SetDefault("workers.audit_retention", 90*24*time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
}

// Load reads the YAML file at path. Environment variables override file
// values using the upper-cased key with "." replaced by "_" (STORAGE_DRIVER).
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
