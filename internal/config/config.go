package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type InstrumentationConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	ServiceName  string  `mapstructure:"service_name"`
}

type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Storage         StorageConfig         `mapstructure:"storage"`
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation"`
	Webhooks        WebhookConfig         `mapstructure:"webhooks"`
	Ingest          IngestConfig          `mapstructure:"ingest"`
	Invitations     InvitationConfig      `mapstructure:"invitations"`
	Maintenance     MaintenanceConfig     `mapstructure:"maintenance"`
	JWTSecret       string                `mapstructure:"jwt_secret"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	LocalPath   string `mapstructure:"local_path"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	CORSOrigins string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// WebhookConfig controls outbound webhook delivery.
// A zero Timeout leaves the HTTP transport defaults in charge.
type WebhookConfig struct {
	UserAgent        string        `mapstructure:"user_agent"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes"`
	MaxConcurrency   int           `mapstructure:"max_concurrency"`
}

// IngestConfig holds the defaults applied to bookings pushed by the automation platform.
type IngestConfig struct {
	Source          string `mapstructure:"source"`
	DefaultCurrency string `mapstructure:"default_currency"`
	DefaultTourTime string `mapstructure:"default_tour_time"`
}

type InvitationConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type MaintenanceConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.IsSQLite() {
		if d.Name == ":memory:" {
			return "file::memory:?cache=shared"
		}
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// CORSOriginList splits the comma separated origin list.
func (s ServerConfig) CORSOriginList() []string {
	var out []string
	for _, o := range strings.Split(s.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "tours")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("jwt_secret", "changeme-secret")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_path", "./uploads")
	v.SetDefault("storage.max_file_size", 10485760)
	v.SetDefault("instrumentation.enabled", true)
	v.SetDefault("instrumentation.sampling_rate", 1.0)
	v.SetDefault("instrumentation.service_name", "tours-backend")
	v.SetDefault("webhooks.user_agent", "OutdoorTours-BookingManager/1.0")
	v.SetDefault("webhooks.timeout", time.Duration(0))
	v.SetDefault("webhooks.max_response_bytes", 65536)
	v.SetDefault("webhooks.max_concurrency", 4)
	v.SetDefault("ingest.source", "zapier")
	v.SetDefault("ingest.default_currency", "EUR")
	v.SetDefault("ingest.default_tour_time", "09:00")
	v.SetDefault("invitations.ttl", 7*24*time.Hour)
	v.SetDefault("maintenance.sweep_interval", time.Hour)
}

// Load reads .env (optional), app.yaml (optional) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../..")
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Webhooks.MaxConcurrency < 1 {
		cfg.Webhooks.MaxConcurrency = 1
	}

	return &cfg, nil
}
