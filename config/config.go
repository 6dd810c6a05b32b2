package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Redis    RedisConfig
	Log      LogConfig
	Map      MapConfig
	Tracker  TrackerConfig
	Dispatch DispatchConfig
}

type ServerConfig struct {
	Port         string        `validate:"required"`
	Env          string        `validate:"oneof=development production test"`
	ReadTimeout  time.Duration `validate:"gt=0"`
	WriteTimeout time.Duration `validate:"gt=0"`
	RateLimit    int           `validate:"gte=0"`
	// Manager account created on first start when no user with this email exists.
	SeedEmail    string
	SeedPassword string
}

type DatabaseConfig struct {
	Driver          string `validate:"oneof=mysql sqlite"`
	DSN             string `validate:"required"`
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string        `validate:"required"`
	AccessExpiry time.Duration `validate:"gt=0"`
	Issuer       string
}

// RedisConfig enables the shared location list cache when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

type MapConfig struct {
	// APIKey is used when the map.api_key system setting is empty.
	APIKey       string
	ListCacheTTL time.Duration
	RouteBaseURL string  `validate:"required,url"`
	CenterLat    float64 `validate:"gte=-90,lte=90"`
	CenterLon    float64 `validate:"gte=-180,lte=180"`
	DefaultZoom  int     `validate:"gte=0,lte=21"`
}

// TrackerConfig configures the courier device agent.
type TrackerConfig struct {
	BackendURL   string `validate:"required,url"`
	Token        string
	DataPath     string `validate:"required"`
	DevicePath   string
	LineDelay    time.Duration
	WatchTimeout time.Duration `validate:"gt=0"`
	PingInterval time.Duration `validate:"gt=0"`
	RetryBackoff time.Duration `validate:"gt=0"`
	CallTimeout  time.Duration `validate:"gt=0"`
	StatusAddr   string
}

// DispatchConfig configures the manager map console.
type DispatchConfig struct {
	Addr            string `validate:"required"`
	BackendURL      string `validate:"required,url"`
	Token           string
	RefreshInterval time.Duration `validate:"gt=0"`
	FrameInterval   time.Duration `validate:"gt=0"`
	FrameBudget     int           `validate:"gt=0"`
	InitAttempts    int           `validate:"gt=0"`
	InitRetryDelay  time.Duration `validate:"gte=0"`
	CallTimeout     time.Duration `validate:"gt=0"`
}

// Load reads configuration with this priority (highest first):
// COURIERLOC_* environment variables, config.toml, built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/courierloc")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("COURIERLOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8099")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 300)
	v.SetDefault("server.seed_email", "manager@courierloc.local")
	v.SetDefault("server.seed_password", "change-me")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "courierloc.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("jwt.access_secret", "change-me-in-production")
	v.SetDefault("jwt.access_expiry", 720*time.Hour)
	v.SetDefault("jwt.issuer", "courierloc")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("map.list_cache_ttl", time.Second)
	v.SetDefault("map.route_base_url", "https://yandex.uz/maps/")
	v.SetDefault("map.center_lat", 41.3111)
	v.SetDefault("map.center_lon", 69.2797)
	v.SetDefault("map.default_zoom", 11)

	v.SetDefault("tracker.backend_url", "http://localhost:8099")
	v.SetDefault("tracker.data_path", "courier-agent.db")
	v.SetDefault("tracker.watch_timeout", 60*time.Second)
	v.SetDefault("tracker.ping_interval", 30*time.Second)
	v.SetDefault("tracker.retry_backoff", 5*time.Second)
	v.SetDefault("tracker.call_timeout", 10*time.Second)
	v.SetDefault("tracker.status_addr", "127.0.0.1:8097")

	v.SetDefault("dispatch.addr", ":8098")
	v.SetDefault("dispatch.backend_url", "http://localhost:8099")
	v.SetDefault("dispatch.refresh_interval", 2*time.Second)
	v.SetDefault("dispatch.frame_interval", 16*time.Millisecond)
	v.SetDefault("dispatch.frame_budget", 600)
	v.SetDefault("dispatch.init_attempts", 5)
	v.SetDefault("dispatch.init_retry_delay", 500*time.Millisecond)
	v.SetDefault("dispatch.call_timeout", 10*time.Second)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:         v.GetString("server.port"),
			Env:          v.GetString("server.env"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			RateLimit:    v.GetInt("server.rate_limit"),
			SeedEmail:    v.GetString("server.seed_email"),
			SeedPassword: v.GetString("server.seed_password"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			DSN:             v.GetString("database.dsn"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		JWT: JWTConfig{
			AccessSecret: v.GetString("jwt.access_secret"),
			AccessExpiry: v.GetDuration("jwt.access_expiry"),
			Issuer:       v.GetString("jwt.issuer"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Map: MapConfig{
			APIKey:       v.GetString("map.api_key"),
			ListCacheTTL: v.GetDuration("map.list_cache_ttl"),
			RouteBaseURL: v.GetString("map.route_base_url"),
			CenterLat:    v.GetFloat64("map.center_lat"),
			CenterLon:    v.GetFloat64("map.center_lon"),
			DefaultZoom:  v.GetInt("map.default_zoom"),
		},
		Tracker: TrackerConfig{
			BackendURL:   v.GetString("tracker.backend_url"),
			Token:        v.GetString("tracker.token"),
			DataPath:     v.GetString("tracker.data_path"),
			DevicePath:   v.GetString("tracker.device_path"),
			LineDelay:    v.GetDuration("tracker.line_delay"),
			WatchTimeout: v.GetDuration("tracker.watch_timeout"),
			PingInterval: v.GetDuration("tracker.ping_interval"),
			RetryBackoff: v.GetDuration("tracker.retry_backoff"),
			CallTimeout:  v.GetDuration("tracker.call_timeout"),
			StatusAddr:   v.GetString("tracker.status_addr"),
		},
		Dispatch: DispatchConfig{
			Addr:            v.GetString("dispatch.addr"),
			BackendURL:      v.GetString("dispatch.backend_url"),
			Token:           v.GetString("dispatch.token"),
			RefreshInterval: v.GetDuration("dispatch.refresh_interval"),
			FrameInterval:   v.GetDuration("dispatch.frame_interval"),
			FrameBudget:     v.GetInt("dispatch.frame_budget"),
			InitAttempts:    v.GetInt("dispatch.init_attempts"),
			InitRetryDelay:  v.GetDuration("dispatch.init_retry_delay"),
			CallTimeout:     v.GetDuration("dispatch.call_timeout"),
		},
	}
}

// Validate checks field constraints declared in struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
