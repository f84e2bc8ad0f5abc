package configs

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"session-sync/pkg/backoff"
	dbpkg "session-sync/pkg/database_driver/gorm"
	"session-sync/pkg/logging"
	"session-sync/pkg/validator"
)

// Config struct
type Config struct {
	App       `mapstructure:"app"`
	Log       `mapstructure:"log"`
	Backend   `mapstructure:"backend"`
	Sync      `mapstructure:"sync"`
	Retry     `mapstructure:"retry"`
	Database  `mapstructure:"database"`
	Lifecycle `mapstructure:"lifecycle"`
}

// App struct
type App struct {
	Debug bool   `mapstructure:"debug"`
	Env   string `mapstructure:"env"`
	Port  string `mapstructure:"port" validate:"required,numeric"`
}

// Log struct
type Log struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// Backend struct - remote session backend
type Backend struct {
	BaseURL        string `mapstructure:"base_url" validate:"required,url"`
	UserID         string `mapstructure:"user_id" validate:"required"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
	StatsPath      string `mapstructure:"stats_path"`
	StreamPath     string `mapstructure:"stream_path"`
}

// Sync struct - cache bound, paging and the background refresh loop
type Sync struct {
	MaxCachedSessions         int `mapstructure:"max_cached_sessions" validate:"gte=1"`
	PageSize                  int `mapstructure:"page_size" validate:"gte=1,lte=100"`
	MaxPages                  int `mapstructure:"max_pages" validate:"gte=1"`
	BackgroundIntervalSeconds int `mapstructure:"background_interval_seconds" validate:"gte=1"`
	HistoryLimit              int `mapstructure:"history_limit" validate:"gte=1"`
	CacheIdleMinutes          int `mapstructure:"cache_idle_minutes" validate:"gte=0"`
}

// Retry struct - shared backoff policy
type Retry struct {
	MaxAttempts int     `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	BaseDelayMs int     `mapstructure:"base_delay_ms" validate:"gte=1"`
	MaxDelayMs  int     `mapstructure:"max_delay_ms" validate:"gtefield=BaseDelayMs"`
	Multiplier  float64 `mapstructure:"multiplier" validate:"gte=1"`
	Jitter      float64 `mapstructure:"jitter" validate:"gte=0,lt=1"`
}

// Database struct - sqlite by default; postgres takes a dsn or the host fields
type Database struct {
	Driver   string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DbName   string `mapstructure:"database"`
	SSLMode  bool   `mapstructure:"sslmode"`
}

// Lifecycle struct - background grant and the emergency flush deadline
type Lifecycle struct {
	GrantSeconds            int  `mapstructure:"grant_seconds" validate:"gte=1"`
	EmergencyTimeoutSeconds int  `mapstructure:"emergency_timeout_seconds" validate:"gte=1"`
	Signals                 bool `mapstructure:"signals"`
}

var (
	config   Config
	configMu sync.RWMutex
	v        *viper.Viper
)

// defaults are registered with viper so AutomaticEnv can bind every key
var defaults = map[string]interface{}{
	"app.debug":                           false,
	"app.env":                             "local",
	"app.port":                            "9089",
	"log.level":                           "info",
	"log.format":                          "text",
	"backend.base_url":                    "http://localhost:8000/claude",
	"backend.user_id":                     "default_user",
	"backend.timeout_seconds":             30,
	"backend.stats_path":                  "/session-stats",
	"backend.stream_path":                 "/stream",
	"sync.max_cached_sessions":            20,
	"sync.page_size":                      50,
	"sync.max_pages":                      20,
	"sync.background_interval_seconds":    60,
	"sync.history_limit":                  100,
	"sync.cache_idle_minutes":             0,
	"retry.max_attempts":                  3,
	"retry.base_delay_ms":                 500,
	"retry.max_delay_ms":                  8000,
	"retry.multiplier":                    2.0,
	"retry.jitter":                        0.2,
	"database.driver":                     "sqlite",
	"database.dsn":                        "",
	"database.host":                       "",
	"database.port":                       "5432",
	"database.username":                   "",
	"database.password":                   "",
	"database.database":                   "",
	"database.sslmode":                    false,
	"lifecycle.grant_seconds":             25,
	"lifecycle.emergency_timeout_seconds": 2,
	"lifecycle.signals":                   true,
}

// InitViper func - reads config.yaml from path, then config.<env>.yaml when present
func InitViper(path, env string) {
	if err := Load(path, env); err != nil {
		panic(err)
	}
}

// Load is InitViper returning the error instead of panicking
func Load(path, env string) error {
	nv := viper.New()
	for key, value := range defaults {
		nv.SetDefault(key, value)
	}
	nv.SetConfigName("config")
	nv.SetConfigType("yaml")
	nv.AddConfigPath(path)
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()

	found := true
	if err := nv.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
		found = false
		logrus.Warnf("No config file in %s, using defaults and environment", path)
	}

	if env != "" && found {
		nv.SetConfigName("config." + env)
		if err := nv.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("merge config.%s: %w", env, err)
			}
		}
	}

	cfg, err := decode(nv)
	if err != nil {
		return err
	}
	if env != "" {
		cfg.App.Env = env
	}

	configMu.Lock()
	config = cfg
	v = nv
	configMu.Unlock()

	if found {
		nv.WatchConfig()
		nv.OnConfigChange(func(e fsnotify.Event) {
			logrus.Infof("Config file has changed: %s", e.Name)
			reloaded, err := decode(nv)
			if err != nil {
				logrus.Errorf("Ignoring invalid config change: %v", err)
				return
			}
			configMu.Lock()
			config = reloaded
			configMu.Unlock()
			logging.Configure(logging.Config{Level: reloaded.Log.Level, Format: reloaded.Log.Format})
		})
	}
	return nil
}

func decode(nv *viper.Viper) (Config, error) {
	var cfg Config
	if err := nv.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GetViper func
func GetViper() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	c := config
	return &c
}

// ApplyDefaults fills zero values that a partial file or env may leave behind
func (c *Config) ApplyDefaults() {
	if c.App.Port == "" {
		c.App.Port = "9089"
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 30
	}
	if c.Sync.MaxCachedSessions <= 0 {
		c.Sync.MaxCachedSessions = 20
	}
	if c.Sync.PageSize <= 0 {
		c.Sync.PageSize = 50
	}
	if c.Sync.MaxPages <= 0 {
		c.Sync.MaxPages = 20
	}
	if c.Sync.BackgroundIntervalSeconds <= 0 {
		c.Sync.BackgroundIntervalSeconds = 60
	}
	if c.Sync.HistoryLimit <= 0 {
		c.Sync.HistoryLimit = 100
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = backoff.DefaultMaxAttempts
	}
	if c.Retry.BaseDelayMs <= 0 {
		c.Retry.BaseDelayMs = int(backoff.DefaultBaseDelay / time.Millisecond)
	}
	if c.Retry.MaxDelayMs <= 0 {
		c.Retry.MaxDelayMs = int(backoff.DefaultMaxDelay / time.Millisecond)
	}
	if c.Retry.Multiplier < 1 {
		c.Retry.Multiplier = backoff.DefaultMultiplier
	}
	if c.Database.Driver == "" {
		c.Database.Driver = dbpkg.DriverSQLite
	}
	if c.Lifecycle.GrantSeconds <= 0 {
		c.Lifecycle.GrantSeconds = 25
	}
	if c.Lifecycle.EmergencyTimeoutSeconds <= 0 {
		c.Lifecycle.EmergencyTimeoutSeconds = 2
	}
}

// Validate checks the struct tags
func (c *Config) Validate() error {
	if err := validator.New().ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Policy builds the backoff policy for a retry predicate
func (r Retry) Policy(name string, retryable func(error) bool) backoff.Policy {
	p := backoff.New(retryable)
	p.Name = name
	p.MaxAttempts = r.MaxAttempts
	p.BaseDelay = time.Duration(r.BaseDelayMs) * time.Millisecond
	p.MaxDelay = time.Duration(r.MaxDelayMs) * time.Millisecond
	p.Multiplier = r.Multiplier
	p.Jitter = r.Jitter
	return p
}

// BackgroundInterval func
func (s Sync) BackgroundInterval() time.Duration {
	return time.Duration(s.BackgroundIntervalSeconds) * time.Second
}

// CacheIdleTimeout returns 0 when idle expiry is off
func (s Sync) CacheIdleTimeout() time.Duration {
	return time.Duration(s.CacheIdleMinutes) * time.Minute
}

// Grant func
func (l Lifecycle) Grant() time.Duration {
	return time.Duration(l.GrantSeconds) * time.Second
}

// EmergencyTimeout func
func (l Lifecycle) EmergencyTimeout() time.Duration {
	return time.Duration(l.EmergencyTimeoutSeconds) * time.Second
}

// ConnectionString returns the dsn, building one from the host fields for postgres
func (d Database) ConnectionString() string {
	if d.DSN != "" || d.Driver != dbpkg.DriverPostgres {
		return d.DSN
	}
	if d.Host == "" {
		return ""
	}
	return dbpkg.PostgresDSN(d.Host, d.Port, d.Username, d.Password, d.DbName, d.SSLMode)
}
