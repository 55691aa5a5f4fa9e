// Package config reads settings from the environment (and an optional .env
// file) with defaults for everything except secrets.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr             string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	JWTSecret            string

	DatabaseDriver string
	DatabaseURL    string
	RedisAddr      string
	AMQPURL        string
	QueueWorkers   int

	SoonThresholdDays int
	LookaheadDays     int
	AlertHour         int
	AlertMinute       int
	OverdueAlertDelay time.Duration
	StreakGraceDays   int
	UpcomingDays      int
	StatsLocation     *time.Location
	DeviceLocation    *time.Location
	SweepInterval     time.Duration
	SnapshotTTL       time.Duration

	SMTPHost        string
	SMTPPort        int
	EmailFrom       string
	DeliveryTimeout time.Duration

	LogLevel  slog.Level
	LogFormat string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("cors_allowed_origins", "")
	v.SetDefault("cors_allow_credentials", false)

	v.SetDefault("database_driver", "postgres")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("amqp_url", "")
	v.SetDefault("queue_workers", 3)

	v.SetDefault("soon_threshold_days", 1)
	v.SetDefault("scheduling_lookahead_days", 30)
	v.SetDefault("default_alert_local_time", "08:00")
	v.SetDefault("overdue_alert_delay", "5s")
	v.SetDefault("streak_grace_days", 1)
	v.SetDefault("upcoming_window_days", 3)
	v.SetDefault("stats_timezone", "UTC")
	v.SetDefault("device_timezone", "Local")
	v.SetDefault("sweep_interval", "1h")
	v.SetDefault("snapshot_ttl", "5m")

	v.SetDefault("smtp_host", "")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("email_from", "")
	v.SetDefault("delivery_timeout", "10s")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTPAddr:             v.GetString("http_addr"),
		CORSAllowedOrigins:   splitList(v.GetString("cors_allowed_origins")),
		CORSAllowCredentials: v.GetBool("cors_allow_credentials"),
		JWTSecret:            strings.TrimSpace(v.GetString("jwt_secret")),
		DatabaseDriver:       strings.ToLower(v.GetString("database_driver")),
		DatabaseURL:          v.GetString("database_url"),
		RedisAddr:            v.GetString("redis_addr"),
		AMQPURL:              v.GetString("amqp_url"),
		QueueWorkers:         v.GetInt("queue_workers"),
		SoonThresholdDays:    v.GetInt("soon_threshold_days"),
		LookaheadDays:        v.GetInt("scheduling_lookahead_days"),
		OverdueAlertDelay:    v.GetDuration("overdue_alert_delay"),
		StreakGraceDays:      v.GetInt("streak_grace_days"),
		UpcomingDays:         v.GetInt("upcoming_window_days"),
		SweepInterval:        v.GetDuration("sweep_interval"),
		SnapshotTTL:          v.GetDuration("snapshot_ttl"),
		SMTPHost:             v.GetString("smtp_host"),
		SMTPPort:             v.GetInt("smtp_port"),
		EmailFrom:            v.GetString("email_from"),
		DeliveryTimeout:      v.GetDuration("delivery_timeout"),
		LogFormat:            strings.ToLower(v.GetString("log_format")),
	}

	var err error
	cfg.AlertHour, cfg.AlertMinute, err = ParseLocalTime(v.GetString("default_alert_local_time"))
	if err != nil {
		return Config{}, err
	}
	if cfg.StatsLocation, err = loadLocation(v.GetString("stats_timezone")); err != nil {
		return Config{}, err
	}
	if cfg.DeviceLocation, err = loadLocation(v.GetString("device_timezone")); err != nil {
		return Config{}, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.SoonThresholdDays < 0 {
		errs = append(errs, errors.New("SOON_THRESHOLD_DAYS must not be negative"))
	}
	if c.LookaheadDays < 0 {
		errs = append(errs, errors.New("SCHEDULING_LOOKAHEAD_DAYS must not be negative"))
	}
	if c.StreakGraceDays < 0 {
		errs = append(errs, errors.New("STREAK_GRACE_DAYS must not be negative"))
	}
	if c.UpcomingDays < 0 {
		errs = append(errs, errors.New("UPCOMING_WINDOW_DAYS must not be negative"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported LOG_FORMAT %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// ParseLocalTime reads a 24-hour "HH:MM" wall-clock time.
func ParseLocalTime(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid local time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// RequireServer checks the settings only the long-running binaries need.
func (c Config) RequireServer() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	return errors.Join(errs...)
}

// NewLogger builds the root logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
