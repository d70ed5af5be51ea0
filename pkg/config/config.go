package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DefaultUTCOffset is applied when a layer carries a malformed UTC offset.
// Kept explicit and loggable so a partially broken schedule degrades visibly
// instead of silently.
const DefaultUTCOffset = "+05:30"

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Schedule  ScheduleConfig
	Scheduler SchedulerConfig
	Notifier  NotifierConfig
	Ledger    LedgerConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ScheduleConfig locates the schedule source document.
type ScheduleConfig struct {
	SourcePath    string
	OverridesPath string
	DefaultOffset string
}

// SchedulerConfig tunes the shift scheduling loop.
type SchedulerConfig struct {
	TickInterval  time.Duration
	LookAhead     time.Duration
	NotifyLead    time.Duration
	UpcomingCount int
}

// NotifierConfig selects and configures the outbound notification sink.
type NotifierConfig struct {
	Sink            string
	DispatchTimeout time.Duration
	WebhookURL      string
	SMTP            SMTPConfig
	AMQP            AMQPConfig
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type AMQPConfig struct {
	URL   string
	Queue string
}

// LedgerConfig governs historical retention.
type LedgerConfig struct {
	RetentionMonths int
	CleanupInterval time.Duration
	AutoVersion     bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		CacheTTL: parseDuration(v.GetString("REDIS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Schedule = ScheduleConfig{
		SourcePath:    v.GetString("SCHEDULE_SOURCE_PATH"),
		OverridesPath: v.GetString("SCHEDULE_OVERRIDES_PATH"),
		DefaultOffset: v.GetString("SCHEDULE_DEFAULT_OFFSET"),
	}

	cfg.Scheduler = SchedulerConfig{
		TickInterval:  parseDuration(v.GetString("SCHEDULER_TICK_INTERVAL"), time.Minute),
		LookAhead:     parseDuration(v.GetString("SCHEDULER_LOOK_AHEAD"), 24*time.Hour),
		NotifyLead:    parseDuration(v.GetString("SCHEDULER_NOTIFY_LEAD"), 10*time.Minute),
		UpcomingCount: v.GetInt("SCHEDULER_UPCOMING_COUNT"),
	}

	cfg.Notifier = NotifierConfig{
		Sink:            v.GetString("NOTIFIER_SINK"),
		DispatchTimeout: parseDuration(v.GetString("NOTIFIER_DISPATCH_TIMEOUT"), 10*time.Second),
		WebhookURL:      v.GetString("NOTIFIER_WEBHOOK_URL"),
		SMTP: SMTPConfig{
			Host:     v.GetString("NOTIFIER_SMTP_HOST"),
			Port:     v.GetInt("NOTIFIER_SMTP_PORT"),
			Username: v.GetString("NOTIFIER_SMTP_USERNAME"),
			Password: v.GetString("NOTIFIER_SMTP_PASSWORD"),
			From:     v.GetString("NOTIFIER_SMTP_FROM"),
			To:       splitAndTrim(v.GetString("NOTIFIER_SMTP_TO")),
		},
		AMQP: AMQPConfig{
			URL:   v.GetString("NOTIFIER_AMQP_URL"),
			Queue: v.GetString("NOTIFIER_AMQP_QUEUE"),
		},
	}

	cfg.Ledger = LedgerConfig{
		RetentionMonths: v.GetInt("LEDGER_RETENTION_MONTHS"),
		CleanupInterval: parseDuration(v.GetString("LEDGER_CLEANUP_INTERVAL"), 24*time.Hour),
		AutoVersion:     v.GetBool("LEDGER_AUTO_VERSION"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "oncall")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CACHE_TTL", "5m")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULE_SOURCE_PATH", "./schedule.json")
	v.SetDefault("SCHEDULE_OVERRIDES_PATH", "")
	v.SetDefault("SCHEDULE_DEFAULT_OFFSET", DefaultUTCOffset)

	v.SetDefault("SCHEDULER_TICK_INTERVAL", "1m")
	v.SetDefault("SCHEDULER_LOOK_AHEAD", "24h")
	v.SetDefault("SCHEDULER_NOTIFY_LEAD", "10m")
	v.SetDefault("SCHEDULER_UPCOMING_COUNT", 3)

	v.SetDefault("NOTIFIER_SINK", "log")
	v.SetDefault("NOTIFIER_DISPATCH_TIMEOUT", "10s")
	v.SetDefault("NOTIFIER_WEBHOOK_URL", "")
	v.SetDefault("NOTIFIER_SMTP_HOST", "")
	v.SetDefault("NOTIFIER_SMTP_PORT", 465)
	v.SetDefault("NOTIFIER_SMTP_USERNAME", "")
	v.SetDefault("NOTIFIER_SMTP_PASSWORD", "")
	v.SetDefault("NOTIFIER_SMTP_FROM", "")
	v.SetDefault("NOTIFIER_SMTP_TO", "")
	v.SetDefault("NOTIFIER_AMQP_URL", "")
	v.SetDefault("NOTIFIER_AMQP_QUEUE", "shift_transitions")

	v.SetDefault("LEDGER_RETENTION_MONTHS", 12)
	v.SetDefault("LEDGER_CLEANUP_INTERVAL", "24h")
	v.SetDefault("LEDGER_AUTO_VERSION", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
