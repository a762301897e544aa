package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken string            `yaml:"discord_token"`
	LogLevel     string            `yaml:"log_level"`
	Storage      StorageConfig     `yaml:"storage"`
	Redis        RedisConfig       `yaml:"redis"`
	Spam         SpamConfig        `yaml:"spam"`
	Moderation   ModerationConfig  `yaml:"moderation"`
	Tickets      TicketsConfig     `yaml:"tickets"`
	MessageLogs  MessageLogsConfig `yaml:"message_logs"`
	Metrics      MetricsConfig     `yaml:"metrics"`
	Health       HealthConfig      `yaml:"health"`
}

type StorageConfig struct {
	// Driver is sqlite, postgres or memory.
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	DataPath string `yaml:"data_path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SpamConfig struct {
	WindowSeconds         int    `yaml:"window_seconds"`
	DefaultMaxMessages    int    `yaml:"default_max_messages"`
	TimeoutMinutes        int    `yaml:"timeout_minutes"`
	SweepSchedule         string `yaml:"sweep_schedule"`
	StrikeReset           string `yaml:"strike_reset"`
	StrikeCooldownMinutes int    `yaml:"strike_cooldown_minutes"`
}

type ModerationConfig struct {
	Prefix              string `yaml:"prefix"`
	DefaultMuteMinutes  int    `yaml:"default_mute_minutes"`
	MaxMuteMinutes      int    `yaml:"max_mute_minutes"`
	PurgeMax            int    `yaml:"purge_max"`
	DeletePacePerSecond int    `yaml:"delete_pace_per_second"`
}

type TicketsConfig struct {
	CloseDelaySeconds int `yaml:"close_delay_seconds"`
}

type MessageLogsConfig struct {
	RetentionDays   int    `yaml:"retention_days"`
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Storage:  StorageConfig{Driver: "sqlite", DSN: "data/guildwarden.db", DataPath: "data/guildwarden.json"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Spam: SpamConfig{
			WindowSeconds:         60,
			DefaultMaxMessages:    10,
			TimeoutMinutes:        5,
			SweepSchedule:         "@every 5m",
			StrikeReset:           "sweep",
			StrikeCooldownMinutes: 30,
		},
		Moderation: ModerationConfig{
			Prefix:              "!",
			DefaultMuteMinutes:  10,
			MaxMuteMinutes:      40320,
			PurgeMax:            100,
			DeletePacePerSecond: 5,
		},
		Tickets:     TicketsConfig{CloseDelaySeconds: 10},
		MessageLogs: MessageLogsConfig{RetentionDays: 30, CleanupSchedule: "@daily"},
		Metrics:     MetricsConfig{OTLPEndpoint: "localhost:4317", Insecure: true},
		Health:      HealthConfig{Enabled: false, Addr: ":8080"},
	}
}

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Storage.Driver = envString("STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.DSN = envString("DATABASE_URL", cfg.Storage.DSN)
	cfg.Storage.DataPath = envString("DATA_PATH", cfg.Storage.DataPath)
	cfg.Redis.Enabled = envBool("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Addr = envString("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envString("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envInt("REDIS_DB", cfg.Redis.DB)
	cfg.Spam.WindowSeconds = envInt("SPAM_WINDOW_SECONDS", cfg.Spam.WindowSeconds)
	cfg.Spam.DefaultMaxMessages = envInt("SPAM_DEFAULT_MAX_MESSAGES", cfg.Spam.DefaultMaxMessages)
	cfg.Spam.TimeoutMinutes = envInt("SPAM_TIMEOUT_MINUTES", cfg.Spam.TimeoutMinutes)
	cfg.Spam.SweepSchedule = envString("SPAM_SWEEP_SCHEDULE", cfg.Spam.SweepSchedule)
	cfg.Spam.StrikeReset = envString("SPAM_STRIKE_RESET", cfg.Spam.StrikeReset)
	cfg.Spam.StrikeCooldownMinutes = envInt("SPAM_STRIKE_COOLDOWN_MINUTES", cfg.Spam.StrikeCooldownMinutes)
	cfg.Moderation.Prefix = envString("COMMAND_PREFIX", cfg.Moderation.Prefix)
	cfg.Moderation.PurgeMax = envInt("PURGE_MAX", cfg.Moderation.PurgeMax)
	cfg.Moderation.DeletePacePerSecond = envInt("DELETE_PACE_PER_SECOND", cfg.Moderation.DeletePacePerSecond)
	cfg.Tickets.CloseDelaySeconds = envInt("TICKET_CLOSE_DELAY_SECONDS", cfg.Tickets.CloseDelaySeconds)
	cfg.MessageLogs.RetentionDays = envInt("MESSAGE_LOG_RETENTION_DAYS", cfg.MessageLogs.RetentionDays)
	cfg.Metrics.Enabled = envBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.OTLPEndpoint = envString("OTLP_ENDPOINT", cfg.Metrics.OTLPEndpoint)
	cfg.Metrics.Insecure = envBool("OTLP_INSECURE", cfg.Metrics.Insecure)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
}

func (c *Config) normalize() error {
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	switch c.Storage.Driver {
	case "", "sqlite":
		c.Storage.Driver = "sqlite"
	case "postgres", "pgx", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	c.Spam.StrikeReset = strings.ToLower(c.Spam.StrikeReset)
	switch c.Spam.StrikeReset {
	case "sweep", "idle":
	case "":
		c.Spam.StrikeReset = "sweep"
	default:
		return fmt.Errorf("unknown strike_reset %q", c.Spam.StrikeReset)
	}

	if c.Spam.WindowSeconds <= 0 {
		c.Spam.WindowSeconds = 60
	}
	if c.Spam.TimeoutMinutes <= 0 {
		c.Spam.TimeoutMinutes = 5
	}
	if c.Moderation.Prefix == "" {
		c.Moderation.Prefix = "!"
	}
	if c.Moderation.PurgeMax <= 0 || c.Moderation.PurgeMax > 100 {
		c.Moderation.PurgeMax = 100
	}
	if c.Moderation.MaxMuteMinutes <= 0 {
		c.Moderation.MaxMuteMinutes = 40320
	}
	if c.Moderation.DeletePacePerSecond <= 0 {
		c.Moderation.DeletePacePerSecond = 5
	}
	return nil
}

func (s SpamConfig) Window() time.Duration {
	return time.Duration(s.WindowSeconds) * time.Second
}

func (s SpamConfig) Cooldown() time.Duration {
	return time.Duration(s.StrikeCooldownMinutes) * time.Minute
}

func (t TicketsConfig) CloseDelay() time.Duration {
	return time.Duration(t.CloseDelaySeconds) * time.Second
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
