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

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Cache      CacheConfig
	Scheduling SchedulingConfig
	Instances  InstancesConfig
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
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig governs the Redis-backed read cache. WeekTTL bounds the week
// schedule view; DefaultTTL applies to everything else.
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
	WeekTTL    time.Duration
}

// SchedulingConfig tunes the distribution engine and the data manager that
// feeds it.
type SchedulingConfig struct {
	Strategy             string
	MaxSessionsPerSlot   int
	MaxSessionsPerDay    int
	SlotIncrementMinutes int
	FirstPassLimit       int
	SecondPassLimit      int
	MinBreakMinutes      int
	MaxConsecutiveMin    int
	GradeGrouping        bool
	TwoPass              bool
	RetryAttempts        int
	RetryDelay           time.Duration
}

// InstancesConfig drives background materialization of dated session
// instances from weekly templates.
type InstancesConfig struct {
	WeeksAhead      int
	QueueWorkers    int
	QueueBufferSize int
	QueueRetries    int
	QueueRetryDelay time.Duration
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
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled:    v.GetBool("CACHE_ENABLED"),
		DefaultTTL: parseDuration(v.GetString("CACHE_DEFAULT_TTL"), 10*time.Minute),
		WeekTTL:    parseDuration(v.GetString("CACHE_WEEK_TTL"), 5*time.Minute),
	}

	cfg.Scheduling = SchedulingConfig{
		Strategy:             v.GetString("SCHEDULING_STRATEGY"),
		MaxSessionsPerSlot:   v.GetInt("SCHEDULING_MAX_SESSIONS_PER_SLOT"),
		MaxSessionsPerDay:    v.GetInt("SCHEDULING_MAX_SESSIONS_PER_DAY"),
		SlotIncrementMinutes: v.GetInt("SCHEDULING_SLOT_INCREMENT_MINUTES"),
		FirstPassLimit:       v.GetInt("SCHEDULING_FIRST_PASS_LIMIT"),
		SecondPassLimit:      v.GetInt("SCHEDULING_SECOND_PASS_LIMIT"),
		MinBreakMinutes:      v.GetInt("SCHEDULING_MIN_BREAK_MINUTES"),
		MaxConsecutiveMin:    v.GetInt("SCHEDULING_MAX_CONSECUTIVE_MINUTES"),
		GradeGrouping:        v.GetBool("SCHEDULING_GRADE_GROUPING"),
		TwoPass:              v.GetBool("SCHEDULING_TWO_PASS"),
		RetryAttempts:        v.GetInt("SCHEDULING_RETRY_ATTEMPTS"),
		RetryDelay:           parseDuration(v.GetString("SCHEDULING_RETRY_DELAY"), 200*time.Millisecond),
	}

	cfg.Instances = InstancesConfig{
		WeeksAhead:      v.GetInt("INSTANCES_WEEKS_AHEAD"),
		QueueWorkers:    v.GetInt("INSTANCES_QUEUE_WORKERS"),
		QueueBufferSize: v.GetInt("INSTANCES_QUEUE_BUFFER_SIZE"),
		QueueRetries:    v.GetInt("INSTANCES_QUEUE_RETRIES"),
		QueueRetryDelay: parseDuration(v.GetString("INSTANCES_QUEUE_RETRY_DELAY"), 5*time.Second),
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
	v.SetDefault("DB_NAME", "caseload")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_DEFAULT_TTL", "10m")
	v.SetDefault("CACHE_WEEK_TTL", "5m")

	v.SetDefault("SCHEDULING_STRATEGY", "two-pass")
	v.SetDefault("SCHEDULING_MAX_SESSIONS_PER_SLOT", 6)
	v.SetDefault("SCHEDULING_MAX_SESSIONS_PER_DAY", 8)
	v.SetDefault("SCHEDULING_SLOT_INCREMENT_MINUTES", 5)
	v.SetDefault("SCHEDULING_FIRST_PASS_LIMIT", 3)
	v.SetDefault("SCHEDULING_SECOND_PASS_LIMIT", 6)
	v.SetDefault("SCHEDULING_MIN_BREAK_MINUTES", 0)
	v.SetDefault("SCHEDULING_MAX_CONSECUTIVE_MINUTES", 0)
	v.SetDefault("SCHEDULING_GRADE_GROUPING", true)
	v.SetDefault("SCHEDULING_TWO_PASS", true)
	v.SetDefault("SCHEDULING_RETRY_ATTEMPTS", 3)
	v.SetDefault("SCHEDULING_RETRY_DELAY", "200ms")

	v.SetDefault("INSTANCES_WEEKS_AHEAD", 8)
	v.SetDefault("INSTANCES_QUEUE_WORKERS", 2)
	v.SetDefault("INSTANCES_QUEUE_BUFFER_SIZE", 64)
	v.SetDefault("INSTANCES_QUEUE_RETRIES", 3)
	v.SetDefault("INSTANCES_QUEUE_RETRY_DELAY", "5s")
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
