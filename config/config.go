package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Scraper   ScraperConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type PostgresConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	DBName             string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	MaxLifetimeMinutes int
	LogLevel           string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// SchedulerConfig tunes the cooperative cron loop (internal/cronsched), the
// two system-wide jobs it drives (scheduling unscheduled trackers and
// draining pending notifications), the fetch worker and retry defaults.
type SchedulerConfig struct {
	LockTTLSeconds int
	Timezone       string

	// TrackersScheduleCron reconciles tracker changes into trigger jobs.
	TrackersScheduleCron string
	// TrackersFetchCron is loaded but not read by any component: the fetch
	// worker's drain loop ticks on fetchworker.Config.Interval, which
	// cmd/main.go leaves at fetchworker.DefaultInterval.
	TrackersFetchCron string
	// NotificationsSendCron ticks the notification scheduler's drain loop.
	NotificationsSendCron string

	FetchConcurrency int
	FetchBatchSize   int
	FetchDeadline    time.Duration

	RetryMaxAttempts    uint32
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
}

// ScraperConfig points at the external scraper service.
type ScraperConfig struct {
	BaseURL string
	Timeout time.Duration
}

func LoadConfig() *Config {
	cfg, _ := Load()
	return cfg
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 5003),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Postgres: PostgresConfig{
			Host:               getEnv("POSTGRES_HOST", "localhost"),
			Port:               getEnv("POSTGRES_PORT", "5432"),
			User:               getEnv("POSTGRES_USER", "scheduler_user"),
			Password:           getEnv("POSTGRES_PASSWORD", "scheduler_password"),
			DBName:             getEnv("POSTGRES_DB", "scheduler_db"),
			SSLMode:            getEnv("POSTGRES_SSL_MODE", "disable"),
			MaxOpenConns:       getEnvInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       getEnvInt("POSTGRES_MAX_IDLE_CONNS", 10),
			MaxLifetimeMinutes: getEnvInt("POSTGRES_MAX_LIFETIME_MINS", 30),
			LogLevel:           getEnv("POSTGRES_LOG_LEVEL", "warn"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 2),
		},
		Scheduler: SchedulerConfig{
			LockTTLSeconds:        getEnvInt("SCHEDULER_LOCK_TTL_SECONDS", 300),
			Timezone:              getEnv("SCHEDULER_TIMEZONE", "UTC"),
			TrackersScheduleCron:  getEnv("SCHEDULER_TRACKERS_SCHEDULE_CRON", "0 * * * * *"),
			TrackersFetchCron:     getEnv("SCHEDULER_TRACKERS_FETCH_CRON", "*/30 * * * * *"),
			NotificationsSendCron: getEnv("SCHEDULER_NOTIFICATIONS_SEND_CRON", "*/30 * * * * *"),
			FetchConcurrency:      getEnvInt("SCHEDULER_FETCH_CONCURRENCY", 10),
			FetchBatchSize:        getEnvInt("SCHEDULER_FETCH_BATCH_SIZE", 100),
			FetchDeadline:         getDuration("SCHEDULER_FETCH_DEADLINE", 45*time.Second),
			RetryMaxAttempts:      uint32(getEnvInt("SCHEDULER_RETRY_MAX_ATTEMPTS", 5)),
			RetryInitialBackoff:   getDuration("SCHEDULER_RETRY_INITIAL_BACKOFF", 1*time.Minute),
			RetryMaxBackoff:       getDuration("SCHEDULER_RETRY_MAX_BACKOFF", 6*time.Hour),
		},
		Scraper: ScraperConfig{
			BaseURL: getEnv("SCRAPER_BASE_URL", "http://localhost:7272"),
			Timeout: getDuration("SCRAPER_TIMEOUT", 60*time.Second),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
