package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go-gateway/internal/types"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Config struct {
	AppPort              int    `validate:"required"`
	SocketPath           string
	RedisHost            string `validate:"required"`
	RedisPort            int    `validate:"required"`
	ProcessorDefaultURL  string `validate:"required,url"`
	ProcessorFallbackURL string `validate:"required,url"`

	CacheTTL          time.Duration `validate:"required"`
	LockTTL           time.Duration `validate:"required"`
	CacheWaitRetries  int           `validate:"required,gt=0"`
	CacheWaitInterval time.Duration `validate:"required"`
	HealthTimeout     time.Duration `validate:"required"`
	ForwardTimeout    time.Duration `validate:"required"`

	PollInterval    time.Duration `validate:"required"`
	ReadBlock       time.Duration `validate:"required"`
	ReclaimInterval time.Duration `validate:"required"`
	ReclaimMinIdle  time.Duration `validate:"required"`
	ReclaimCount    int           `validate:"required,gt=0"`
}

func LoadConfig() (*Config, error) {
	config := &Config{
		AppPort:              getEnvAsInt("APP_PORT", 8080),
		SocketPath:           getEnv("SOCKET_PATH", ""),
		RedisHost:            getEnv("REDIS_HOST", "localhost"),
		RedisPort:            getEnvAsInt("REDIS_PORT", 6379),
		ProcessorDefaultURL:  getEnv("PROCESSOR_DEFAULT_URL", ""),
		ProcessorFallbackURL: getEnv("PROCESSOR_FALLBACK_URL", ""),

		CacheTTL:          getEnvAsDuration("CACHE_TTL_SECONDS", 5*time.Second),
		LockTTL:           getEnvAsDuration("LOCK_TTL_SECONDS", 2*time.Second),
		CacheWaitRetries:  getEnvAsInt("CACHE_WAIT_RETRIES", 5),
		CacheWaitInterval: getEnvAsMillis("CACHE_WAIT_INTERVAL_MS", 100*time.Millisecond),
		HealthTimeout:     getEnvAsMillis("HEALTH_TIMEOUT_MS", 500*time.Millisecond),
		ForwardTimeout:    getEnvAsMillis("FORWARD_TIMEOUT_MS", 3000*time.Millisecond),

		PollInterval:    getEnvAsMillis("POLL_INTERVAL_MS", 100*time.Millisecond),
		ReadBlock:       getEnvAsMillis("READ_BLOCK_MS", 1000*time.Millisecond),
		ReclaimInterval: getEnvAsMillis("RECLAIM_INTERVAL_MS", 1000*time.Millisecond),
		ReclaimMinIdle:  getEnvAsMillis("RECLAIM_MIN_IDLE_MS", 1000*time.Millisecond),
		ReclaimCount:    getEnvAsInt("RECLAIM_COUNT", 10),
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func (c *Config) ProcessorBaseURL(processor types.Processor) string {
	switch processor {
	case types.ProcessorDefault:
		return c.ProcessorDefaultURL
	case types.ProcessorFallback:
		return c.ProcessorFallbackURL
	default:
		return ""
	}
}

func (c *Config) ProcessorPaymentURL(processor types.Processor) string {
	if base := c.ProcessorBaseURL(processor); base != "" {
		return base + "/payments"
	}
	return ""
}

func (c *Config) ProcessorHealthURL(processor types.Processor) string {
	if base := c.ProcessorBaseURL(processor); base != "" {
		return base + "/payments/service-health"
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal) * time.Second
		}
	}
	return defaultValue
}

func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal) * time.Millisecond
		}
	}
	return defaultValue
}
