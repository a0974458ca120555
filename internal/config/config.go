package config

import (
	"fmt"
	"time"

	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/retry"
)

type Config struct {
	Env           string         `yaml:"env" env:"ENV"`
	HTTP          HTTPConfig     `env-prefix:"HTTP_"`
	Database      PostgresConfig `env-prefix:"POSTGRES_"`
	Redis         RedisConfig    `env-prefix:"REDIS_"`
	RabbitMQ      RabbitMQConfig `env-prefix:"RABBITMQ_"`
	Queue         QueueConfig    `env-prefix:"QUEUE_"`
	PostgresRetry RetryConfig    `env-prefix:"RETRY_POSTGRES_"`
	RabbitMQRetry RetryConfig    `env-prefix:"RETRY_RABBITMQ_"`
	RedisRetry    RetryConfig    `env-prefix:"RETRY_REDIS_"`
}

func NewConfig(envFilePath string, configFilePath string) (*Config, error) {
	myConfig := &Config{}

	cfg := config.New()

	if envFilePath != "" {
		if err := cfg.LoadEnvFiles(envFilePath); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}
	cfg.EnableEnv("")

	if configFilePath != "" {
		if err := cfg.LoadConfigFiles(configFilePath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	myConfig.Env = cfg.GetString("ENV")

	// HTTP
	myConfig.HTTP.Addr = cfg.GetString("NOTIFYD_HTTP_ADDR")

	// Postgres
	myConfig.Database.DSN = cfg.GetString("NOTIFYD_POSTGRES_DSN")
	myConfig.Database.MaxOpenConnections = cfg.GetInt("NOTIFYD_POSTGRES_MAX_OPEN_CONNECTIONS")
	myConfig.Database.MaxIdleConnections = cfg.GetInt("NOTIFYD_POSTGRES_MAX_IDLE_CONNECTIONS")
	myConfig.Database.ConnectionMaxLifetimeSeconds = cfg.GetInt("NOTIFYD_POSTGRES_CONNECTION_MAX_LIFETIME_SECONDS")

	// Redis
	myConfig.Redis.Host = cfg.GetString("NOTIFYD_REDIS_HOST")
	myConfig.Redis.Port = cfg.GetInt("NOTIFYD_REDIS_PORT")
	myConfig.Redis.Password = cfg.GetString("NOTIFYD_REDIS_PASSWORD")
	myConfig.Redis.DB = cfg.GetInt("NOTIFYD_REDIS_DB")
	myConfig.Redis.ExpirationSeconds = cfg.GetInt("NOTIFYD_REDIS_EXPIRATION_SECONDS")

	// RabbitMQ
	myConfig.RabbitMQ.User = cfg.GetString("NOTIFYD_RABBITMQ_USER")
	myConfig.RabbitMQ.Password = cfg.GetString("NOTIFYD_RABBITMQ_PASSWORD")
	myConfig.RabbitMQ.Host = cfg.GetString("NOTIFYD_RABBITMQ_HOST")
	myConfig.RabbitMQ.Port = cfg.GetInt("NOTIFYD_RABBITMQ_PORT")
	myConfig.RabbitMQ.VHost = cfg.GetString("NOTIFYD_RABBITMQ_VHOST")
	myConfig.RabbitMQ.Exchange = cfg.GetString("NOTIFYD_RABBITMQ_EXCHANGE")
	myConfig.RabbitMQ.EmailQueue = cfg.GetString("NOTIFYD_RABBITMQ_EMAIL_QUEUE")
	myConfig.RabbitMQ.AuthorQueue = cfg.GetString("NOTIFYD_RABBITMQ_AUTHOR_QUEUE")

	// Queue
	myConfig.Queue.HoldDelayMinutes = cfg.GetInt("NOTIFYD_QUEUE_HOLD_DELAY_MINUTES")

	// Postgres retry
	myConfig.PostgresRetry.Attempts = cfg.GetInt("NOTIFYD_RETRY_POSTGRES_ATTEMPTS")
	myConfig.PostgresRetry.DelayMilliseconds = cfg.GetInt("NOTIFYD_RETRY_POSTGRES_DELAY_MS")
	myConfig.PostgresRetry.Backoff = cfg.GetFloat64("NOTIFYD_RETRY_POSTGRES_BACKOFF")

	// RabbitMQ retry
	myConfig.RabbitMQRetry.Attempts = cfg.GetInt("NOTIFYD_RETRY_RABBITMQ_ATTEMPTS")
	myConfig.RabbitMQRetry.DelayMilliseconds = cfg.GetInt("NOTIFYD_RETRY_RABBITMQ_DELAY_MS")
	myConfig.RabbitMQRetry.Backoff = cfg.GetFloat64("NOTIFYD_RETRY_RABBITMQ_BACKOFF")

	// Redis retry
	myConfig.RedisRetry.Attempts = cfg.GetInt("NOTIFYD_RETRY_REDIS_ATTEMPTS")
	myConfig.RedisRetry.DelayMilliseconds = cfg.GetInt("NOTIFYD_RETRY_REDIS_DELAY_MS")
	myConfig.RedisRetry.Backoff = cfg.GetFloat64("NOTIFYD_RETRY_REDIS_BACKOFF")

	return myConfig, nil
}

func MakeStrategy(c RetryConfig) retry.Strategy {
	return retry.Strategy{
		Attempts: c.Attempts,
		Delay:    time.Duration(c.DelayMilliseconds) * time.Millisecond,
		Backoff:  c.Backoff,
	}
}

func (c PostgresConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnectionMaxLifetimeSeconds) * time.Second
}

func (c *Config) HoldDelay() time.Duration {
	return time.Duration(c.Queue.HoldDelayMinutes) * time.Minute
}

func (c *Config) RedisExpiration() time.Duration {
	return time.Duration(c.Redis.ExpirationSeconds) * time.Second
}
