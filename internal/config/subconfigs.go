package config

type PostgresConfig struct {
	DSN                          string `yaml:"dsn" env:"DSN"`
	MaxOpenConnections           int    `yaml:"max_open_connections" env:"MAX_OPEN_CONNECTIONS"`
	MaxIdleConnections           int    `yaml:"max_idle_connections" env:"MAX_IDLE_CONNECTIONS"`
	ConnectionMaxLifetimeSeconds int    `yaml:"connection_max_lifetime_seconds" env:"CONNECTION_MAX_LIFETIME_SECONDS"`
}

type RabbitMQConfig struct {
	User        string `yaml:"user" env:"USER"`
	Password    string `yaml:"password" env:"PASSWORD"`
	Host        string `yaml:"host" env:"HOST"`
	Port        int    `yaml:"port" env:"PORT"`
	VHost       string `yaml:"vhost" env:"VHOST"`
	Exchange    string `yaml:"exchange" env:"EXCHANGE"`
	EmailQueue  string `yaml:"email_queue" env:"EMAIL_QUEUE"`
	AuthorQueue string `yaml:"author_queue" env:"AUTHOR_QUEUE"`
}

type RedisConfig struct {
	Host              string `yaml:"host" env:"HOST"`
	Port              int    `yaml:"port" env:"PORT"`
	Password          string `yaml:"password" env:"PASSWORD"`
	DB                int    `yaml:"db" env:"DB"`
	ExpirationSeconds int    `yaml:"expiration_seconds" env:"EXPIRATION_SECONDS"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

type QueueConfig struct {
	// HoldDelayMinutes is the wait after article release before delay-mode
	// notifications become eligible.
	HoldDelayMinutes int `yaml:"hold_delay_minutes" env:"HOLD_DELAY_MINUTES"`
}

type RetryConfig struct {
	Attempts          int     `yaml:"attempts" env:"ATTEMPTS"`
	DelayMilliseconds int     `yaml:"delay_milliseconds" env:"DELAY_MS"`
	Backoff           float64 `yaml:"backoff" env:"BACKOFF"`
}
