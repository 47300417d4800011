package config

import "time"

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	OCPP     OCPPConfig     `mapstructure:"ocpp"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Signer   SignerConfig   `mapstructure:"signer"`
	Email    EmailConfig    `mapstructure:"email"`
	Transfer TransferConfig `mapstructure:"transfer"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig covers the admin REST API, not the charge-point listener.
type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// OCPPConfig covers the charge-point websocket listener and the
// central-system engine behind it.
type OCPPConfig struct {
	Port              int `mapstructure:"port"`
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`

	DefaultCallTimeout time.Duration            `mapstructure:"default_call_timeout"`
	ActionTimeouts     map[string]time.Duration `mapstructure:"action_timeouts"`
	FollowupTTL        time.Duration            `mapstructure:"followup_ttl"`

	RateLimitWindow  time.Duration  `mapstructure:"rate_limit_window"`
	RateLimitMax     int            `mapstructure:"rate_limit_max"`
	TrustedNetworks  []string       `mapstructure:"trusted_networks"`
	PerChargerLimits map[string]int `mapstructure:"per_charger_limits"`

	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// QueueConfig selects the event bus. Driver is "nats" or "rabbitmq".
type QueueConfig struct {
	Driver   string         `mapstructure:"driver"`
	NATS     NATSConfig     `mapstructure:"nats"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type VaultConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
}

// SignerConfig points at the external PKI service that signs charge
// point CSRs.
type SignerConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

type EmailConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	From           string `mapstructure:"from"`
	OnCall         string `mapstructure:"on_call"`
}

// TransferConfig covers the out-of-band file exchange: diagnostics
// uploads and firmware downloads.
type TransferConfig struct {
	Dir     string `mapstructure:"dir"`
	BaseURL string `mapstructure:"base_url"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	ExposeHeaders  []string `mapstructure:"expose_headers"`
	MaxAge         int      `mapstructure:"max_age"`
	Credentials    bool     `mapstructure:"credentials"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	JaegerURL   string  `mapstructure:"jaeger_url"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
