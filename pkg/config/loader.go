package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app/configs")

	viper.SetEnvPrefix("GATEWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow common env vars without GATEWAY_ prefix for Docker/VM deploys
	viper.BindEnv("http.port", "HTTP_PORT", "GATEWAY_HTTP_PORT")
	viper.BindEnv("ocpp.port", "OCPP_PORT", "GATEWAY_OCPP_PORT")
	viper.BindEnv("database.url", "DATABASE_URL", "GATEWAY_DATABASE_URL")
	viper.BindEnv("redis.url", "REDIS_URL", "GATEWAY_REDIS_URL")
	viper.BindEnv("queue.nats.url", "NATS_URL", "GATEWAY_QUEUE_NATS_URL")
	viper.BindEnv("queue.rabbitmq.url", "RABBITMQ_URL", "GATEWAY_QUEUE_RABBITMQ_URL")
	viper.BindEnv("vault.address", "VAULT_ADDR", "GATEWAY_VAULT_ADDRESS")
	viper.BindEnv("vault.token", "VAULT_TOKEN", "GATEWAY_VAULT_TOKEN")
	viper.BindEnv("jwt.secret", "JWT_SECRET", "GATEWAY_JWT_SECRET")
	viper.BindEnv("email.sendgrid_api_key", "SENDGRID_API_KEY")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; env vars and defaults carry it.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "gridfleet-gateway")
	viper.SetDefault("app.environment", "development")

	viper.SetDefault("http.port", 8080)
	viper.SetDefault("http.read_timeout", 15*time.Second)
	viper.SetDefault("http.write_timeout", 15*time.Second)
	viper.SetDefault("http.idle_timeout", 60*time.Second)

	viper.SetDefault("ocpp.port", 9000)
	viper.SetDefault("ocpp.heartbeat_interval", 300)
	viper.SetDefault("ocpp.default_call_timeout", 30*time.Second)
	viper.SetDefault("ocpp.followup_ttl", 2*time.Minute)
	viper.SetDefault("ocpp.rate_limit_window", time.Minute)
	viper.SetDefault("ocpp.rate_limit_max", 30)
	viper.SetDefault("ocpp.workers", 8)
	viper.SetDefault("ocpp.queue_depth", 256)

	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", time.Hour)
	viper.SetDefault("database.auto_migrate", true)

	viper.SetDefault("queue.driver", "nats")
	viper.SetDefault("queue.nats.max_reconnects", 10)
	viper.SetDefault("queue.nats.reconnect_wait", 2*time.Second)
	viper.SetDefault("queue.rabbitmq.exchange", "gateway.events")

	viper.SetDefault("transfer.dir", "/var/lib/gateway/transfer")
	viper.SetDefault("transfer.base_url", "http://localhost:8080")

	viper.SetDefault("tracing.service_name", "gridfleet-gateway")
	viper.SetDefault("tracing.sample_rate", 0.1)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
