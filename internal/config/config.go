package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type RegistryConfig struct {
	MaxCapacity   int           `mapstructure:"max_capacity"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	InboxCapacity int           `mapstructure:"inbox_capacity"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type StoreConfig struct {
	Backend       string         `mapstructure:"backend"` // memory, redis, postgres
	RetryAttempts int            `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration  `mapstructure:"retry_backoff"`
	Redis         RedisConfig    `mapstructure:"redis"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

type SourceConfig struct {
	Backend string      `mapstructure:"backend"` // csv, kafka
	Kafka   KafkaConfig `mapstructure:"kafka"`
}

type OpsConfig struct {
	HTTPAddr string `mapstructure:"http_addr"` // empty disables the ops server
}

type AppConfig struct {
	ServiceName     string         `mapstructure:"service_name"`
	Env             string         `mapstructure:"env"`
	LogLevel        string         `mapstructure:"log_level"`
	ChannelCapacity int            `mapstructure:"channel_capacity"`
	Registry        RegistryConfig `mapstructure:"registry"`
	Store           StoreConfig    `mapstructure:"store"`
	Source          SourceConfig   `mapstructure:"source"`
	Ops             OpsConfig      `mapstructure:"ops"`
}

func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("TXE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		path = "config.yaml"
	}

	// The config file is optional; env vars and defaults cover every knob.
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *AppConfig) error {
	switch cfg.Store.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	switch cfg.Source.Backend {
	case "csv", "kafka":
	default:
		return fmt.Errorf("unknown source backend %q", cfg.Source.Backend)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "transaction-engine")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "error")
	v.SetDefault("channel_capacity", 1024)
	v.SetDefault("registry.max_capacity", 5000)
	v.SetDefault("registry.idle_timeout", "5m")
	v.SetDefault("registry.inbox_capacity", 32)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.retry_attempts", 5)
	v.SetDefault("store.retry_backoff", "100ms")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key_prefix", "txe:account:")
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("source.backend", "csv")
	v.SetDefault("source.kafka.brokers", []string{})
	v.SetDefault("source.kafka.topic", "transactions.submitted")
	v.SetDefault("source.kafka.consumer_group", "transaction-engine")
	v.SetDefault("ops.http_addr", "")
}
