package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds all configuration for the gateway, feeder and simulator binaries.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Feeder  FeederConfig  `mapstructure:"feeder"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type GatewayConfig struct {
	// Pairs is the tradable symbol universe (base pairs, no price-kind suffix).
	Pairs []string `mapstructure:"pairs"`
	// QueueCapacity bounds each connection's outbound queue. A connection
	// whose queue cannot absorb a tick even after coalescing is evicted.
	QueueCapacity int `mapstructure:"queue_capacity"`
	// SnapshotOnSubscribe sends the last cached tick for each freshly
	// subscribed pair instead of waiting for the next live tick.
	SnapshotOnSubscribe bool          `mapstructure:"snapshot_on_subscribe"`
	IdleTimeout         time.Duration `mapstructure:"idle_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type FeederConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the system environment first (if it exists), so
	// variables like APP_PORT are available as real env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v.SetDefault("app.port", ":8007")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("gateway.pairs", []string{"BTC/USD", "ETH/USD", "SOL/USD", "STRK/USD"})
	v.SetDefault("gateway.queue_capacity", 256)
	v.SetDefault("gateway.snapshot_on_subscribe", true)
	v.SetDefault("gateway.idle_timeout", 60*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "oracle_ticks")
	v.SetDefault("kafka.group_id", "lightspeed-feeder-group")

	v.SetDefault("feeder.num_workers", 4)

	// Maps dot-notation to underscores (e.g., "gateway.queue_capacity" -> "GATEWAY_QUEUE_CAPACITY").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit binds are needed for Viper to map flat env vars to nested structs.
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level")
	bindEnv(v, "auth.jwt_secret")
	bindEnv(v, "gateway.pairs", "gateway.queue_capacity", "gateway.snapshot_on_subscribe", "gateway.idle_timeout")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "feeder.num_workers")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if cfg.Gateway.QueueCapacity <= 0 {
		return nil, fmt.Errorf("gateway queue capacity must be positive")
	}

	return &cfg, nil
}

// NewLogger builds a zap logger honoring the configured level.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %v", cfg.Level, err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = level
	return zc.Build()
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
