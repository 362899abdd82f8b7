package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Port               string       `mapstructure:"PORT" validate:"required"`
	InternalAuthHeader string       `mapstructure:"INTERNAL_AUTH_HEADER" validate:"required"`
	Db                 DbConfig     `mapstructure:",squash"`
	Broker             BrokerConfig `mapstructure:",squash"`
	Nats               NatsConfig   `mapstructure:",squash"`
	Kafka              KafkaConfig  `mapstructure:",squash"`
	Redis              RedisConfig  `mapstructure:",squash"`
	Saga               SagaConfig   `mapstructure:",squash"`
}

type DbConfig struct {
	Host     string `mapstructure:"DB_HOST" validate:"required"`
	Port     string `mapstructure:"DB_PORT" validate:"required"`
	Username string `mapstructure:"DB_USERNAME" validate:"required"`
	Password string `mapstructure:"DB_PASSWORD" validate:"required"`
	DbName   string `mapstructure:"DB_DBNAME" validate:"required"`
	SSLMode  string `mapstructure:"DB_SSLMODE"`
}

type BrokerConfig struct {
	Driver          string        `mapstructure:"BROKER_DRIVER" validate:"required,oneof=nats kafka"`
	EventMaxDeliver int           `mapstructure:"EVENT_MAX_DELIVER" validate:"gte=1"`
	EventRetryDelay time.Duration `mapstructure:"EVENT_RETRY_DELAY" validate:"gt=0"`
}

type NatsConfig struct {
	Url         string `mapstructure:"NATS_URL"`
	StreamName  string `mapstructure:"NATS_STREAM_NAME"`
	DurableName string `mapstructure:"NATS_DURABLE_NAME"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"KAFKA_BROKERS"`
	GroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// BrokerList splits the comma separated KAFKA_BROKERS value.
func (k KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type RedisConfig struct {
	Addr     string `mapstructure:"REDIS_ADDR"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type SagaConfig struct {
	ReservationTTL    time.Duration `mapstructure:"RESERVATION_TTL" validate:"gt=0"`
	SweepInterval     time.Duration `mapstructure:"SWEEP_INTERVAL" validate:"gt=0"`
	SweepBatchSize    int           `mapstructure:"SWEEP_BATCH_SIZE" validate:"gt=0"`
	OutboxInterval    time.Duration `mapstructure:"OUTBOX_INTERVAL" validate:"gt=0"`
	OutboxBatchSize   int           `mapstructure:"OUTBOX_BATCH_SIZE" validate:"gt=0"`
	OutboxMaxAttempts int           `mapstructure:"OUTBOX_MAX_ATTEMPTS" validate:"gt=0"`
}

var defaults = map[string]any{
	"DB_SSLMODE":          "disable",
	"BROKER_DRIVER":       "nats",
	"NATS_URL":            "nats://localhost:4222",
	"NATS_STREAM_NAME":    "fulfillment",
	"NATS_DURABLE_NAME":   "fulfillment-service",
	"KAFKA_GROUP_ID":      "fulfillment-service",
	"EVENT_MAX_DELIVER":   10,
	"EVENT_RETRY_DELAY":   "5s",
	"RESERVATION_TTL":     "15m",
	"SWEEP_INTERVAL":      "5m",
	"SWEEP_BATCH_SIZE":    100,
	"OUTBOX_INTERVAL":     "1s",
	"OUTBOX_BATCH_SIZE":   100,
	"OUTBOX_MAX_ATTEMPTS": 20,
}

func InitConfig(ctx context.Context) (*Config, error) {
	var cfg Config

	// Reset viper to avoid any previous configuration
	viper.Reset()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetConfigType("env")

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}

	_, err := os.Stat(envFile)
	if !os.IsNotExist(err) {
		viper.SetConfigFile(envFile)

		if err := viper.ReadInConfig(); err != nil {
			slog.WarnContext(ctx, "[InitConfig] ReadInConfig warning, continuing with env vars only", "error", err)
		} else {
			slog.InfoContext(ctx, "[InitConfig] Successfully loaded config file", "file", envFile)
		}
	} else {
		slog.InfoContext(ctx, "[InitConfig] No config file found, using environment variables")
	}

	viper.AutomaticEnv()

	for key, value := range defaults {
		viper.SetDefault(key, value)
	}

	envVars := []string{
		"PORT",
		"INTERNAL_AUTH_HEADER",
		"DB_HOST",
		"DB_PORT",
		"DB_USERNAME",
		"DB_PASSWORD",
		"DB_DBNAME",
		"DB_SSLMODE",
		"BROKER_DRIVER",
		"NATS_URL",
		"NATS_STREAM_NAME",
		"NATS_DURABLE_NAME",
		"KAFKA_BROKERS",
		"KAFKA_GROUP_ID",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"EVENT_MAX_DELIVER",
		"EVENT_RETRY_DELAY",
		"RESERVATION_TTL",
		"SWEEP_INTERVAL",
		"SWEEP_BATCH_SIZE",
		"OUTBOX_INTERVAL",
		"OUTBOX_BATCH_SIZE",
		"OUTBOX_MAX_ATTEMPTS",
	}

	// Bind environment variables explicitly so Unmarshal sees keys that only exist in the environment
	for _, key := range envVars {
		viper.BindEnv(key)
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		slog.ErrorContext(ctx, "[InitConfig] Unmarshal", "failed bind config", err)
		return nil, err
	}

	slog.InfoContext(ctx, "[InitConfig] Configuration after binding",
		"PORT", cfg.Port,
		"DB_HOST", cfg.Db.Host,
		"DB_PORT", cfg.Db.Port,
		"DB_USERNAME", cfg.Db.Username,
		"DB_DBNAME", cfg.Db.DbName,
		"DB_SSLMODE", cfg.Db.SSLMode,
		"BROKER_DRIVER", cfg.Broker.Driver,
		"REDIS_ADDR", cfg.Redis.Addr,
		"RESERVATION_TTL", cfg.Saga.ReservationTTL,
		"SWEEP_INTERVAL", cfg.Saga.SweepInterval)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if ok {
			for _, validationErr := range validationErrs {
				slog.ErrorContext(ctx, "[InitConfig] Validation error",
					"field", validationErr.Field(),
					"namespace", validationErr.Namespace(),
					"tag", validationErr.Tag(),
					"value", validationErr.Value())
			}
		} else {
			slog.ErrorContext(ctx, "[InitConfig] Validation", "error", err)
		}
		return nil, err
	}

	if cfg.Broker.Driver == "kafka" && len(cfg.Kafka.BrokerList()) == 0 {
		slog.ErrorContext(ctx, "[InitConfig] Validation", "KAFKA_BROKERS", "required when BROKER_DRIVER=kafka")
		return nil, errors.New("KAFKA_BROKERS is required when BROKER_DRIVER=kafka")
	}

	slog.InfoContext(ctx, "[InitConfig] Config loaded successfully")
	return &cfg, nil
}
