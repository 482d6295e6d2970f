package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName            string        `env:"APP_NAME" env-default:"clover"`
	Version            string        `env:"APP_VERSION" env-default:"dev"`
	Port               int           `env:"PORT" env-default:"3000" validate:"gt=0,lt=65536"`
	LogLevel           string        `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs         bool          `env:"PRETTY_LOGS" env-default:"false"`
	StartupMaxAttempts int           `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"gt=0"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`

	HttpServerReadTimeoutSeconds  int `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerWriteTimeoutSeconds int `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"60"`

	// Storage driver: postgres, or memory for local runs and demos
	StorageDriver string `env:"STORAGE_DRIVER" env-default:"postgres" validate:"oneof=postgres memory"`

	DatabaseHost            string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort            int           `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName        string        `env:"DB_USER_NAME" env-default:"clover"`
	DatabasePassword        string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName            string        `env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode         string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	// Run pending migrations when serve starts
	DatabaseAutoMigrate      bool `env:"DB_AUTO_MIGRATE" env-default:"true"`
	DatabaseMigrationVersion int  `env:"DB_MIGRATION_VERSION" env-default:"0" validate:"gte=0"`
	DatabaseMigrationForce   int  `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// Redis backs the distributed locks. Empty host falls back to in-process locks.
	RedisHost       string `env:"REDIS_HOST" env-default:""`
	RedisPort       int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword   string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB         int    `env:"REDIS_DB" env-default:"0"`
	RedisLockPrefix string `env:"REDIS_LOCK_PREFIX" env-default:"clover:lock:"`

	// Kafka brokers (comma-separated). Empty disables the producer and consumer.
	KafkaBrokers           string `env:"KAFKA_BROKERS" env-default:""`
	KafkaTenderTopic       string `env:"KAFKA_TENDER_TOPIC" env-default:"clover.tenders"`
	KafkaEventTopic        string `env:"KAFKA_EVENT_TOPIC" env-default:"clover.events"`
	KafkaNotificationTopic string `env:"KAFKA_NOTIFICATION_TOPIC" env-default:"clover.notifications"`
	KafkaResponseTopic     string `env:"KAFKA_RESPONSE_TOPIC" env-default:"clover.tender-responses"`
	KafkaConsumerGroup     string `env:"KAFKA_CONSUMER_GROUP" env-default:"clover"`
	KafkaCompression       string `env:"KAFKA_COMPRESSION" env-default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`

	// Sweeper settings
	SweeperEnabled              bool          `env:"SWEEPER_ENABLED" env-default:"true"`
	SweepExpiredTendersInterval time.Duration `env:"SWEEP_EXPIRED_TENDERS_INTERVAL" env-default:"1m"`
	SweepNewShipmentsInterval   time.Duration `env:"SWEEP_NEW_SHIPMENTS_INTERVAL" env-default:"5m"`
	SweepLockTTL                time.Duration `env:"SWEEP_LOCK_TTL" env-default:"2m"`
	ExpiredTendersBatchSize     int           `env:"EXPIRED_TENDERS_BATCH_SIZE" env-default:"100"`
	NewShipmentsBatchSize       int           `env:"NEW_SHIPMENTS_BATCH_SIZE" env-default:"100"`
	ShipmentLockTTL             time.Duration `env:"SHIPMENT_LOCK_TTL" env-default:"30s"`
	ShipmentLockWait            time.Duration `env:"SHIPMENT_LOCK_WAIT" env-default:"5s"`

	// Automation settings
	AutomationShadowLogLimit int `env:"AUTOMATION_SHADOW_LOG_LIMIT" env-default:"100" validate:"gt=0"`
	// Candidates the heuristic matcher returns per shipment
	MatcherCandidateLimit int `env:"MATCHER_CANDIDATE_LIMIT" env-default:"10"`

	// Tracing settings
	// Trace exporter: none or otlp
	TraceExporter    string  `env:"TRACE_EXPORTER" env-default:"none" validate:"oneof=none otlp"`
	OTLPEndpoint     string  `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol     string  `env:"OTLP_PROTOCOL" env-default:"grpc" validate:"oneof=grpc http"`
	OTLPInsecure     bool    `env:"OTLP_INSECURE" env-default:"true"`
	TraceSampleRatio float64 `env:"TRACE_SAMPLE_RATIO" env-default:"1" validate:"gte=0,lte=1"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads envFiles into the environment when they exist, then builds the
// config from the environment.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) UsesMemoryStorage() bool {
	return c.StorageDriver == "memory"
}
