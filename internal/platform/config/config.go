package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix namespaces every environment variable, e.g. AIDLEDGER_ADDR.
const Prefix = "AIDLEDGER"

// Server captures process level configuration.
type Server struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	Environment     string        `envconfig:"ENVIRONMENT" default:"development"`

	// Sections are processed one by one with the same prefix so their
	// variables stay flat (AIDLEDGER_LOG_LEVEL, not AIDLEDGER_LOG_LOG_LEVEL).
	Log        LogConfig        `ignored:"true"`
	Auth       AuthConfig       `ignored:"true"`
	Ledger     LedgerConfig     `ignored:"true"`
	Audit      AuditConfig      `ignored:"true"`
	Redis      RedisConfig      `ignored:"true"`
	Kafka      KafkaConfig      `ignored:"true"`
	Checkpoint CheckpointConfig `ignored:"true"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSigningKey string `envconfig:"JWT_SIGNING_KEY"`
	JWTIssuer     string `envconfig:"JWT_ISSUER" default:"aidledger"`
	// BootstrapAdmin is granted Admin at start so roles can be managed.
	BootstrapAdmin string `envconfig:"BOOTSTRAP_ADMIN"`
}

// LedgerConfig holds engine settings.
type LedgerConfig struct {
	ApprovalRequired bool `envconfig:"APPROVAL_REQUIRED" default:"true"`
	// RoleBackend is "memory" or "redis".
	RoleBackend string `envconfig:"ROLE_BACKEND" default:"memory"`
}

// AuditConfig selects the audit sink.
type AuditConfig struct {
	// Sink is "memory", "postgres" or "kafka".
	Sink        string `envconfig:"AUDIT_SINK" default:"memory"`
	BufferSize  int    `envconfig:"AUDIT_BUFFER_SIZE" default:"1024"`
	PostgresDSN string `envconfig:"AUDIT_POSTGRES_DSN"`
	// RelayToKafka forwards the Postgres outbox to Kafka.
	RelayToKafka  bool          `envconfig:"AUDIT_RELAY_TO_KAFKA" default:"false"`
	RelayInterval time.Duration `envconfig:"AUDIT_RELAY_INTERVAL" default:"2s"`
}

// RedisConfig configures the shared role store.
type RedisConfig struct {
	URL          string        `envconfig:"REDIS_URL"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// KafkaConfig configures the audit stream.
type KafkaConfig struct {
	Brokers           []string `envconfig:"KAFKA_BROKERS"`
	Topic             string   `envconfig:"KAFKA_AUDIT_TOPIC" default:"aidledger.audit"`
	Partitions        int32    `envconfig:"KAFKA_PARTITIONS" default:"3"`
	ReplicationFactor int16    `envconfig:"KAFKA_REPLICATION_FACTOR" default:"1"`
}

// CheckpointConfig configures ledger snapshots.
type CheckpointConfig struct {
	// Backend is "none", "postgres" or "s3".
	Backend     string        `envconfig:"CHECKPOINT_BACKEND" default:"none"`
	Interval    time.Duration `envconfig:"CHECKPOINT_INTERVAL" default:"30s"`
	PostgresDSN string        `envconfig:"CHECKPOINT_POSTGRES_DSN"`
	S3Bucket    string        `envconfig:"CHECKPOINT_S3_BUCKET"`
	S3Prefix    string        `envconfig:"CHECKPOINT_S3_PREFIX" default:"checkpoints/"`
	S3Endpoint  string        `envconfig:"CHECKPOINT_S3_ENDPOINT"`
	S3Region    string        `envconfig:"CHECKPOINT_S3_REGION" default:"ap-southeast-3"`
	Restore     bool          `envconfig:"CHECKPOINT_RESTORE" default:"true"`
	// Keep bounds retained Postgres checkpoints; 0 keeps all.
	Keep int `envconfig:"CHECKPOINT_KEEP" default:"10"`
}

// Consumer captures configuration of the audit archive consumer.
type Consumer struct {
	MetricsAddr string `envconfig:"CONSUMER_METRICS_ADDR" default:":9091"`
	Group       string `envconfig:"KAFKA_CONSUMER_GROUP" default:"aidledger-audit-archive"`
	ArchiveDSN  string `envconfig:"AUDIT_ARCHIVE_DSN"`

	Log   LogConfig   `ignored:"true"`
	Kafka KafkaConfig `ignored:"true"`
}

// ConsumerFromEnv builds a Consumer config from environment variables.
func ConsumerFromEnv() (Consumer, error) {
	var cfg Consumer
	for _, section := range []any{&cfg, &cfg.Log, &cfg.Kafka} {
		if err := envconfig.Process(Prefix, section); err != nil {
			return Consumer{}, fmt.Errorf("process environment config: %w", err)
		}
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return Consumer{}, fmt.Errorf("set %s_KAFKA_BROKERS for the audit consumer", Prefix)
	}
	if cfg.ArchiveDSN == "" {
		return Consumer{}, fmt.Errorf("set %s_AUDIT_ARCHIVE_DSN for the audit consumer", Prefix)
	}
	return cfg, nil
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	sections := []any{&cfg, &cfg.Log, &cfg.Auth, &cfg.Ledger, &cfg.Audit, &cfg.Redis, &cfg.Kafka, &cfg.Checkpoint}
	for _, section := range sections {
		if err := envconfig.Process(Prefix, section); err != nil {
			return Server{}, fmt.Errorf("process environment config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements envconfig cannot express.
func (c *Server) Validate() error {
	if c.Auth.JWTSigningKey == "" {
		if c.Environment != "development" {
			return fmt.Errorf("set %s_JWT_SIGNING_KEY", Prefix)
		}
		// Use a default for development - should be overridden in production
		c.Auth.JWTSigningKey = "dev-secret-key-change-in-production"
	}

	switch strings.ToLower(c.Ledger.RoleBackend) {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("set %s_REDIS_URL for the redis role backend", Prefix)
		}
	default:
		return fmt.Errorf("unknown role backend %q", c.Ledger.RoleBackend)
	}

	switch strings.ToLower(c.Audit.Sink) {
	case "memory":
	case "postgres":
		if c.Audit.PostgresDSN == "" {
			return fmt.Errorf("set %s_AUDIT_POSTGRES_DSN for the postgres audit sink", Prefix)
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("set %s_KAFKA_BROKERS for the kafka audit sink", Prefix)
		}
	default:
		return fmt.Errorf("unknown audit sink %q", c.Audit.Sink)
	}
	if c.Audit.RelayToKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("set %s_KAFKA_BROKERS to relay the audit outbox", Prefix)
	}

	switch strings.ToLower(c.Checkpoint.Backend) {
	case "none":
	case "postgres":
		if c.Checkpoint.PostgresDSN == "" {
			return fmt.Errorf("set %s_CHECKPOINT_POSTGRES_DSN for postgres checkpoints", Prefix)
		}
	case "s3":
		if c.Checkpoint.S3Bucket == "" {
			return fmt.Errorf("set %s_CHECKPOINT_S3_BUCKET for s3 checkpoints", Prefix)
		}
	default:
		return fmt.Errorf("unknown checkpoint backend %q", c.Checkpoint.Backend)
	}
	return nil
}
