package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Ledger.ApprovalRequired)
	assert.Equal(t, "memory", cfg.Audit.Sink)
	assert.Equal(t, "none", cfg.Checkpoint.Backend)
	assert.NotEmpty(t, cfg.Auth.JWTSigningKey, "development gets a default key")
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("AIDLEDGER_ADDR", ":9090")
	t.Setenv("AIDLEDGER_APPROVAL_REQUIRED", "false")
	t.Setenv("AIDLEDGER_AUDIT_SINK", "kafka")
	t.Setenv("AIDLEDGER_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("AIDLEDGER_CHECKPOINT_INTERVAL", "1m")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.False(t, cfg.Ledger.ApprovalRequired)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Minute, cfg.Checkpoint.Interval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"production needs a signing key", map[string]string{"AIDLEDGER_ENVIRONMENT": "production"}},
		{"redis roles need a url", map[string]string{"AIDLEDGER_ROLE_BACKEND": "redis"}},
		{"postgres audit needs a dsn", map[string]string{"AIDLEDGER_AUDIT_SINK": "postgres"}},
		{"kafka audit needs brokers", map[string]string{"AIDLEDGER_AUDIT_SINK": "kafka"}},
		{"unknown sink", map[string]string{"AIDLEDGER_AUDIT_SINK": "stdout"}},
		{"s3 checkpoints need a bucket", map[string]string{"AIDLEDGER_CHECKPOINT_BACKEND": "s3"}},
		{"unknown checkpoint backend", map[string]string{"AIDLEDGER_CHECKPOINT_BACKEND": "disk"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestConsumerFromEnv(t *testing.T) {
	_, err := ConsumerFromEnv()
	require.Error(t, err, "brokers are required")

	t.Setenv("AIDLEDGER_KAFKA_BROKERS", "k1:9092")
	_, err = ConsumerFromEnv()
	require.Error(t, err, "archive dsn is required")

	t.Setenv("AIDLEDGER_AUDIT_ARCHIVE_DSN", "postgres://archive")
	cfg, err := ConsumerFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "aidledger-audit-archive", cfg.Group)
	assert.Equal(t, "aidledger.audit", cfg.Kafka.Topic)
	assert.Equal(t, ":9091", cfg.MetricsAddr)
}
