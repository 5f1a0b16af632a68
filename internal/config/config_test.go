package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("FE_URL", "http://localhost:5173")
	t.Setenv("GATEWAY_PARTNER_CODE", "MOMO")
	t.Setenv("GATEWAY_ACCESS_KEY", "access")
	t.Setenv("GATEWAY_SECRET_KEY", "secret-key")
	t.Setenv("GATEWAY_ENDPOINT", "http://gateway.local/v2/gateway/api")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, int64(5), cfg.LowStockThreshold)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "log", cfg.Notifier.Driver)
	assert.Equal(t, "captureWallet", cfg.Gateway.RequestType)
}

func TestLoad_KafkaRequiresBrokers(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("NOTIFIER_DRIVER", "kafka")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notifier.KafkaBrokers)
}

func TestLoad_PostgresNeedsCredentials(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STORAGE_DRIVER", "postgres")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/db")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/db", cfg.PostgresDSN())
}

func TestLoad_BadDuration(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("GATEWAY_TIMEOUT", "ten")

	_, err := Load()
	require.Error(t, err)
}
