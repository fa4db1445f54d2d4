package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearServerEnv(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "GRPC_ADDR", "STORE_DRIVER", "REDIS_ADDR", "IDEMPOTENCY_TTL",
		"AUTH_TOKENS", "AUTH_URL", "LOW_STOCK_THRESHOLD", "RECONCILE_MAX_ATTEMPTS",
		"ACTIVITY_WORKERS", "ACTIVITY_QUEUE_SIZE", "MONGO_DB",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadServer_Defaults(t *testing.T) {
	clearServerEnv(t)

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "scansync", cfg.MongoDB)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 5, cfg.LowStockThreshold)
	assert.Equal(t, 5, cfg.MaxAttempts)
}

func TestLoadServer_Overrides(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("IDEMPOTENCY_TTL", "90m")
	t.Setenv("LOW_STOCK_THRESHOLD", "0")
	t.Setenv("AUTH_TOKENS", "t=alice")

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 90*time.Minute, cfg.IdempotencyTTL)
	assert.Equal(t, 0, cfg.LowStockThreshold)
	assert.Equal(t, "t=alice", cfg.AuthTokens)
}

func TestLoadServer_Invalid(t *testing.T) {
	tests := map[string][2]string{
		"unknown driver":   {"STORE_DRIVER", "sqlite"},
		"zero attempts":    {"RECONCILE_MAX_ATTEMPTS", "0"},
		"not a number":     {"LOW_STOCK_THRESHOLD", "few"},
		"bad ttl":          {"IDEMPOTENCY_TTL", "1 day"},
		"negative workers": {"ACTIVITY_WORKERS", "-1"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			clearServerEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := LoadServer()
			require.Error(t, err)
			assert.Contains(t, err.Error(), kv[0])
		})
	}
}

func isolateClientEnv(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	for _, key := range []string{
		"SCANNER_CONFIG", "SCANNER_DATABASE", "SCANNER_SERVER_URL", "SCANNER_GRPC_ADDR",
		"SCANNER_TRANSPORT", "SCANNER_TOKEN", "SCANNER_DEVICE_ZONE",
		"SCANNER_PROBE_INTERVAL", "SCANNER_DISPATCH_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoadClient_DefaultsWithoutFile(t *testing.T) {
	dir := isolateClientEnv(t)

	cfg, err := LoadClient("")
	require.NoError(t, err)
	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, filepath.Join(dir, "scansync", "scanner.db"), cfg.Database)
	assert.Equal(t, 30*time.Second, cfg.ProbeInterval)
}

func TestLoadClient_FileThenEnv(t *testing.T) {
	dir := isolateClientEnv(t)
	path := filepath.Join(dir, "scanner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: /tmp/scan.db
transport: grpc
grpc_addr: inventory:50051
token: file-token
probe_interval: 5s
device_zone: A1
`), 0o600))

	t.Setenv("SCANNER_TOKEN", "env-token")
	t.Setenv("SCANNER_DISPATCH_TIMEOUT", "2s")

	cfg, err := LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/scan.db", cfg.Database)
	assert.Equal(t, TransportGRPC, cfg.Transport)
	assert.Equal(t, "inventory:50051", cfg.GRPCAddr)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, 5*time.Second, cfg.ProbeInterval)
	assert.Equal(t, 2*time.Second, cfg.DispatchTimeout)
	assert.Equal(t, "A1", cfg.DeviceZone)
}

func TestLoadClient_Errors(t *testing.T) {
	dir := isolateClientEnv(t)

	_, err := LoadClient(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("transport: carrier-pigeon\n"), 0o600))
	_, err = LoadClient(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}
