package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/relationship-crm/internal/config"
	"github.com/sells-group/relationship-crm/internal/jobs"
	"github.com/sells-group/relationship-crm/internal/reindex"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "crm.db"),
		},
		Apollo: config.ApolloConfig{
			Key:         "test-key",
			BaseURL:     "http://127.0.0.1:1",
			TimeoutSecs: 1,
		},
		Server: config.ServerConfig{Port: 8080},
	}
}

func TestInitStore_SQLite(t *testing.T) {
	ctx := context.Background()
	st, err := initStore(ctx, config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "crm.db"),
	})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.Migrate(ctx))
	assert.NoError(t, st.Ping(ctx))
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	_, err := initStore(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver: mysql")
}

func TestInitJobStore_MemoryWhenNoAddr(t *testing.T) {
	js, client, err := initJobStore(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.IsType(t, &jobs.MemoryStore{}, js)
}

func TestInitJobStore_UnreachableRedis(t *testing.T) {
	_, _, err := initJobStore(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping 127.0.0.1:1")
}

func TestInitHook(t *testing.T) {
	res := config.ResilienceConfig{MaxAttempts: 2, InitialBackoffMs: 1, MaxBackoffMs: 2, Multiplier: 2}

	assert.IsType(t, reindex.Nop{}, initHook(config.ReindexConfig{}, res))
	assert.IsType(t, &reindex.Webhook{}, initHook(config.ReindexConfig{
		WebhookURL:  "http://search.internal/reindex",
		TimeoutSecs: 1,
	}, res))
}

func TestInitEnv_SQLite(t *testing.T) {
	env, err := initEnv(context.Background(), testConfig(t), "serve")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.Nil(t, env.Redis)
	assert.NotNil(t, env.Companies)
	assert.NotNil(t, env.Registry)
	assert.IsType(t, &jobs.MemoryStore{}, env.Jobs)
}

func TestInitEnv_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Apollo.Key = ""

	_, err := initEnv(context.Background(), c, "enrichment")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apollo.key is required")
}

func TestInitEnv_MissingGenericDomainsFile(t *testing.T) {
	c := testConfig(t)
	c.Enrich.GenericDomainsFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := initEnv(context.Background(), c, "enrichment")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read generic domains file")
}
