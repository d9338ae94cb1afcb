package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/tweetdb/pkg/api"
	"github.com/ssargent/tweetdb/pkg/client"
	"github.com/ssargent/tweetdb/pkg/config"
	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/ledger"
	"github.com/ssargent/tweetdb/pkg/workspace"
)

func testConfig(t *testing.T, backend string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Backend = backend
	return cfg
}

func TestContainer_OpenBackend(t *testing.T) {
	for _, backend := range []string{config.BackendMemory, config.BackendPebble, config.BackendLog} {
		t.Run(backend, func(t *testing.T) {
			c := NewContainer(testConfig(t, backend), nil)
			b, err := c.OpenBackend()
			require.NoError(t, err)
			assert.Equal(t, 0, b.Len())
			require.NoError(t, b.Close())
		})
	}

	_, err := NewContainer(testConfig(t, "bolt"), nil).OpenBackend()
	assert.Error(t, err)
}

func TestContainer_LocalLedgerPersists(t *testing.T) {
	cfg := testConfig(t, config.BackendPebble)
	ctx := context.Background()

	wallet, err := identity.GenerateKeypair()
	require.NoError(t, err)

	c := NewContainer(cfg, nil)
	conn, closer, err := c.OpenConnection("")
	require.NoError(t, err)
	_, isLedger := conn.(*ledger.Ledger)
	assert.True(t, isLedger)

	ws, err := workspace.New(wallet, conn)
	require.NoError(t, err)
	receipt, err := ws.SendRecord(ctx, "topic", "persisted")
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	conn, closer, err = NewContainer(cfg, nil).OpenConnection("")
	require.NoError(t, err)
	defer closer.Close()
	got, err := conn.Fetch(ctx, receipt.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Content)
}

func TestContainer_RemoteConnection(t *testing.T) {
	c := NewContainer(testConfig(t, config.BackendMemory), nil)

	conn, closer, err := c.OpenConnection("http://127.0.0.1:1")
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	_, isClient := conn.(*client.Client)
	assert.True(t, isClient)

	_, _, err = c.OpenConnection("not a url")
	assert.Error(t, err)
}

func TestContainer_ServerPieces(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Security.ClientAPIKey = "secret"
	c := NewContainer(cfg, nil)

	assert.Same(t, c.Metrics(), c.Metrics())
	assert.Equal(t, api.ServerConfig{Bind: "127.0.0.1", Port: 8899, APIKey: "secret"}, c.ServerConfig())

	f := api.NewServerFactory()
	c.SetServerFactory(f)
	assert.Same(t, f, c.GetServerFactory())
}
