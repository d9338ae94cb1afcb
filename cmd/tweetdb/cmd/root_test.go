package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/tweetdb/pkg/api"
	"github.com/ssargent/tweetdb/pkg/config"
	"github.com/ssargent/tweetdb/pkg/identity"
)

type testEnv struct {
	dir        string
	configPath string
	keypair    string
}

// newTestEnv writes a config using a pebble store under a temp dir
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		keypair:    filepath.Join(dir, "id.json"),
	}

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Security.ClientAPIKey = "cmd-test-key"
	cfg.Logging.Level = "error"
	cfg.Wallet.KeypairPath = env.keypair
	require.NoError(t, config.SaveConfig(cfg, env.configPath))
	return env
}

func (e *testEnv) withKeypair(t *testing.T) identity.PublicKey {
	t.Helper()
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	require.NoError(t, identity.SaveKeypair(e.keypair, kp))
	return kp.PublicKey()
}

// run executes the root command with --config pointed at the env
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, append([]string{"--config", e.configPath}, args...)...)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// resetFlags clears values left over from a previous Execute
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	keypairPath := filepath.Join(dir, "keys", "id.json")
	dataDir := filepath.Join(dir, "data")

	t.Run("bootstrap config and keypair", func(t *testing.T) {
		out, err := execute(t, "init", "--config", configPath, "--data-dir", dataDir,
			"--keypair", keypairPath, "--print-keys")
		require.NoError(t, err)

		assert.Contains(t, out, "Configuration created")
		assert.Contains(t, out, "Keypair created")
		assert.Contains(t, out, "Client API Key:")

		cfg, err := config.LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, dataDir, cfg.DataDir)
		assert.Equal(t, keypairPath, cfg.Wallet.KeypairPath)
		assert.NotEqual(t, "auto", cfg.Security.ClientAPIKey)

		_, err = identity.LoadKeypair(keypairPath)
		assert.NoError(t, err)
	})

	t.Run("refuses to overwrite config", func(t *testing.T) {
		_, err := execute(t, "init", "--config", configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("force keeps existing keypair", func(t *testing.T) {
		before, err := identity.LoadKeypair(keypairPath)
		require.NoError(t, err)

		out, err := execute(t, "init", "--config", configPath, "--keypair", keypairPath, "--force")
		require.NoError(t, err)
		assert.Contains(t, out, "Using existing keypair")
		assert.Contains(t, out, before.PublicKey().String())
		assert.NotContains(t, out, "Client API Key:")
	})
}

func TestKeygenCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "keygen")
	require.NoError(t, err)
	assert.Contains(t, out, "Public key:")

	kp, err := identity.LoadKeypair(env.keypair)
	require.NoError(t, err)
	assert.Contains(t, out, kp.PublicKey().String())

	info, err := os.Stat(env.keypair)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = env.run(t, "keygen")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = env.run(t, "keygen", "--force")
	require.NoError(t, err)
	again, err := identity.LoadKeypair(env.keypair)
	require.NoError(t, err)
	assert.NotEqual(t, kp.PublicKey(), again.PublicKey())
}

func TestKeygen_KeypairFlagOverridesConfig(t *testing.T) {
	env := newTestEnv(t)
	other := filepath.Join(env.dir, "other.json")

	_, err := env.run(t, "keygen", "--keypair", other)
	require.NoError(t, err)

	assert.FileExists(t, other)
	assert.NoFileExists(t, env.keypair)
}

func TestInvalidConfigIsRejected(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.configPath, []byte("storage:\n  backend: bolt\n"), 0600))

	_, err := env.run(t, "scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

type fakeStarter struct {
	config  api.ServerConfig
	records int
}

func (f *fakeStarter) CreateServerStarter() api.ServerStarter { return f }

func (f *fakeStarter) StartServer(_ context.Context, l api.Ledger, config api.ServerConfig, _ ...api.Option) error {
	f.config = config
	f.records = l.Stats().Records
	return nil
}

func TestServeCommand(t *testing.T) {
	env := newTestEnv(t)
	starter := &fakeStarter{}
	SetServerFactory(starter)
	t.Cleanup(func() { SetServerFactory(nil) })

	out, err := env.run(t, "serve", "--port", "9123", "--bind", "0.0.0.0")
	require.NoError(t, err)

	assert.Contains(t, out, "Starting tweetdb server on 0.0.0.0:9123")
	assert.Equal(t, 9123, starter.config.Port)
	assert.Equal(t, "0.0.0.0", starter.config.Bind)
	assert.Equal(t, "cmd-test-key", starter.config.APIKey)
	assert.Equal(t, 0, starter.records)
}

func TestServe_GeneratesKeyWhenUnset(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := config.LoadConfig(env.configPath)
	require.NoError(t, err)
	cfg.Security.ClientAPIKey = "auto"
	require.NoError(t, config.SaveConfig(cfg, env.configPath))

	starter := &fakeStarter{}
	SetServerFactory(starter)
	t.Cleanup(func() { SetServerFactory(nil) })

	out, err := env.run(t, "serve")
	require.NoError(t, err)

	assert.Contains(t, out, "generated one for this run")
	assert.NotEqual(t, "auto", starter.config.APIKey)
	assert.Len(t, starter.config.APIKey, 64)
	assert.Equal(t, 8899, starter.config.Port)
}
