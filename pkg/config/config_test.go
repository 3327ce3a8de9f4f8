package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestBuildFromFile(t *testing.T) {
	path := writeConfig(t, `
listen_addr: "127.0.0.1:8080"
data_dir: /var/lib/comsync
ynab_token: file-token
bank:
  client_id: cid
  client_secret: cs
  username: user
  password: pass
`)

	cfg, err := Build(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "/var/lib/comsync", cfg.DataDir)
	assert.Equal(t, "file-token", cfg.YnabToken)
	assert.Equal(t, "cid", cfg.Bank.ClientID)
	assert.NoError(t, cfg.Validate())
}

func TestBuildDefaults(t *testing.T) {
	cfg, err := Build("", nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:3000", cfg.ListenAddr)
	assert.Equal(t, ".", cfg.DataDir)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "ynab_token: file-token\n")
	t.Setenv("COMSYNC_YNAB_TOKEN", "env-token")
	t.Setenv("COMSYNC_BANK_CLIENT_ID", "env-cid")

	cfg, err := Build(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.YnabToken)
	assert.Equal(t, "env-cid", cfg.Bank.ClientID)
}

func TestFlagOverridesEverything(t *testing.T) {
	path := writeConfig(t, "listen_addr: from-file\n")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen_addr", "", "")
	require.NoError(t, flags.Set("listen_addr", "from-flag"))

	cfg, err := Build(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.ListenAddr)
}

func TestExplicitMissingFileErrors(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestValidateMissingToken(t *testing.T) {
	cfg := &Config{Bank: BankCredentials{ClientID: "a", ClientSecret: "b", Username: "c", Password: "d"}}
	assert.ErrorContains(t, cfg.Validate(), "ynab_token")
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := &Config{YnabToken: "secret", Bank: BankCredentials{ClientSecret: "secret", Password: "secret", Username: "user"}}
	red := cfg.Redacted()
	assert.Equal(t, "********", red.YnabToken)
	assert.Equal(t, "********", red.Bank.ClientSecret)
	assert.Equal(t, "********", red.Bank.Password)
	assert.Equal(t, "user", red.Bank.Username)
	assert.Equal(t, "secret", cfg.YnabToken, "the original is untouched")
}
