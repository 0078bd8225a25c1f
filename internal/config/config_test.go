package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QUOTA_BACKEND", "")
	t.Setenv("WALLET_MODE", "")
	t.Setenv("RATE_LIMIT_ENABLED", "")

	cfg := Load()

	assert.Equal(t, QuotaBackendSQL, cfg.Quota.Backend)
	assert.Equal(t, WalletModeSimulated, cfg.Wallet.Mode)
	assert.Equal(t, 9, cfg.TokenDecimals)
	assert.Equal(t, 5*time.Second, cfg.Wallet.Timeout)
	assert.False(t, cfg.NeedsRedis())
}

func TestLoadNormalizesBackends(t *testing.T) {
	t.Setenv("QUOTA_BACKEND", " Redis ")
	t.Setenv("WALLET_MODE", "HTTP")
	t.Setenv("WALLET_BASE_URL", "https://tokens.example.com/")
	t.Setenv("RATE_LIMIT_ENABLED", "nope")

	cfg := Load()

	assert.Equal(t, QuotaBackendRedis, cfg.Quota.Backend)
	assert.Equal(t, WalletModeHTTP, cfg.Wallet.Mode)
	assert.Equal(t, "https://tokens.example.com", cfg.Wallet.BaseURL)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.True(t, cfg.NeedsRedis())
}

func TestLoadCatalogConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yml")
	content := `actions:
  - name: vote
    free_quota_per_period: 3
    period: 24h
    token_cost: "0.5"
    allows_self_target: false
  - name: tournament_entry
    free_quota_per_period: 0
    period: 168h
    token_cost: "25"
    allows_self_target: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	out, err := LoadCatalogConfig(Config{CatalogFile: path})
	require.NoError(t, err)
	require.Len(t, out.Actions, 2)
	assert.Equal(t, "vote", out.Actions[0].Name)
	assert.Equal(t, 3, out.Actions[0].FreeQuotaPerPeriod)
	assert.Equal(t, "0.5", out.Actions[0].TokenCost)
	assert.Equal(t, "168h", out.Actions[1].Period)
	assert.True(t, out.Actions[1].AllowsSelfTarget)
}

func TestLoadCatalogConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadCatalogConfig(Config{CatalogFile: filepath.Join(t.TempDir(), "missing.yml")})
	assert.Error(t, err)
}

func TestLoadCatalogConfigFallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := LoadCatalogConfig(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalogConfig(), out)
}
