package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadExampleConfig(t *testing.T) {
	configPaths := []string{
		"../../../config.example.yaml", // From internal/infrastructure/config
		"config.example.yaml",
	}

	var cfg *Config
	var err error
	found := false
	for _, path := range configPaths {
		cfg, err = Load(path)
		if err == nil {
			found = true
			break
		}
	}
	if !found {
		t.Skip("config.example.yaml not found in expected locations")
	}

	require.NoError(t, err)
	assert.Equal(t, "invoice_ledger.db", cfg.Storage.DatabasePath)
	assert.True(t, cfg.Reconciliation.SmartTolerance)
}

func TestLoad_KeepsDefaultsForMissingKeys(t *testing.T) {
	// Arrange
	path := writeConfig(t, `
storage:
  database_path: "custom.db"
reconciliation:
  base_tolerance: 0.05
  rounding_correction: true
matching:
  cache_ttl: 2m
weights:
  - article_code: "A-77"
    name: "Sir Gauda"
    kg_per_piece: 0.25
`)

	// Act
	cfg, err := Load(path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "custom.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 0.05, cfg.Reconciliation.BaseTolerance)
	assert.True(t, cfg.Reconciliation.RoundingCorrection)
	assert.Equal(t, 0.50, cfg.Reconciliation.MaxTolerance)
	assert.Equal(t, 2*time.Minute, cfg.Matching.CacheTTL)
	assert.Equal(t, 3, cfg.Matching.MinTokenLength)
	require.Len(t, cfg.Weights, 1)

	overrides := cfg.WeightOverrides()
	assert.Equal(t, "A-77", overrides[0].ArticleCode)
	assert.Equal(t, "0.25", overrides[0].KgPerPiece.String())
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative tolerance", "reconciliation:\n  base_tolerance: -1\n"},
		{"cap below base", "reconciliation:\n  base_tolerance: 0.10\n  max_tolerance: 0.05\n"},
		{"negative threshold", "pricing:\n  alert_threshold_pct: -2\n"},
		{"weight without mass", "weights:\n  - name: x\n    kg_per_piece: 0\n"},
		{"bad log level", "observability:\n  logging:\n    level: loud\n"},
		{"empty db path", "storage:\n  database_path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ZeroCapIsAllowed(t *testing.T) {
	cfg, err := Load(writeConfig(t, "reconciliation:\n  base_tolerance: 0.10\n  max_tolerance: 0\n"))

	require.NoError(t, err)
	assert.True(t, cfg.Reconciliation.Policy().Max.IsZero())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LEDGER_DB_PATH", "test.db")
	t.Setenv("LEDGER_TOLERANCE", "0.03")
	t.Setenv("LEDGER_SMART_TOLERANCE", "false")
	t.Setenv("LEDGER_AUTO_ROUNDING", "true")
	t.Setenv("LEDGER_PRICE_WARN_PCT", "5")
	t.Setenv("LEDGER_REDIS_ADDR", "localhost:6379")

	cfg := LoadFromEnv()

	assert.Equal(t, "test.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 0.03, cfg.Reconciliation.BaseTolerance)
	assert.False(t, cfg.Reconciliation.SmartTolerance)
	assert.True(t, cfg.Reconciliation.RoundingCorrection)
	assert.Equal(t, 5.0, cfg.Pricing.AlertThresholdPct)
	assert.Equal(t, "localhost:6379", cfg.Locking.RedisAddr)
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("LEDGER_DB_PATH", "")
	t.Setenv("LEDGER_TOLERANCE", "not-a-number")

	cfg := LoadFromEnv()

	assert.Equal(t, "invoice_ledger.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 0.02, cfg.Reconciliation.BaseTolerance)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOrEnv_FallbackToEnv(t *testing.T) {
	t.Setenv("LEDGER_DB_PATH", "fallback.db")

	cfg, err := LoadOrEnv_WithPath(filepath.Join(t.TempDir(), "nonexistent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "fallback.db", cfg.Storage.DatabasePath)
}

func TestLoadOrEnv_InvalidFileIsNotReplaced(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "fails validation",
			content: `
storage:
  database_path: my.db
reconciliation:
  base_tolerance: 0.05
  max_tolerance: 0.01
  rounding_correction: true
`,
		},
		{
			name:    "yaml syntax error",
			content: "storage: [unclosed\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LEDGER_DB_PATH", "fallback.db")
			path := writeConfig(t, tt.content)

			cfg, err := LoadOrEnv_WithPath(path)

			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), path)
		})
	}
}

func TestEnvVarExpansion(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "${TEST_DB_PATH}"
locking:
  redis_addr: "${TEST_REDIS_ADDR}"
`)
	t.Setenv("TEST_DB_PATH", "expanded.db")
	t.Setenv("TEST_REDIS_ADDR", "redis:6379")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "expanded.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "redis:6379", cfg.Locking.RedisAddr)
}

func TestPolicyConversion(t *testing.T) {
	cfg := Default()

	policy := cfg.Reconciliation.Policy()
	rule := cfg.Pricing.Rule()
	mc := cfg.Matching.MatcherConfig()

	assert.Equal(t, "0.02", policy.Base.String())
	assert.Equal(t, "0.5", policy.Max.String())
	assert.True(t, policy.Smart)
	assert.Equal(t, "0.5", policy.Tolerance(decimal.NewFromInt(15000)).String())
	assert.Equal(t, "0.1", policy.Tolerance(decimal.NewFromInt(1000)).String())
	assert.Equal(t, "1", rule.ThresholdPct.String())
	assert.Equal(t, 3, mc.MinTokenLength)
	assert.Equal(t, 20*time.Minute, mc.CacheCleanInterval)
}
