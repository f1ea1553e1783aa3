// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg, err := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	policy := cfg.Reconciliation.Policy()
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/eshaffer321/invoice-ledger/internal/domain/matcher"
	"github.com/eshaffer321/invoice-ledger/internal/domain/pricewatch"
	"github.com/eshaffer321/invoice-ledger/internal/domain/units"
	reconcile "github.com/eshaffer321/invoice-ledger/internal/domain/validator"
)

// Config represents the entire application configuration
type Config struct {
	Storage        StorageConfig        `yaml:"storage"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Pricing        PricingConfig        `yaml:"pricing"`
	Matching       MatchingConfig       `yaml:"matching"`
	Weights        []WeightConfig       `yaml:"weights" validate:"dive"`
	Locking        LockingConfig        `yaml:"locking"`
	API            APIConfig            `yaml:"api"`
	Observability  ObservabilityConfig  `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" validate:"required"`
}

// ReconciliationConfig holds the total validation policy.
type ReconciliationConfig struct {
	BaseTolerance      float64 `yaml:"base_tolerance" validate:"gte=0"`
	SmartTolerance     bool    `yaml:"smart_tolerance"`
	ToleranceRate      float64 `yaml:"tolerance_rate" validate:"gte=0"`
	MaxTolerance       float64 `yaml:"max_tolerance" validate:"gte=0"`
	RoundingCorrection bool    `yaml:"rounding_correction"`
}

// PricingConfig holds price alert settings.
type PricingConfig struct {
	AlertThresholdPct float64 `yaml:"alert_threshold_pct" validate:"gte=0"`
	MinAbsDelta       float64 `yaml:"min_abs_delta" validate:"gte=0"`
}

// MatchingConfig holds code matcher settings.
type MatchingConfig struct {
	MinTokenLength    int           `yaml:"min_token_length" validate:"gte=1"`
	MinTokenFrequency int           `yaml:"min_token_frequency" validate:"gte=1"`
	CacheTTL          time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	LinksFile         string        `yaml:"links_file"` // optional xlsx/csv seed of confirmed links
}

// WeightConfig is a per-article mass override for pieces.
type WeightConfig struct {
	ArticleCode string  `yaml:"article_code"`
	Name        string  `yaml:"name" validate:"required"`
	KgPerPiece  float64 `yaml:"kg_per_piece" validate:"gt=0"`
}

// LockingConfig selects the lock backend. Without a Redis address locks
// are process-local.
type LockingConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl" validate:"gte=0"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Port           int      `yaml:"port" validate:"gte=0,lte=65535"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{DatabasePath: "invoice_ledger.db"},
		Reconciliation: ReconciliationConfig{
			BaseTolerance:  0.02,
			SmartTolerance: true,
			ToleranceRate:  0.0001,
			MaxTolerance:   0.50,
		},
		Pricing: PricingConfig{AlertThresholdPct: 1},
		Matching: MatchingConfig{
			MinTokenLength:    3,
			MinTokenFrequency: 1,
			CacheTTL:          10 * time.Minute,
		},
		Locking: LockingConfig{TTL: 30 * time.Second},
		API: APIConfig{
			Port:           8085,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "text"},
		},
	}
}

// Load reads and parses the config file. Keys missing from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${LEDGER_REDIS_ADDR})
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	def := Default()
	return &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("LEDGER_DB_PATH", def.Storage.DatabasePath),
		},
		Reconciliation: ReconciliationConfig{
			BaseTolerance:      getEnvFloat("LEDGER_TOLERANCE", def.Reconciliation.BaseTolerance),
			SmartTolerance:     getEnvBool("LEDGER_SMART_TOLERANCE", def.Reconciliation.SmartTolerance),
			ToleranceRate:      getEnvFloat("LEDGER_TOLERANCE_RATE", def.Reconciliation.ToleranceRate),
			MaxTolerance:       getEnvFloat("LEDGER_MAX_TOLERANCE", def.Reconciliation.MaxTolerance),
			RoundingCorrection: getEnvBool("LEDGER_AUTO_ROUNDING", def.Reconciliation.RoundingCorrection),
		},
		Pricing: PricingConfig{
			AlertThresholdPct: getEnvFloat("LEDGER_PRICE_WARN_PCT", def.Pricing.AlertThresholdPct),
		},
		Matching: MatchingConfig{
			MinTokenLength:    getEnvInt("LEDGER_MIN_TOKEN_LENGTH", def.Matching.MinTokenLength),
			MinTokenFrequency: getEnvInt("LEDGER_MIN_TOKEN_FREQUENCY", def.Matching.MinTokenFrequency),
			CacheTTL:          def.Matching.CacheTTL,
			LinksFile:         getEnv("LEDGER_LINKS_FILE", ""),
		},
		Locking: LockingConfig{
			RedisAddr: getEnv("LEDGER_REDIS_ADDR", ""),
			TTL:       def.Locking.TTL,
		},
		API: APIConfig{
			Port:           getEnvInt("LEDGER_API_PORT", def.API.Port),
			AllowedOrigins: def.API.AllowedOrigins,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() (*Config, error) {
	return LoadOrEnv_WithPath("config.yaml")
}

// LoadOrEnv_WithPath loads the file at path. Environment variables are used
// only when the file does not exist; an unreadable or invalid file is an
// error.
func LoadOrEnv_WithPath(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return LoadFromEnv(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		r := sl.Current().Interface().(ReconciliationConfig)
		// Zero means no cap.
		if r.MaxTolerance > 0 && r.MaxTolerance < r.BaseTolerance {
			sl.ReportError(r.MaxTolerance, "MaxTolerance", "max_tolerance", "gtefield", "BaseTolerance")
		}
	}, ReconciliationConfig{})
	return v
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Policy converts the reconciliation settings into a tolerance policy.
func (r ReconciliationConfig) Policy() reconcile.Policy {
	rate := decimal.NewFromFloat(r.ToleranceRate)
	if r.ToleranceRate == 0 {
		rate = reconcile.DefaultRate
	}
	return reconcile.Policy{
		Base:               decimal.NewFromFloat(r.BaseTolerance),
		Smart:              r.SmartTolerance,
		Scale:              reconcile.Proportional(rate),
		Max:                decimal.NewFromFloat(r.MaxTolerance),
		RoundingCorrection: r.RoundingCorrection,
	}
}

// Rule converts the pricing settings into a deviation rule.
func (p PricingConfig) Rule() pricewatch.Rule {
	return pricewatch.Rule{
		ThresholdPct: decimal.NewFromFloat(p.AlertThresholdPct),
		MinAbsDelta:  decimal.NewFromFloat(p.MinAbsDelta),
	}
}

// MatcherConfig converts the matching settings into a matcher config.
func (m MatchingConfig) MatcherConfig() matcher.Config {
	cfg := matcher.DefaultConfig()
	if m.MinTokenLength > 0 {
		cfg.MinTokenLength = m.MinTokenLength
	}
	if m.MinTokenFrequency > 0 {
		cfg.MinTokenFrequency = m.MinTokenFrequency
	}
	cfg.CacheTTL = m.CacheTTL
	if m.CacheTTL > 0 {
		cfg.CacheCleanInterval = 2 * m.CacheTTL
	}
	return cfg
}

// WeightOverrides converts the weights table for the unit normalizer.
func (c *Config) WeightOverrides() []units.WeightOverride {
	out := make([]units.WeightOverride, 0, len(c.Weights))
	for _, w := range c.Weights {
		out = append(out, units.WeightOverride{
			ArticleCode: w.ArticleCode,
			Name:        w.Name,
			KgPerPiece:  decimal.NewFromFloat(w.KgPerPiece),
		})
	}
	return out
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}
