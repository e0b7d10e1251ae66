package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/macrolog/internal/confidence"
	"github.com/starford/macrolog/internal/janitor"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Cache backends.
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Gateway    GatewayConfig     `yaml:"gateway"`
	Cache      CacheConfig       `yaml:"cache"`
	Pipeline   PipelineConfig    `yaml:"pipeline"`
	Confidence ConfidenceConfig  `yaml:"confidence"`
	Budget     BudgetConfig      `yaml:"budget"`
	Catalog    CatalogConfig     `yaml:"catalog"`
	Janitor    JanitorConfig     `yaml:"janitor"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.SQLite, &c.Auth, &c.Gateway, &c.Cache,
		&c.Pipeline, &c.Confidence, &c.Budget, &c.Catalog, &c.Janitor,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// GatewayConfig points at the model gateway. An empty URL disables model
// extraction and the estimation provider.
type GatewayConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Enabled reports whether a gateway is configured.
func (c *GatewayConfig) Enabled() bool {
	return c.URL != ""
}

// Validate validates the gateway configuration.
func (c *GatewayConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.When(c.Enabled(), validation.Required)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// CacheConfig selects the persistent estimate cache.
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = CacheBackendSQLite
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(CacheBackendSQLite, CacheBackendRedis)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.Redis, validation.By(func(any) error {
			if c.Backend == CacheBackendRedis && c.Redis.Addr == "" {
				return fmt.Errorf("addr is required for the redis backend")
			}
			return nil
		})),
	)
}

// PipelineConfig tunes meal resolution.
type PipelineConfig struct {
	ProviderTimeout      time.Duration     `yaml:"provider_timeout"`
	Concurrency          int               `yaml:"concurrency"`
	DefaultCountry       string            `yaml:"default_country"`
	NaiveSplitConfidence float64           `yaml:"naive_split_confidence"`
	BrandHints           map[string]string `yaml:"brand_hints"`
}

// Validate validates the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ProviderTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.DefaultCountry, validation.Required, validation.Length(2, 2)),
		validation.Field(&c.NaiveSplitConfidence, validation.Required, validation.Min(0.0), validation.Max(1.0)),
	)
}

// ConfidenceConfig holds the gate weights and thresholds.
type ConfidenceConfig struct {
	Weights         WeightsConfig `yaml:"weights"`
	MinOverall      float64       `yaml:"min_overall"`
	MinCompleteness float64       `yaml:"min_completeness"`
	MinKcal         float64       `yaml:"min_kcal"`
	MaxKcal         float64       `yaml:"max_kcal"`
	LowConfidence   float64       `yaml:"low_confidence"`
}

// WeightsConfig blends the confidence factors; the weights must sum to 1.
type WeightsConfig struct {
	Extraction    float64 `yaml:"extraction"`
	Completeness  float64 `yaml:"completeness"`
	MacroValidity float64 `yaml:"macro_validity"`
	CalorieRange  float64 `yaml:"calorie_range"`
}

// Validate validates the confidence configuration.
func (c *ConfidenceConfig) Validate() error {
	w := c.Weights
	if sum := w.Extraction + w.Completeness + w.MacroValidity + w.CalorieRange; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("confidence: weights sum to %.3f, want 1", sum)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.MinOverall, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.MinCompleteness, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.MinKcal, validation.Min(0.0)),
		validation.Field(&c.MaxKcal, validation.Required, validation.Min(c.MinKcal)),
		validation.Field(&c.LowConfidence, validation.Min(0.0), validation.Max(1.0)),
	)
}

// Gate converts the section into the gate configuration.
func (c *ConfidenceConfig) Gate() confidence.Config {
	return confidence.Config{
		Weights: confidence.Weights{
			Extraction:    c.Weights.Extraction,
			Completeness:  c.Weights.Completeness,
			MacroValidity: c.Weights.MacroValidity,
			CalorieRange:  c.Weights.CalorieRange,
		},
		MinOverall:      c.MinOverall,
		MinCompleteness: c.MinCompleteness,
		MinKcal:         c.MinKcal,
		MaxKcal:         c.MaxKcal,
		LowConfidence:   c.LowConfidence,
	}
}

// BudgetConfig holds energy budget settings.
type BudgetConfig struct {
	FallbackKcal float64       `yaml:"fallback_kcal"`
	SSEThrottle  time.Duration `yaml:"sse_throttle"`
}

// Validate validates the budget configuration.
func (c *BudgetConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FallbackKcal, validation.Required, validation.Min(800.0), validation.Max(10000.0)),
		validation.Field(&c.SSEThrottle, validation.Min(time.Duration(0))),
	)
}

// CatalogConfig locates the brand catalog. An empty path uses the embedded
// catalog; Watch reloads the file when it changes.
type CatalogConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	if c.Watch && c.Path == "" {
		return fmt.Errorf("catalog: watch needs a path")
	}
	return nil
}

// JanitorConfig schedules cache maintenance.
type JanitorConfig struct {
	Schedule string `yaml:"schedule"`
}

// Validate validates the janitor configuration.
func (c *JanitorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Schedule, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	gate := confidence.DefaultConfig()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./macrolog.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Gateway: GatewayConfig{
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Backend: CacheBackendSQLite,
			TTL:     720 * time.Hour,
		},
		Pipeline: PipelineConfig{
			ProviderTimeout:      8 * time.Second,
			Concurrency:          4,
			DefaultCountry:       "us",
			NaiveSplitConfidence: 0.5,
		},
		Confidence: ConfidenceConfig{
			Weights: WeightsConfig{
				Extraction:    gate.Weights.Extraction,
				Completeness:  gate.Weights.Completeness,
				MacroValidity: gate.Weights.MacroValidity,
				CalorieRange:  gate.Weights.CalorieRange,
			},
			MinOverall:      gate.MinOverall,
			MinCompleteness: gate.MinCompleteness,
			MinKcal:         gate.MinKcal,
			MaxKcal:         gate.MaxKcal,
			LowConfidence:   gate.LowConfidence,
		},
		Budget: BudgetConfig{
			FallbackKcal: 2000,
			SSEThrottle:  2 * time.Second,
		},
		Janitor: JanitorConfig{
			Schedule: janitor.DefaultSchedule,
		},
	}
}
