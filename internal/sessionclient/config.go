package sessionclient

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by ConfigFromEnv.
const EnvPrefix = "MINDBRIDGE_"

// Config holds all Session Client configuration.
type Config struct {
	// BaseURL is the assessment backend root, e.g. https://api.example.org.
	BaseURL string `env:"API_URL"`

	// Token is a fixed bearer token. TokenFile takes precedence when set.
	Token     string `env:"TOKEN"`
	TokenFile string `env:"TOKEN_FILE"`

	// RequestTimeout bounds every request except the dynamic fetch.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`

	// DynamicQuestionTimeout bounds FetchNextDynamicQuestion. Expiry
	// resolves to a fail-safe Final.
	DynamicQuestionTimeout time.Duration `env:"DYNAMIC_TIMEOUT"`

	// TokenLeeway treats a JWT as expired this long before its exp claim.
	TokenLeeway time.Duration `env:"TOKEN_LEEWAY"`

	Endpoints Endpoints
	Retry     RetryConfig `envPrefix:"RETRY_"`
	Cache     CacheConfig `envPrefix:"CACHE_"`
}

// Endpoints are the backend paths. The backend owns them; defaults match
// the current deployment.
type Endpoints struct {
	StartSession    string
	StaticQuestions string
	StaticResponses string
	DynamicNext     string
	DynamicAnswer   string
	Complete        string
	Sessions        string // history; detail is Sessions + "/" + id
}

// RetryConfig configures retries of idempotent reads.
type RetryConfig struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS"`
	InitialWait time.Duration `env:"INITIAL_WAIT"`
	MaxWait     time.Duration `env:"MAX_WAIT"`
	Multiplier  float64       `env:"MULTIPLIER"`
}

// CacheConfig configures the static-question and session-detail cache.
type CacheConfig struct {
	MaxSize int           `env:"MAX_SIZE"`
	TTL     time.Duration `env:"TTL"`
}

// DefaultEndpoints returns the default backend paths.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		StartSession:    "/api/assessment/sessions",
		StaticQuestions: "/api/assessment/questions/static",
		StaticResponses: "/api/assessment/static-responses",
		DynamicNext:     "/api/assessment/dynamic/next",
		DynamicAnswer:   "/api/assessment/dynamic/answer",
		Complete:        "/api/assessment/complete",
		Sessions:        "/api/assessment/sessions",
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:                "http://localhost:8088",
		RequestTimeout:         15 * time.Second,
		DynamicQuestionTimeout: 20 * time.Second,
		TokenLeeway:            30 * time.Second,
		Endpoints:              DefaultEndpoints(),
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     5 * time.Second,
			Multiplier:  2.0,
		},
		Cache: CacheConfig{
			MaxSize: 64,
			TTL:     10 * time.Minute,
		},
	}
}

// ConfigFromEnv overlays MINDBRIDGE_* environment variables onto the
// defaults. Unset variables keep their default.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration can reach a backend.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%sAPI_URL is required", EnvPrefix)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid %sAPI_URL: %w", EnvPrefix, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %sAPI_URL: scheme must be http or https, got %q", EnvPrefix, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %sAPI_URL: missing host", EnvPrefix)
	}
	if c.Token == "" && c.TokenFile == "" {
		return fmt.Errorf("%sTOKEN or %sTOKEN_FILE is required", EnvPrefix, EnvPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%sREQUEST_TIMEOUT must be positive", EnvPrefix)
	}
	if c.DynamicQuestionTimeout <= 0 {
		return fmt.Errorf("%sDYNAMIC_TIMEOUT must be positive", EnvPrefix)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%sRETRY_MAX_ATTEMPTS must be at least 1", EnvPrefix)
	}
	return nil
}

// TokenSource builds the credential accessor described by the config.
func (c Config) TokenSource() TokenSource {
	var src TokenSource = StaticToken(c.Token)
	if c.TokenFile != "" {
		src = FileToken{Path: c.TokenFile}
	}
	return WithExpiryCheck(src, c.TokenLeeway)
}
