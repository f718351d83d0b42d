package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// DefaultCouncilModels is the council used when the client does not send its own selection
var DefaultCouncilModels = []string{
	"openai/gpt-5.1",
	"google/gemini-3-pro-preview",
	"anthropic/claude-sonnet-4.5",
	"x-ai/grok-4",
}

// Config holds every process-wide setting. It is built once at startup and
// passed by reference to the components that need it.
type Config struct {
	// OpenRouterAPIKey is the API key for OpenRouter
	OpenRouterAPIKey string

	// OpenRouterAPIURL is the chat completions endpoint
	OpenRouterAPIURL string

	// CouncilModels is advertised to clients as the default selection
	CouncilModels []string

	// FallbackChairman is used when neither the request nor the selection yields a chairman
	FallbackChairman string

	// TitleModel generates conversation titles
	TitleModel string

	ModelQueryTimeout time.Duration
	TitleGenTimeout   time.Duration

	// PersistTimeout bounds each council write to storage
	PersistTimeout time.Duration

	// ResponseMaxLength is the character budget for stage 1 and 2 answers (0 = provider default)
	ResponseMaxLength int

	// SynthesisMaxLength is the character budget for the chairman
	SynthesisMaxLength int

	// MaxConcurrency bounds in-flight model calls per stage (0 = unbounded)
	MaxConcurrency int

	// ModelRateLimit is outbound requests per second across all models (0 = unlimited)
	ModelRateLimit float64
	ModelRateBurst int

	ListenAddr string

	// CORSAllowedOrigins; empty allows any localhost origin
	CORSAllowedOrigins []string

	// MaxRequestBodySize is the maximum allowed request body size
	MaxRequestBodySize int64

	StorageBackend string
	DataDir        string
	DatabasePath   string

	FetchCacheTTL time.Duration

	LogLevel       string
	LogDevelopment bool
}

// Default returns a configuration with every default applied and no API key.
func Default() *Config {
	models := make([]string, len(DefaultCouncilModels))
	copy(models, DefaultCouncilModels)

	return &Config{
		OpenRouterAPIURL:   "https://openrouter.ai/api/v1/chat/completions",
		CouncilModels:      models,
		FallbackChairman:   "google/gemini-3-pro-preview",
		TitleModel:         "google/gemini-2.5-flash",
		ModelQueryTimeout:  120 * time.Second,
		TitleGenTimeout:    30 * time.Second,
		PersistTimeout:     10 * time.Second,
		ResponseMaxLength:  8000,
		SynthesisMaxLength: 16000,
		ModelRateBurst:     1,
		ListenAddr:         ":8001",
		MaxRequestBodySize: 1 << 20,
		StorageBackend:     StorageFile,
		DataDir:            "data/conversations",
		DatabasePath:       "data/council.db",
		FetchCacheTTL:      5 * time.Minute,
		LogLevel:           "info",
	}
}

// Load builds the configuration from an optional .env file and the environment.
// The returned []string lists informational messages (e.g. which .env was used)
// for the caller to log once a logger exists.
func Load() (*Config, []string, error) {
	var notes []string

	envLoaded := false
	for _, envPath := range []string{".env", "../.env"} {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			if err := godotenv.Load(absPath); err == nil {
				notes = append(notes, "loaded .env from "+absPath)
				envLoaded = true
				break
			}
		}
	}
	if !envLoaded {
		notes = append(notes, ".env file not found in any expected location")
	}

	cfg, err := FromEnv()
	return cfg, notes, err
}

// FromEnv reads the configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := Default()
	var errs []error

	cfg.OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	if cfg.OpenRouterAPIKey == "" {
		errs = append(errs, errors.New("OPENROUTER_API_KEY environment variable is required"))
	}

	cfg.OpenRouterAPIURL = getEnv("OPENROUTER_API_URL", cfg.OpenRouterAPIURL)
	if models := getList("COUNCIL_MODELS"); len(models) > 0 {
		cfg.CouncilModels = models
	}
	cfg.FallbackChairman = getEnv("FALLBACK_CHAIRMAN_MODEL", cfg.FallbackChairman)
	cfg.TitleModel = getEnv("TITLE_MODEL", cfg.TitleModel)
	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", cfg.StorageBackend))
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	if origins := getList("CORS_ALLOWED_ORIGINS"); len(origins) > 0 {
		cfg.CORSAllowedOrigins = origins
	}

	p := parser{}
	cfg.ModelQueryTimeout = p.duration("MODEL_QUERY_TIMEOUT", cfg.ModelQueryTimeout)
	cfg.TitleGenTimeout = p.duration("TITLE_GEN_TIMEOUT", cfg.TitleGenTimeout)
	cfg.PersistTimeout = p.duration("PERSIST_TIMEOUT", cfg.PersistTimeout)
	cfg.FetchCacheTTL = p.duration("FETCH_CACHE_TTL", cfg.FetchCacheTTL)
	cfg.ResponseMaxLength = p.int("RESPONSE_MAX_LENGTH", cfg.ResponseMaxLength)
	cfg.SynthesisMaxLength = p.int("SYNTHESIS_MAX_LENGTH", cfg.SynthesisMaxLength)
	cfg.MaxConcurrency = p.int("MAX_CONCURRENCY", cfg.MaxConcurrency)
	cfg.ModelRateBurst = p.int("MODEL_RATE_BURST", cfg.ModelRateBurst)
	cfg.ModelRateLimit = p.float("MODEL_RATE_LIMIT", cfg.ModelRateLimit)
	cfg.MaxRequestBodySize = int64(p.int("MAX_REQUEST_BODY_SIZE", int(cfg.MaxRequestBodySize)))
	cfg.LogDevelopment = p.bool("LOG_DEVELOPMENT", cfg.LogDevelopment)
	errs = append(errs, p.errs...)

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks invariants between settings.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageFile, StorageSQLite:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want %q or %q)", c.StorageBackend, StorageFile, StorageSQLite)
	}
	if c.ResponseMaxLength < 0 || c.SynthesisMaxLength < 0 {
		return errors.New("response length budgets must not be negative")
	}
	if c.SynthesisMaxLength > 0 && c.ResponseMaxLength > 0 && c.SynthesisMaxLength <= c.ResponseMaxLength {
		return fmt.Errorf("SYNTHESIS_MAX_LENGTH (%d) must exceed RESPONSE_MAX_LENGTH (%d)", c.SynthesisMaxLength, c.ResponseMaxLength)
	}
	if c.MaxConcurrency < 0 {
		return errors.New("MAX_CONCURRENCY must not be negative")
	}
	if c.ModelRateLimit < 0 {
		return errors.New("MODEL_RATE_LIMIT must not be negative")
	}
	if c.ModelRateBurst < 1 {
		return errors.New("MODEL_RATE_BURST must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// getList splits a comma separated variable, dropping empty entries
func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parser collects conversion errors so all bad variables are reported at once
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}
