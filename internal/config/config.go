// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/hkdf"

	"github.com/jmylchreest/pagemark/internal/constants"
	"github.com/jmylchreest/pagemark/internal/models"
)

// DotenvFiles are loaded in order before reading the environment. Earlier
// files win because godotenv never overrides a variable that is already set.
var DotenvFiles = []string{".env.local", ".env"}

// Config holds the API server configuration.
type Config struct {
	// Server settings
	Port        int
	BaseURL     string
	CORSOrigins []string

	// Optional shared bearer token for the extract and convert endpoints
	AccessToken string

	// Environment fallback for the extraction provider
	ExtractBaseURL   string
	ExtractModelID   string
	ExtractAPIKey    string
	ExtractPrompt    string
	ExtractRateLimit models.RateLimitConfig

	// Timeouts. StreamTimeout caps a whole streamed page extraction.
	RequestTimeout time.Duration
	DocxTimeout    time.Duration
	StreamTimeout  time.Duration

	// Per-IP request budget for the whole API
	RateLimitPerMinute int
	// Additional per-IP budget on /api/extract, the only route that spends
	// provider tokens. 0 disables it.
	ExtractRequestsPerMinute int

	// Export storage (S3-compatible). Disabled when ExportBucket is empty.
	ExportBucket    string
	ExportEndpoint  string
	ExportRegion    string
	ExportAccessKey string
	ExportSecretKey string
	ExportPrefix    string
	ExportPathStyle bool

	// Object key in the export bucket polled for runtime log filters. Empty disables polling.
	LogFiltersKey string

	// Object key in the export bucket holding a JSON array of blocked IPs and CIDRs.
	BlocklistKey string

	// Idle shutdown configuration (0 = disabled)
	IdleTimeout time.Duration
}

// ClientConfig holds the CLI configuration.
type ClientConfig struct {
	ServerURL   string
	AccessToken string
	DataDir     string
	RenderDPI   float64
	HTTPTimeout time.Duration

	// EncryptionKey is derived from PAGEMARK_SECRET. Nil means stored API keys
	// are only base64 obfuscated.
	EncryptionKey []byte
}

// LoadDotenv loads DotenvFiles from the working directory. Missing files are ignored.
func LoadDotenv() error {
	for _, name := range DotenvFiles {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the server configuration from the environment.
func Load() (*Config, error) {
	if err := LoadDotenv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),
		AccessToken: getEnv("ACCESS_TOKEN", ""),

		ExtractBaseURL: getEnv("EXTRACT_BASE_URL", ""),
		ExtractModelID: getEnv("EXTRACT_MODEL_ID", ""),
		ExtractAPIKey:  getEnv("EXTRACT_API_KEY", ""),
		ExtractPrompt:  getEnv("EXTRACT_CUSTOM_PROMPT", ""),
		ExtractRateLimit: models.RateLimitConfig{
			MaxRequests:              getEnvInt("EXTRACT_RATE_LIMIT_MAX_REQUESTS", 0),
			RequestWindowSeconds:     getEnvInt("EXTRACT_RATE_LIMIT_REQUEST_WINDOW_SECONDS", 0),
			MaxInputTokensPerMinute:  getEnvInt("EXTRACT_RATE_LIMIT_MAX_INPUT_TPM", 0),
			MaxOutputTokensPerMinute: getEnvInt("EXTRACT_RATE_LIMIT_MAX_OUTPUT_TPM", 0),
		},

		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", constants.DefaultRequestTimeout),
		DocxTimeout:        getEnvDuration("DOCX_TIMEOUT", constants.DocxRequestTimeout),
		StreamTimeout:      getEnvDuration("STREAM_TIMEOUT", constants.StreamTimeout),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		ExtractRequestsPerMinute: getEnvInt("EXTRACT_REQUESTS_PER_MINUTE", 60),

		// Fly/Tigris style variables are accepted as fallbacks
		ExportBucket:    getEnvWithFallback("EXPORT_S3_BUCKET", "BUCKET_NAME", ""),
		ExportEndpoint:  getEnvWithFallback("EXPORT_S3_ENDPOINT", "AWS_ENDPOINT_URL_S3", ""),
		ExportRegion:    getEnvWithFallback("EXPORT_S3_REGION", "AWS_REGION", "auto"),
		ExportAccessKey: getEnvWithFallback("EXPORT_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID", ""),
		ExportSecretKey: getEnvWithFallback("EXPORT_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY", ""),
		ExportPrefix:    getEnv("EXPORT_S3_PREFIX", "exports/"),
		ExportPathStyle: getEnvBool("EXPORT_S3_PATH_STYLE", false),
		LogFiltersKey:   getEnv("LOG_FILTERS_S3_KEY", ""),
		BlocklistKey:    getEnv("BLOCKLIST_S3_KEY", ""),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.RateLimitPerMinute <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", cfg.RateLimitPerMinute)
	}

	return cfg, nil
}

// IsExtractConfigured reports whether the environment alone can serve extractions.
func (c *Config) IsExtractConfigured() bool {
	return c.ExtractBaseURL != "" && c.ExtractModelID != "" && c.ExtractAPIKey != ""
}

// IsExtractPartial reports whether some but not all provider variables are set.
func (c *Config) IsExtractPartial() bool {
	set := 0
	for _, v := range []string{c.ExtractBaseURL, c.ExtractModelID, c.ExtractAPIKey} {
		if v != "" {
			set++
		}
	}
	return set > 0 && set < 3
}

// RequiresAuth reports whether ACCESS_TOKEN protection is active.
func (c *Config) RequiresAuth() bool {
	return c.AccessToken != ""
}

// ExportEnabled reports whether export storage is configured.
func (c *Config) ExportEnabled() bool {
	return c.ExportBucket != ""
}

// EnvConfig returns the presence-only view published by the config probe.
// Secrets are reduced to flags.
func (c *Config) EnvConfig() models.EnvConfig {
	env := models.EnvConfig{
		BaseURL:      c.ExtractBaseURL,
		ModelID:      c.ExtractModelID,
		HasAPIKey:    c.ExtractAPIKey != "",
		IsConfigured: c.IsExtractConfigured(),
		RequiresAuth: c.RequiresAuth(),
	}
	if c.ExtractRateLimit.Enabled() {
		rl := c.ExtractRateLimit
		env.RateLimit = &rl
	}
	return env
}

// LoadClient reads the CLI configuration from the environment.
func LoadClient() (*ClientConfig, error) {
	if err := LoadDotenv(); err != nil {
		return nil, err
	}

	cfg := &ClientConfig{
		ServerURL:   strings.TrimRight(getEnv("PAGEMARK_SERVER_URL", "http://localhost:8080"), "/"),
		AccessToken: getEnv("PAGEMARK_ACCESS_TOKEN", ""),
		DataDir:     getEnv("PAGEMARK_DATA_DIR", defaultDataDir()),
		RenderDPI:   getEnvFloat("PAGEMARK_RENDER_DPI", constants.DefaultRenderDPI),
		HTTPTimeout: getEnvDuration("PAGEMARK_HTTP_TIMEOUT", 0),
	}

	if cfg.RenderDPI <= 0 || cfg.RenderDPI > constants.MaxRenderDPI {
		return nil, fmt.Errorf("PAGEMARK_RENDER_DPI must be in (0, %.0f], got %v", constants.MaxRenderDPI, cfg.RenderDPI)
	}

	if secret := getEnv("PAGEMARK_SECRET", ""); secret != "" {
		cfg.EncryptionKey = deriveEncryptionKey(secret)
	}

	return cfg, nil
}

// SettingsPath is the location of the model configuration database.
func (c *ClientConfig) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.db")
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pagemark")
	}
	return ".pagemark"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}

// deriveEncryptionKey creates a 32-byte AES-256 key from a secret string using HKDF.
func deriveEncryptionKey(secret string) []byte {
	salt := []byte("pagemark-settings-key-v1")
	info := []byte("aes-256-gcm-api-key")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}
	return key
}
