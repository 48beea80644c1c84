// Package config loads service configuration from the environment, with an
// optional YAML profile for settings that are awkward as single variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Validator holds the validator service configuration.
type Validator struct {
	Port            string
	LogLevel        string
	PlatformURL     string
	Hotkey          string
	SeedHex         string
	ArtifactCacheDir string
	MaxWorkers      int
	UnitTimeout     time.Duration
	SessionTTL      time.Duration
	SearchBaseURL   string
	SearchAPIKey    string
	LLMBaseURL      string
	LLMAPIKey       string
	LLMModel        string
	OTLPEndpoint    string
	Profile         string
}

// LoadValidator reads validator configuration from the environment.
func LoadValidator() *Validator {
	return &Validator{
		Port:             envOr("PORT", "8080"),
		LogLevel:         envOr("LOG_LEVEL", "INFO"),
		PlatformURL:      envOr("PLATFORM_URL", "http://localhost:8090"),
		Hotkey:           os.Getenv("VALIDATOR_HOTKEY"),
		SeedHex:          os.Getenv("VALIDATOR_SEED_HEX"),
		ArtifactCacheDir: envOr("ARTIFACT_CACHE_DIR", "/var/lib/caster/artifacts"),
		MaxWorkers:       envInt("MAX_WORKERS", 4),
		UnitTimeout:      envDuration("UNIT_TIMEOUT", 2*time.Minute),
		SessionTTL:       envDuration("SESSION_TTL", 10*time.Minute),
		SearchBaseURL:    os.Getenv("SEARCH_BASE_URL"),
		SearchAPIKey:     os.Getenv("SEARCH_API_KEY"),
		LLMBaseURL:       envOr("LLM_BASE_URL", "http://localhost:1234"),
		LLMAPIKey:        os.Getenv("LLM_API_KEY"),
		LLMModel:         envOr("LLM_MODEL", "gpt-4o-mini"),
		OTLPEndpoint:     os.Getenv("OTLP_ENDPOINT"),
		Profile:          os.Getenv("CASTER_PROFILE"),
	}
}

// Platform holds the platform service configuration.
type Platform struct {
	Port         string
	LogLevel     string
	DatabasePath string
	ArtifactDir  string
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	OTLPEndpoint string
	Profile      string
}

// LoadPlatform reads platform configuration from the environment.
func LoadPlatform() *Platform {
	return &Platform{
		Port:         envOr("PORT", "8090"),
		LogLevel:     envOr("LOG_LEVEL", "INFO"),
		DatabasePath: envOr("DATABASE_PATH", "/var/lib/caster/platform.db"),
		ArtifactDir:  envOr("ARTIFACT_DIR", "/var/lib/caster/artifacts"),
		S3Bucket:     os.Getenv("S3_BUCKET"),
		S3Region:     envOr("S3_REGION", "us-east-1"),
		S3Endpoint:   os.Getenv("S3_ENDPOINT"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		Profile:      os.Getenv("CASTER_PROFILE"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
