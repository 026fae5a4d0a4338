// Package config loads gateway configuration from the process
// environment (optionally seeded from a .env file), the way the teacher's
// cmd/mediaserver/cmd/main.go loads its own startup configuration.
package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/arlojanssen/refstream/util/strutil"
)

// Config holds every value this gateway reads at startup. spec.md §6
// names tempdir and timeout explicitly; the rest (listen addresses, tool
// paths, optional Redis cache) are the ambient/domain-stack additions
// SPEC_FULL.md §1-2 calls for.
type Config struct {
	ListenAddr     string
	MetricsAddr    string
	TempDir        string
	TimeoutSeconds int
	RedisAddr      string
	AllowedTokens  []string

	SamtoolsPath  string
	BcftoolsPath  string
	BiobambamPath string
}

// GraceTimeout is spec.md's processTimeoutGrace: TimeoutSeconds converted
// to the millisecond-scale duration the grace timer arms for.
func (c Config) GraceTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getenvIntDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	parsed, err := strutil.Stov(v, reflect.TypeOf(fallback))
	if err != nil {
		return fallback
	}
	return int(parsed.(int64))
}

// Load reads a .env file if present (a missing file is not fatal — in
// production the orchestrator injects env vars directly, exactly as the
// teacher's main.go treats .env as a development convenience) and decodes
// Config from the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		// No .env in the working directory is the common case outside
		// local development; env vars may already be set by the caller.
	}

	return Config{
		ListenAddr:     getenvDefault("REFSTREAM_LISTEN_ADDR", "localhost:8080"),
		MetricsAddr:    getenvDefault("REFSTREAM_METRICS_ADDR", "localhost:9090"),
		TempDir:        getenvDefault("REFSTREAM_TEMPDIR", os.TempDir()),
		TimeoutSeconds: getenvIntDefault("REFSTREAM_TIMEOUT", 30),
		RedisAddr:      os.Getenv("REFSTREAM_REDIS_ADDR"),
		AllowedTokens:  splitNonEmpty(os.Getenv("REFSTREAM_ALLOWED_TOKENS"), ","),

		SamtoolsPath:  getenvDefault("REFSTREAM_SAMTOOLS_PATH", "samtools"),
		BcftoolsPath:  getenvDefault("REFSTREAM_BCFTOOLS_PATH", "bcftools"),
		BiobambamPath: getenvDefault("REFSTREAM_BIOBAMBAM_PATH", "bamsormadup"),
	}
}
