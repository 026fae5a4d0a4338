package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func clearRefstreamEnv() {
	for _, key := range []string{
		"REFSTREAM_LISTEN_ADDR", "REFSTREAM_METRICS_ADDR", "REFSTREAM_TEMPDIR",
		"REFSTREAM_TIMEOUT", "REFSTREAM_REDIS_ADDR", "REFSTREAM_ALLOWED_TOKENS",
		"REFSTREAM_SAMTOOLS_PATH", "REFSTREAM_BCFTOOLS_PATH", "REFSTREAM_BIOBAMBAM_PATH",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearRefstreamEnv()
	defer clearRefstreamEnv()

	cfg := Load()

	assert.Equal(t, "localhost:8080", cfg.ListenAddr)
	assert.Equal(t, "localhost:9090", cfg.MetricsAddr)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
	assert.Equal(t, "samtools", cfg.SamtoolsPath)
	assert.Equal(t, "bcftools", cfg.BcftoolsPath)
	assert.Equal(t, "bamsormadup", cfg.BiobambamPath)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.AllowedTokens)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearRefstreamEnv()
	defer clearRefstreamEnv()

	os.Setenv("REFSTREAM_LISTEN_ADDR", "0.0.0.0:9999")
	os.Setenv("REFSTREAM_TIMEOUT", "45")
	os.Setenv("REFSTREAM_REDIS_ADDR", "localhost:6379")
	os.Setenv("REFSTREAM_ALLOWED_TOKENS", "tok-a, tok-b ,tok-c")

	cfg := Load()

	assert.Equal(t, "0.0.0.0:9999", cfg.ListenAddr)
	assert.Equal(t, 45, cfg.TimeoutSeconds)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, []string{"tok-a", "tok-b", "tok-c"}, cfg.AllowedTokens)
}

func TestLoad_InvalidTimeoutFallsBackToDefault(t *testing.T) {
	clearRefstreamEnv()
	defer clearRefstreamEnv()

	os.Setenv("REFSTREAM_TIMEOUT", "not-a-number")

	cfg := Load()

	assert.Equal(t, 30, cfg.TimeoutSeconds)
}

func TestConfig_GraceTimeout(t *testing.T) {
	cfg := Config{TimeoutSeconds: 10}
	assert.Equal(t, 10*time.Second, cfg.GraceTimeout())
}

func TestSplitNonEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty("a,b", ","))
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty("a, ,b,", ","))
	assert.Nil(t, splitNonEmpty("", ","))
}
