package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ACCESS_CODE_KEY", "k")
	t.Setenv("AWS_REGION", "")
	t.Setenv("DEBOUNCE_WINDOW", "")
	t.Setenv("PUBLIC_BASE_URL", "https://jobs.example.com/")
	t.Setenv("WORKER_MODE", "")
	t.Setenv("CACHE_TTL", "")
	t.Setenv("AWS_MAX_ATTEMPTS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, 2*time.Second, cfg.DebounceWindow)
	assert.Equal(t, "https://jobs.example.com", cfg.PublicBaseURL)
	assert.Equal(t, "magic_links", cfg.LinksTable)
	assert.Equal(t, "events", cfg.WorkerMode)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 3, cfg.AWSMaxAttempts)
}

func TestLoad_AWSMaxAttempts(t *testing.T) {
	t.Setenv("ACCESS_CODE_KEY", "k")
	t.Setenv("AWS_MAX_ATTEMPTS", "6")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.AWSMaxAttempts)

	t.Setenv("AWS_MAX_ATTEMPTS", "many")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_RequiresKey(t *testing.T) {
	t.Setenv("ACCESS_CODE_KEY", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_DebounceWindow(t *testing.T) {
	t.Setenv("ACCESS_CODE_KEY", "k")
	t.Setenv("DEBOUNCE_WINDOW", "500ms")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceWindow)

	t.Setenv("DEBOUNCE_WINDOW", "soon")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("DEBOUNCE_WINDOW", "-1s")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_CacheTTL(t *testing.T) {
	t.Setenv("ACCESS_CODE_KEY", "k")
	t.Setenv("CACHE_TTL", "5s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.CacheTTL)

	t.Setenv("CACHE_TTL", "0s")
	_, err = Load()
	assert.Error(t, err)
}

func TestTable_Prefix(t *testing.T) {
	cfg := &Config{TablePrefix: "dev_", LinksTable: "magic_links"}
	assert.Equal(t, "dev_jobs", cfg.Table("jobs"))
	assert.Equal(t, "dev_magic_links", cfg.Table("links"))
	assert.Equal(t, "dev_evidence", cfg.Table("evidence"))
}
