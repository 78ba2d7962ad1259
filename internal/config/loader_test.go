package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 9180, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 30*time.Second, cfg.Reliability.Timeout.Duration())
	assert.Equal(t, 2, cfg.Reliability.MaxRetries)
	assert.Equal(t, time.Second, cfg.Reliability.BaseDelay.Duration())
	assert.Equal(t, 3, cfg.Reliability.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Reliability.ResetTimeout.Duration())
	assert.Equal(t, 120*time.Minute, cfg.Session.IdleWindow.Duration())
	assert.Equal(t, 5*time.Minute, cfg.Session.SweepInterval.Duration())
	assert.InDelta(t, 0.6, cfg.Learning.MinConfidence, 1e-9)
	assert.InDelta(t, 0.7, cfg.Learning.WarmStartConfidence, 1e-9)
	assert.InDelta(t, 0.8, cfg.Learning.PromotionConfidence, 1e-9)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Empty(t, cfg.Providers)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoutd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
session:
  idle_window: 30m
providers:
  - name: anthropic
    api_key: sk-test-key
    model: claude-3-5-haiku-20241022
storage:
  backend: memory
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host, "unset fields keep defaults")
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleWindow.Duration())
	assert.Equal(t, "memory", cfg.Storage.Backend)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "anthropic", cfg.Providers[0].Name)
	assert.Equal(t, "sk-test-key", cfg.Providers[0].APIKey.Value())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCOUTD_SERVER_PORT", "7070")
	t.Setenv("SCOUTD_SESSION_IDLE_WINDOW", "45m")
	t.Setenv("SCOUTD_STORAGE_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 45*time.Minute, cfg.Session.IdleWindow.Duration())
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoutd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o600))
	t.Setenv("SCOUTD_SERVER_PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [::"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: postgres\n"), 0o600))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.backend")
	})

	t.Run("provider without key rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("providers:\n  - name: anthropic\n"), 0o600))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api_key")
	})

	t.Run("oversized file rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "huge.yaml")
		require.NoError(t, os.WriteFile(path, make([]byte, maxConfigFileSize+1), 0o600))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds")
	})
}

func TestDuration(t *testing.T) {
	t.Run("parses text", func(t *testing.T) {
		var d Duration
		require.NoError(t, d.UnmarshalText([]byte("90s")))
		assert.Equal(t, 90*time.Second, d.Duration())
	})

	t.Run("rejects negative", func(t *testing.T) {
		var d Duration
		assert.Error(t, d.UnmarshalText([]byte("-5s")))
	})

	t.Run("rejects garbage", func(t *testing.T) {
		var d Duration
		assert.Error(t, d.UnmarshalText([]byte("soon")))
	})

	t.Run("round trips", func(t *testing.T) {
		d := Duration(30 * time.Second)
		text, err := d.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, "30s", string(text))
	})
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("sk-super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-super-secret", s.Value())
	assert.True(t, s.IsSet())
	assert.False(t, Secret("").IsSet())

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-super-secret")
	assert.Contains(t, string(data), "[REDACTED]")
}
