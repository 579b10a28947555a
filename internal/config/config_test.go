package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	req.NoError(err)

	req.Equal("s3cret", cfg.SecretToken)
	req.Equal("pulse-realtime", cfg.Service.Name)
	req.Equal(10*time.Second, cfg.Realtime.AuthTimeout)
	req.Equal(4*time.Second, cfg.Realtime.TypingTTL)
	req.Equal(5000, cfg.Realtime.MaxContentLength)
	req.Equal("redis://localhost:6379", cfg.Redis.URL)
	req.Equal(30*time.Second, cfg.Presence.HeartbeatInterval)
	req.Equal("/metrics", cfg.Metrics.Path)
}

func TestLoad_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REALTIME_TYPING_TTL", "3s")
	t.Setenv("REALTIME_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("DB_MAX_OPEN_CONNS", "7")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	req.NoError(err)

	req.Equal(3*time.Second, cfg.Realtime.TypingTTL)
	req.Equal([]string{"https://a.example", "https://b.example"}, cfg.Realtime.AllowedOrigins)
	req.Equal(7, cfg.Postgres.MaxOpenConns)
}

func TestLoad_EnvFile(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), ".env")
	req.NoError(os.WriteFile(path, []byte("JWT_SECRET=from-file\nSERVICE_NAME=file-svc\n"), 0o600))
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	t.Setenv("SERVICE_NAME", "")
	os.Unsetenv("SERVICE_NAME")

	cfg, err := Load(path)
	req.NoError(err)

	req.Equal("from-file", cfg.SecretToken)
	req.Equal("file-svc", cfg.Service.Name)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}
