package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithMemoryDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("GIN_MODE", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, int64(100), cfg.Registration.MaxParticipants)
	assert.Equal(t, 15*time.Minute, cfg.Registration.CodeTTL)
	assert.Equal(t, 3*time.Second, cfg.Registration.MinFormFillTime)
	assert.Equal(t, 60*time.Second, cfg.Registration.ResendCooldown)
	assert.Equal(t, "log", cfg.Email.Provider)
	assert.Equal(t, 10, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.False(t, cfg.Database.UsesPostgres())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("MAX_PARTICIPANTS", "25")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RESEND_COOLDOWN", "2m")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, int64(25), cfg.Registration.MaxParticipants)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 2*time.Minute, cfg.Registration.ResendCooldown)
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Setenv("GIN_MODE", "debug")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
database:
  driver: memory
registration:
  max_participants: 7
email:
  provider: log
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Registration.MaxParticipants)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:       ServerConfig{Mode: "debug"},
			Database:     DatabaseConfig{Driver: "memory"},
			Registration: RegistrationConfig{MaxParticipants: 10},
			Email:        EmailConfig{Provider: "log"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		cfg := base()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("postgres without host", func(t *testing.T) {
		cfg := base()
		cfg.Database.Driver = "postgres"
		assert.Error(t, cfg.Validate())
	})

	t.Run("resend without key", func(t *testing.T) {
		cfg := base()
		cfg.Email.Provider = "resend"
		assert.Error(t, cfg.Validate())
	})

	t.Run("log provider in release", func(t *testing.T) {
		cfg := base()
		cfg.Server.Mode = "release"
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero capacity", func(t *testing.T) {
		cfg := base()
		cfg.Registration.MaxParticipants = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("redis enabled without address", func(t *testing.T) {
		cfg := base()
		cfg.Redis.Enabled = true
		assert.Error(t, cfg.Validate())
	})
}
