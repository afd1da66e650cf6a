package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Env: "development"},
		Database: DatabaseConfig{Password: "dataplunge_secret"},
		Auth:     AuthConfig{JWTSecret: "test-secret-0123456789abcdef", SessionLifetime: time.Hour},
		Ingest:   IngestConfig{WindowDays: 30},
	}
}

func TestValidateRequiresJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresPositiveWindow(t *testing.T) {
	cfg := validConfig()
	cfg.Ingest.WindowDays = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDefaultPasswordInProduction(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate(), "default password is fine outside production")

	cfg.Server.Env = "production"
	assert.Error(t, cfg.Validate())

	cfg.Database.Password = "something-else"
	assert.NoError(t, cfg.Validate())
}

func TestLogFormatDefaults(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "console", cfg.LogFormat(), "development defaults to console output")

	cfg.Server.Env = "production"
	assert.Equal(t, "json", cfg.LogFormat())

	cfg.Log.Format = "console"
	assert.Equal(t, "console", cfg.LogFormat(), "an explicit format wins")
}
