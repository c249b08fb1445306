package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.JWT.AccessExpiry())
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout())
	assert.False(t, cfg.SMTP.Enabled())
	assert.Equal(t, "0 3 * * *", cfg.Sweep.Cron)
	assert.Equal(t, 30, cfg.RateLimit.UploadRequests)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("STORAGE_DRIVER", "S3")
	t.Setenv("STORAGE_S3_BUCKET", "attachments")
	t.Setenv("SERVER_URL", "https://api.example.com/")
	t.Setenv("SMTP_HOST", "smtp.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "s3", cfg.Storage.Driver)
	assert.Equal(t, "https://api.example.com", cfg.App.ServerURL)
	assert.True(t, cfg.SMTP.Enabled())
	assert.Equal(t, "smtp.example.com:587", cfg.SMTP.Addr())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "ftp"}},
		{"s3 without bucket", map[string]string{"STORAGE_DRIVER": "s3"}},
		{"gcs without bucket", map[string]string{"STORAGE_DRIVER": "gcs"}},
		{"bad cron", map[string]string{"SWEEP_CRON": "every day"}},
		{"shared jwt secret", map[string]string{"ACCESS_TOKEN_SECRET": "same", "REFRESH_TOKEN_SECRET": "same"}},
		{"default secrets in production", map[string]string{"SERVER_ENV": "production"}},
		{"default access secret in production", map[string]string{"SERVER_ENV": "production", "REFRESH_TOKEN_SECRET": "r3fr3sh"}},
		{"default refresh secret in staging", map[string]string{"SERVER_ENV": "staging", "ACCESS_TOKEN_SECRET": "acc3ss"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ProductionSecrets(t *testing.T) {
	t.Setenv("SERVER_ENV", "production")
	t.Setenv("ACCESS_TOKEN_SECRET", "acc3ss-from-vault")
	t.Setenv("REFRESH_TOKEN_SECRET", "r3fr3sh-from-vault")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Server.IsDevelopment())
	assert.Equal(t, "acc3ss-from-vault", cfg.JWT.AccessSecret)
}

func TestLoad_DevelopmentAllowsDefaultSecrets(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultAccessSecret, cfg.JWT.AccessSecret)
	assert.Equal(t, defaultRefreshSecret, cfg.JWT.RefreshSecret)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}
