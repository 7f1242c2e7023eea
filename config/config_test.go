package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWT.AccessTokenExpiry)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 10*time.Minute, cfg.Redis.CountTTL)
	assert.Equal(t, "0 3 * * *", cfg.Cleanup.Schedule)
	assert.Equal(t, 720*time.Hour, cfg.Cleanup.AbandonAfter)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("ALLOWED_ORIGINS", "https://shop.example, https://admin.example,")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("CART_ABANDON_AFTER", "48h")
	t.Setenv("JWT_ACCESS_TOKEN_EXPIRY", "bogus")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Redis.Enabled())
	assert.Zero(t, cfg.Redis.DB)
	assert.Equal(t, 48*time.Hour, cfg.Cleanup.AbandonAfter)
	assert.Equal(t, 24*time.Hour, cfg.JWT.AccessTokenExpiry)
}

func TestLoad_ProductionNeedsSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	_, err = Load()
	assert.NoError(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "shop", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=shop sslmode=disable", c.DSN())
}

func TestLoadClient(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := LoadClient()
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/api/v1", cfg.APIBaseURL)
		assert.Equal(t, "sqlite", cfg.Storage)
		assert.Equal(t, 3*time.Second, cfg.NotificationDelay)
		assert.False(t, cfg.AllowStaleRemote)
	})

	t.Run("Overrides", func(t *testing.T) {
		t.Setenv("CARTSYNC_API_BASE_URL", "https://shop.example/api/v1")
		t.Setenv("CARTSYNC_STORAGE", "redis")
		t.Setenv("CARTSYNC_NOTIFICATION_DELAY", "500ms")
		t.Setenv("CARTSYNC_ALLOW_STALE_REMOTE", "true")

		cfg, err := LoadClient()
		require.NoError(t, err)
		assert.Equal(t, "https://shop.example/api/v1", cfg.APIBaseURL)
		assert.Equal(t, "redis", cfg.Storage)
		assert.Equal(t, 500*time.Millisecond, cfg.NotificationDelay)
		assert.True(t, cfg.AllowStaleRemote)
	})

	t.Run("Unknown storage", func(t *testing.T) {
		t.Setenv("CARTSYNC_STORAGE", "floppy")
		_, err := LoadClient()
		assert.ErrorContains(t, err, "floppy")
	})

	t.Run("Bad duration", func(t *testing.T) {
		t.Setenv("CARTSYNC_REQUEST_TIMEOUT", "soon")
		_, err := LoadClient()
		assert.Error(t, err)
	})
}
