package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/dannyz30w/wavelength-games/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	cfg := &config.Config{}
	ran := false
	cmd := config.NewCommand(cfg, func(ctx context.Context, cfg *config.Config) error {
		ran = true
		return nil
	})
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		assert.True(t, ran)
	}
	return cfg, err
}

func TestDefaults(t *testing.T) {
	cfg, err := execute(t, "--store", "memory", "--jwt-key", "k", "--allowed-origins", "http://localhost:3000")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.Address())
	assert.Equal(t, 8, cfg.MaxPlayers)
	assert.Equal(t, 3*time.Second, cfg.ResyncInterval)
	assert.Equal(t, 2*time.Minute, cfg.MatchTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Migrate)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("WAVELENGTH_STORE", "postgres")
	t.Setenv("WAVELENGTH_POSTGRES_URL", "postgres://localhost/wavelength")
	t.Setenv("WAVELENGTH_JWT_KEY", "from-env")
	t.Setenv("WAVELENGTH_ALLOWED_ORIGINS", "https://a.test,https://b.test")
	t.Setenv("WAVELENGTH_RESYNC_INTERVAL", "1s")
	t.Setenv("WAVELENGTH_PORT", "6000")

	cfg, err := execute(t, "--port", "7000")
	require.NoError(t, err)

	assert.Equal(t, config.StorePostgres, cfg.Store)
	assert.Equal(t, "from-env", cfg.JWTKey)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, time.Second, cfg.ResyncInterval)
	assert.Equal(t, 7000, cfg.Port, "flags win over the environment")
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			Port:           5000,
			Store:          config.StoreMemory,
			AllowedOrigins: []string{"http://localhost:3000"},
			JWTKey:         "k",
			IdentityMaxAge: time.Hour,
			MaxPlayers:     8,
			ResyncInterval: time.Second,
			MatchTTL:       time.Minute,
			JanitorEvery:   time.Second,
			RateLimit:      5,
			RateBurst:      10,
			PublicURL:      "https://wavelength.test",
		}
	}

	testCases := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"valid", func(c *config.Config) {}, ""},
		{"port out of range", func(c *config.Config) { c.Port = 70000 }, "invalid port"},
		{"unknown store", func(c *config.Config) { c.Store = "redis" }, "unknown store"},
		{"postgres without url", func(c *config.Config) { c.Store = config.StorePostgres }, "--postgres-url"},
		{"notify on memory", func(c *config.Config) { c.ListenNotify = true }, "--listen-notify"},
		{"missing jwt key", func(c *config.Config) { c.JWTKey = "" }, "--jwt-key"},
		{"no origins", func(c *config.Config) { c.AllowedOrigins = nil }, "--allowed-origins"},
		{"tiny rooms", func(c *config.Config) { c.MaxPlayers = 1 }, "max players"},
		{"no rate", func(c *config.Config) { c.RateLimit = 0 }, "rate limit"},
		{"zero resync", func(c *config.Config) { c.ResyncInterval = 0 }, "--resync-interval"},
		{"relative public url", func(c *config.Config) { c.PublicURL = "/join" }, "public url"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestCommandRejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, "--store", "memory")
	assert.ErrorContains(t, err, "--jwt-key")
}
