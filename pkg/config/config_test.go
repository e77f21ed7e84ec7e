package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "pending", cfg.Registration.InitialStatus)
	assert.Equal(t, 10, cfg.Registration.RateLimit)
	assert.Equal(t, time.Minute, cfg.Registration.RateWindow)
	assert.Equal(t, 15*time.Second, cfg.Realtime.Heartbeat)
	assert.Equal(t, 1, cfg.Notify.Workers)
	assert.False(t, cfg.Redis.Enabled)
}

func TestOverridesAndSanitising(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("REGISTRATION_INITIAL_STATUS", " Confirmed ")
	v.Set("REGISTRATION_RATE_LIMIT", -4)
	v.Set("SLOT_CACHE_TTL", "not-a-duration")
	v.Set("NOTIFY_WORKERS", 0)
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := fromViper(v)
	assert.Equal(t, "confirmed", cfg.Registration.InitialStatus)
	assert.Equal(t, 0, cfg.Registration.RateLimit)
	assert.Equal(t, 2*time.Second, cfg.SlotCache.TTL)
	assert.Equal(t, 1, cfg.Notify.Workers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestUnknownInitialStatusFallsBackToPending(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("REGISTRATION_INITIAL_STATUS", "waiting")

	assert.Equal(t, "pending", fromViper(v).Registration.InitialStatus)
}
