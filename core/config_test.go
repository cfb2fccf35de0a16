package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTestConfig(t *testing.T) {
	conf := NewTestConfig()

	assert.True(t, conf.TestMode)
	assert.True(t, conf.Debug)
	assert.Equal(t, "TEST", conf.Env)
	assert.Equal(t, "memory", conf.Database.Engine)
	assert.Equal(t, 10*time.Minute, conf.OTP.TTL)
	assert.Equal(t, 60*time.Second, conf.OTP.ResendCooldown)
	assert.Equal(t, 5, conf.OTP.MaxAttempts)
	assert.Equal(t, "noreply@localhost", conf.DefaultFromEmail.Address)
	assert.Empty(t, conf.Redis.Addr)
	assert.Empty(t, conf.NATS.URL)
}

func TestNewConfig_env(t *testing.T) {
	t.Setenv("ENV", "qa")
	t.Setenv("QA_DEBUG", "false")
	t.Setenv("QA_REDIS_ADDR", "redis:6379")
	t.Setenv("QA_OTP_TTL", "5m")
	t.Setenv("QA_OTP_MAXATTEMPTS", "3")
	t.Setenv("QA_SERVER_RATELIMIT", "2.5")
	t.Setenv("DEV_NATS_URL", "nats://ignored:4222")

	conf := NewConfig()

	assert.Equal(t, "QA", conf.Env)
	assert.False(t, conf.Debug)
	assert.False(t, conf.TestMode)
	assert.Equal(t, "redis:6379", conf.Redis.Addr)
	assert.Equal(t, 5*time.Minute, conf.OTP.TTL)
	assert.Equal(t, 3, conf.OTP.MaxAttempts)
	assert.Equal(t, 2.5, conf.Server.RateLimit)
	assert.Empty(t, conf.NATS.URL, "other envs' variables are ignored")
	assert.NotEmpty(t, conf.WorkDir)
}

func TestNewConfig_prodDisablesDebug(t *testing.T) {
	t.Setenv("ENV", "prod")
	conf := NewConfig()
	assert.Equal(t, "PROD", conf.Env)
	assert.False(t, conf.Debug)

	t.Setenv("PROD_DEBUG", "true")
	assert.False(t, NewConfig().Debug)
}

func TestNewConfig_testEnv(t *testing.T) {
	t.Setenv("ENV", "TEST")
	assert.True(t, NewConfig().TestMode)
}

func TestDatabaseConfig_Address(t *testing.T) {
	assert.Equal(t, "localhost:5432", DatabaseConfig{Host: "localhost", Port: "5432"}.Address())
}
