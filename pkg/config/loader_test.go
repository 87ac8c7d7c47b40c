package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Server.UseTLS)
	assert.Equal(t, 5000, cfg.OCPP.Port)
	assert.Equal(t, 60, cfg.OCPP.HeartbeatInterval)
	assert.Equal(t, 0, cfg.OCPP.TimeOffset)
	assert.Equal(t, []string{"ocpp1.6"}, cfg.OCPP.Subprotocols)
	assert.Equal(t, "logs.db", cfg.Logs.Database)
	assert.Equal(t, "./logs", cfg.Logs.Dir)
}

func TestEnvOverridesWithoutPrefix(t *testing.T) {
	t.Setenv("HEARTBEAT_INTERVAL", "30")
	t.Setenv("TIME_OFFSET", "2")
	t.Setenv("OCPP_AUTH_PASSWORD", "hunter2")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.OCPP.HeartbeatInterval)
	assert.Equal(t, 2, cfg.OCPP.TimeOffset)
	assert.Equal(t, "hunter2", cfg.OCPP.AuthPassword)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestBaseURL(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL())

	cfg.Server.Host = "csms.example.com"
	cfg.Server.UseTLS = true
	assert.Equal(t, "https://csms.example.com:8080", cfg.BaseURL())
}

func TestListenAddrs(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.OCPP.Port = 5000

	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
	assert.Equal(t, "0.0.0.0:5000", cfg.OCPPAddr())
}
