package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8085/ws", cfg.ServerWsURL)
	assert.Equal(t, "http://localhost:8085", cfg.ServerRestURL)
	assert.Equal(t, 5, cfg.ReconnectMaxRetries)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 5*time.Second, cfg.BidAckTimeout)
	assert.Equal(t, time.Second, cfg.CountdownTick)
	assert.Equal(t, uint16(8085), cfg.HttpServerPort)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("SERVER_WS_URL", "wss://auctions.example.com/ws")
	t.Setenv("ARTWORK_ID", "A1")
	t.Setenv("CALLER_IDENTITY", "user1@example.com")
	t.Setenv("RECONNECT_MAX_RETRIES", "3")
	t.Setenv("BID_ACK_TIMEOUT", "10s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "wss://auctions.example.com/ws", cfg.ServerWsURL)
	assert.Equal(t, "A1", cfg.ArtworkID)
	assert.Equal(t, "user1@example.com", cfg.CallerIdentity)
	assert.Equal(t, 3, cfg.ReconnectMaxRetries)
	assert.Equal(t, 10*time.Second, cfg.BidAckTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("HTTP_SERVER_PORT", "80")
	_, err := LoadConfig()
	assert.Error(t, err, "ports below 1000 fail validation")

	t.Setenv("HTTP_SERVER_PORT", "8085")
	t.Setenv("RECONNECT_MAX_RETRIES", "0")
	_, err = LoadConfig()
	assert.Error(t, err, "zero retries fails validation")
}
