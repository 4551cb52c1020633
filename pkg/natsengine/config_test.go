package natsengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("minimal valid config", func(t *testing.T) {
		cfg, err := LoadConfig(map[string]any{
			"nats_url":      "nats://localhost:4222",
			"nats_subjects": "orders, orders.eu",
			"nats_format":   "JSON",
		}, GlobalCredentials{})
		require.NoError(t, err)
		assert.Equal(t, []string{"nats://localhost:4222"}, cfg.Servers)
		assert.Equal(t, []string{"orders", "orders.eu"}, cfg.Subjects)
		assert.Equal(t, HandleErrorModeDefault, cfg.HandleErrorMode)
		assert.Equal(t, 1, cfg.NumConsumers)
	})

	t.Run("missing subjects", func(t *testing.T) {
		_, err := LoadConfig(map[string]any{
			"nats_url":    "nats://localhost:4222",
			"nats_format": "JSON",
		}, GlobalCredentials{})
		assert.ErrorIs(t, err, ErrConfigError)
	})

	t.Run("url and server list are mutually exclusive", func(t *testing.T) {
		_, err := LoadConfig(map[string]any{
			"nats_url":         "nats://localhost:4222",
			"nats_server_list": "nats://a:4222,nats://b:4222",
			"nats_subjects":    "orders",
			"nats_format":      "JSON",
		}, GlobalCredentials{})
		assert.ErrorIs(t, err, ErrConfigError)
	})

	t.Run("neither url nor server list", func(t *testing.T) {
		_, err := LoadConfig(map[string]any{
			"nats_subjects": "orders",
			"nats_format":   "JSON",
		}, GlobalCredentials{})
		assert.ErrorIs(t, err, ErrConfigError)
	})

	t.Run("dead letter queue mode rejected", func(t *testing.T) {
		_, err := LoadConfig(map[string]any{
			"nats_url":              "nats://localhost:4222",
			"nats_subjects":         "orders",
			"nats_format":           "JSON",
			"nats_handle_error_mode": "DEAD_LETTER_QUEUE",
		}, GlobalCredentials{})
		assert.ErrorIs(t, err, ErrConfigError)
	})

	t.Run("global credentials fall back", func(t *testing.T) {
		cfg, err := LoadConfig(map[string]any{
			"nats_url":      "nats://localhost:4222",
			"nats_subjects": "orders",
			"nats_format":   "JSON",
		}, GlobalCredentials{Username: "svc", Password: "secret"})
		require.NoError(t, err)
		assert.Equal(t, "svc", cfg.Username)
		assert.Equal(t, "secret", cfg.Password)
	})

	t.Run("explicit username overrides globals", func(t *testing.T) {
		cfg, err := LoadConfig(map[string]any{
			"nats_url":      "nats://localhost:4222",
			"nats_subjects": "orders",
			"nats_format":   "JSON",
			"nats_username": "table-owner",
		}, GlobalCredentials{Username: "svc"})
		require.NoError(t, err)
		assert.Equal(t, "table-owner", cfg.Username)
	})

	t.Run("server list splits and trims", func(t *testing.T) {
		cfg, err := LoadConfig(map[string]any{
			"nats_server_list": " nats://a:4222 , nats://b:4222,nats://c:4222 ",
			"nats_subjects":    "orders",
			"nats_format":      "JSON",
		}, GlobalCredentials{})
		require.NoError(t, err)
		assert.Equal(t, []string{"nats://a:4222", "nats://b:4222", "nats://c:4222"}, cfg.Servers)
	})
}

func TestConfigGetMaxBlockSize(t *testing.T) {
	t.Run("explicit setting wins", func(t *testing.T) {
		cfg := Config{MaxBlockSize: 500, NumConsumers: 4}
		assert.Equal(t, 500, cfg.getMaxBlockSize(10000))
	})

	t.Run("derived from max_insert_block_size over consumers", func(t *testing.T) {
		cfg := Config{NumConsumers: 4}
		assert.Equal(t, 250, cfg.getMaxBlockSize(1000))
	})

	t.Run("floors at 1", func(t *testing.T) {
		cfg := Config{NumConsumers: 100}
		assert.Equal(t, 1, cfg.getMaxBlockSize(10))
	})
}

func TestConfigQueueCapacity(t *testing.T) {
	assert.Equal(t, 100000, Config{MaxBlockSize: 10}.queueCapacity())
	assert.Equal(t, 200000, Config{MaxBlockSize: 200000}.queueCapacity())
}
