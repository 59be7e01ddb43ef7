package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/eventreg-api/internal/config"
)

func TestRedisOptions(t *testing.T) {
	t.Run("single uses addr fallback", func(t *testing.T) {
		opts, err := redisOptions(config.RedisConfig{Addr: "localhost:6379"})
		require.NoError(t, err)
		assert.Equal(t, []string{"localhost:6379"}, opts.Addrs)
		assert.Empty(t, opts.MasterName)
	})

	t.Run("single keeps first of many", func(t *testing.T) {
		opts, err := redisOptions(config.RedisConfig{Mode: "single", Addrs: []string{"a:1", "b:2"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a:1"}, opts.Addrs)
	})

	t.Run("sentinel requires master", func(t *testing.T) {
		_, err := redisOptions(config.RedisConfig{Mode: "sentinel", Addrs: []string{"a:1"}})
		assert.Error(t, err)

		opts, err := redisOptions(config.RedisConfig{Mode: "sentinel", Addrs: []string{"a:1"}, MasterName: "mymaster"})
		require.NoError(t, err)
		assert.Equal(t, "mymaster", opts.MasterName)
	})

	t.Run("retry backoff in milliseconds", func(t *testing.T) {
		opts, err := redisOptions(config.RedisConfig{Addr: "a:1", MinRetryBackoff: 10, MaxRetryBackoff: 500})
		require.NoError(t, err)
		assert.Equal(t, 10*time.Millisecond, opts.MinRetryBackoff)
		assert.Equal(t, 500*time.Millisecond, opts.MaxRetryBackoff)
	})

	t.Run("no address", func(t *testing.T) {
		_, err := redisOptions(config.RedisConfig{})
		assert.Error(t, err)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := redisOptions(config.RedisConfig{Mode: "ring", Addr: "a:1"})
		assert.Error(t, err)
	})
}
