package redis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedisConfigFromJSON(t *testing.T) {
	var config RedisConfig
	err := json.Unmarshal([]byte(`{"host":"localhost","port":6379,"password":"secret","namespace":"passport-reader"}`), &config)
	require.NoError(t, err)

	require.Equal(t, "localhost", config.Host)
	require.Equal(t, 6379, config.Port)
	require.Equal(t, "secret", config.Password)
	require.Equal(t, "passport-reader", config.Namespace)
}

func TestRedisSentinelConfigFromJSON(t *testing.T) {
	var config RedisSentinelConfig
	err := json.Unmarshal([]byte(`{
		"sentinel_host": "localhost",
		"sentinel_port": 26379,
		"password": "secret",
		"master_name": "mymaster",
		"sentinel_username": "sentinel",
		"namespace": "passport-reader"
	}`), &config)
	require.NoError(t, err)

	require.Equal(t, "localhost", config.SentinelHost)
	require.Equal(t, 26379, config.SentinelPort)
	require.Equal(t, "mymaster", config.MasterName)
	require.Equal(t, "sentinel", config.SentinelUsername)
	require.Equal(t, "passport-reader", config.Namespace)
}

func TestNewRedisClientInvalidHost(t *testing.T) {
	config := &RedisConfig{
		Host: "invalid-redis-host-that-does-not-exist",
		Port: 6379,
	}

	client, err := NewRedisClient(config)
	require.Error(t, err)
	require.Nil(t, client)
	require.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestNewRedisClientInvalidPort(t *testing.T) {
	config := &RedisConfig{
		Host: "localhost",
		Port: 99999, // Invalid port
	}

	client, err := NewRedisClient(config)
	require.Error(t, err)
	require.Nil(t, client)
	require.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestNewRedisClientEmptyConfig(t *testing.T) {
	client, err := NewRedisClient(&RedisConfig{})
	require.Error(t, err)
	require.Nil(t, client)
	require.Contains(t, err.Error(), "host and port are required")
}

func TestNewRedisSentinelClientInvalidHost(t *testing.T) {
	config := &RedisSentinelConfig{
		SentinelHost: "invalid-sentinel-host-that-does-not-exist",
		SentinelPort: 26379,
		MasterName:   "mymaster",
	}

	client, err := NewRedisSentinelClient(config)
	require.Error(t, err)
	require.Nil(t, client)
	require.Contains(t, err.Error(), "failed to connect to Redis through Sentinel")
}

func TestNewRedisSentinelClientEmptyMasterName(t *testing.T) {
	config := &RedisSentinelConfig{
		SentinelHost: "localhost",
		SentinelPort: 26379,
	}

	client, err := NewRedisSentinelClient(config)
	require.Error(t, err)
	require.Nil(t, client)
	require.Contains(t, err.Error(), "master name is required")
}
