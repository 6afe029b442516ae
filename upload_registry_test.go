package main

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"go-passport-reader/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testUpload() models.Upload {
	id := uuid.NewString()
	return models.Upload{Id: id, Path: "/tmp/" + id + ".png", Kind: KindUpload, CreatedAt: time.Now()}
}

func testRegistryContract(t *testing.T, registry UploadRegistry) {
	upload := testUpload()

	active, err := registry.IsActive(upload.Id)
	require.NoError(t, err)
	require.False(t, active)

	require.NoError(t, registry.Register(upload))
	active, err = registry.IsActive(upload.Id)
	require.NoError(t, err)
	require.True(t, active)

	require.NoError(t, registry.Release(upload.Id))
	active, err = registry.IsActive(upload.Id)
	require.NoError(t, err)
	require.False(t, active)

	// second release of the same id
	require.Error(t, registry.Release(upload.Id))
}

func TestInMemoryUploadRegistry(t *testing.T) {
	testRegistryContract(t, NewInMemoryUploadRegistry())
}

func TestInMemoryUploadRegistryConcurrent(t *testing.T) {
	registry := NewInMemoryUploadRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			upload := testUpload()
			if err := registry.Register(upload); err != nil {
				t.Errorf("register: %v", err)
				return
			}
			if err := registry.Release(upload.Id); err != nil {
				t.Errorf("release: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Zero(t, registry.Len())
}

// Runs against a real server when REDIS_TEST_ADDR is set, e.g. localhost:6379.
func TestRedisUploadRegistry(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	namespace := "passport-reader-test-" + uuid.NewString()
	registry := NewRedisUploadRegistry(client, namespace)
	testRegistryContract(t, registry)

	upload := testUpload()
	require.NoError(t, registry.Register(upload))
	t.Cleanup(func() { _ = registry.Release(upload.Id) })

	ttl, err := client.TTL(context.Background(), createKey(namespace, upload.Id)).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, UploadTimeout)
}

func TestCreateKey(t *testing.T) {
	require.Equal(t, "reader:upload:abc", createKey("reader", "abc"))
}
