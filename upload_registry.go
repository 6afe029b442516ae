package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go-passport-reader/models"

	"github.com/redis/go-redis/v9"
)

// Should be safe to use in concurrency
type UploadRegistry interface {
	// Register records an artifact of an in-flight request. Registering
	// an id twice overwrites the earlier record.
	Register(upload models.Upload) error

	// IsActive reports whether the artifact with this id belongs to a
	// request that has not finished yet.
	IsActive(id string) (bool, error)

	// Release forgets the artifact. Releasing an unknown id is an error.
	Release(id string) error
}

type InMemoryUploadRegistry struct {
	Uploads map[string]models.Upload
	mutex   sync.Mutex
}

func NewInMemoryUploadRegistry() *InMemoryUploadRegistry {
	return &InMemoryUploadRegistry{
		Uploads: make(map[string]models.Upload),
	}
}

type RedisUploadRegistry struct {
	client    *redis.Client
	namespace string
}

func NewRedisUploadRegistry(client *redis.Client, namespace string) *RedisUploadRegistry {
	return &RedisUploadRegistry{client: client, namespace: namespace}
}

// ------------------------------------------------------------------------------

func createKey(namespace, uploadId string) string {
	return fmt.Sprintf("%s:upload:%s", namespace, uploadId)
}

// UploadTimeout bounds how long a crashed replica's uploads count as in flight.
const UploadTimeout time.Duration = time.Hour

func (r *RedisUploadRegistry) Register(upload models.Upload) error {
	payload, err := json.Marshal(upload)
	if err != nil {
		return fmt.Errorf("failed to marshal upload record: %w", err)
	}
	ctx := context.Background()
	return r.client.Set(ctx, createKey(r.namespace, upload.Id), payload, UploadTimeout).Err()
}

func (r *RedisUploadRegistry) IsActive(uploadId string) (bool, error) {
	ctx := context.Background()
	n, err := r.client.Exists(ctx, createKey(r.namespace, uploadId)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisUploadRegistry) Release(uploadId string) error {
	ctx := context.Background()
	n, err := r.client.Del(ctx, createKey(r.namespace, uploadId)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("failed to release upload %s, because it wasn't registered", uploadId)
	}
	return nil
}

// ------------------------------------------------------------------------------

func (r *InMemoryUploadRegistry) Register(upload models.Upload) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.Uploads[upload.Id] = upload
	return nil
}

func (r *InMemoryUploadRegistry) IsActive(uploadId string) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, ok := r.Uploads[uploadId]
	return ok, nil
}

func (r *InMemoryUploadRegistry) Release(uploadId string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.Uploads[uploadId]; ok {
		delete(r.Uploads, uploadId)
		return nil
	} else {
		return fmt.Errorf("failed to release upload %s, because it wasn't registered", uploadId)
	}
}

func (r *InMemoryUploadRegistry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.Uploads)
}
