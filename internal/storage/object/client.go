// Package object adapts the session gateway onto a bucket-style object
// store exposing put/get/list/delete.
package object

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/salescoach/advisor/internal/domain"
)

// Client is the minimal object-store surface the adapter requires. A cloud
// bucket client satisfies it with a thin wrapper; tests and single-node
// deployments use MemoryClient.
type Client interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns a not_found error for absent keys.
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// MemoryClient is an in-memory Client. Values are copied on put and get.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryClient creates an empty in-memory object store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string][]byte)}
}

func (c *MemoryClient) Put(ctx context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = append([]byte(nil), data...)
	return nil
}

func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.objects[key]
	if !ok {
		return nil, domain.ErrNotFound("object %s not found", key)
	}
	return append([]byte(nil), data...), nil
}

func (c *MemoryClient) List(ctx context.Context, prefix string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var keys []string
	for key := range c.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *MemoryClient) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.objects[key]; !ok {
		return domain.ErrNotFound("object %s not found", key)
	}
	delete(c.objects, key)
	return nil
}
