package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/salescoach/advisor/internal/domain"
)

func TestCache_PutGet(t *testing.T) {
	c := New(10, time.Minute, nil)

	usage := domain.TokenUsage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}
	c.Put("k1", json.RawMessage(`{"summary":"hi"}`), usage)

	entry, ok := c.Get("k1")
	if !ok {
		t.Fatal("Get() miss after Put()")
	}
	if string(entry.Response) != `{"summary":"hi"}` {
		t.Fatalf("Get() response = %s", entry.Response)
	}
	if entry.Usage != usage {
		t.Fatalf("Get() usage = %+v, want %+v", entry.Usage, usage)
	}
}

func TestCache_Miss(t *testing.T) {
	c := New(10, time.Minute, nil)
	if _, ok := c.Get("absent"); ok {
		t.Fatal("Get() on an empty cache should miss")
	}
}

func TestCache_GetCopiesBytes(t *testing.T) {
	c := New(10, time.Minute, nil)
	c.Put("k1", json.RawMessage(`{"a":1}`), domain.TokenUsage{})

	entry, _ := c.Get("k1")
	entry.Response[1] = 'X'

	again, _ := c.Get("k1")
	if string(again.Response) != `{"a":1}` {
		t.Fatalf("mutating a returned entry corrupted the cache: %s", again.Response)
	}
}

func TestCache_PutCopiesBytes(t *testing.T) {
	c := New(10, time.Minute, nil)
	buf := []byte(`{"a":1}`)
	c.Put("k1", buf, domain.TokenUsage{})
	buf[1] = 'X'

	entry, _ := c.Get("k1")
	if string(entry.Response) != `{"a":1}` {
		t.Fatalf("mutating the caller's buffer corrupted the cache: %s", entry.Response)
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New(10, time.Minute, nil)
	c.Put("k1", json.RawMessage(`{}`), domain.TokenUsage{})
	c.Invalidate("k1")
	if _, ok := c.Get("k1"); ok {
		t.Fatal("Get() hit after Invalidate()")
	}
}

func TestCache_EvictsAtCapacity(t *testing.T) {
	c := New(2, time.Minute, nil)
	for i := 0; i < 5; i++ {
		c.Put(fmt.Sprintf("k%d", i), json.RawMessage(`{}`), domain.TokenUsage{})
	}
	if c.Len() > 2 {
		t.Fatalf("Len() = %d, want at most 2", c.Len())
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(100, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Put(key, json.RawMessage(`{"n":1}`), domain.TokenUsage{TotalTokens: n})
				if entry, ok := c.Get(key); ok {
					if string(entry.Response) != `{"n":1}` {
						t.Errorf("torn read: %s", entry.Response)
						return
					}
				}
			}
		}(i)
	}
	wg.Wait()
}
