package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// New Tests
// =============================================================================

func TestNew(t *testing.T) {
	t.Run("valid parameters", func(t *testing.T) {
		c := New[string, int](100, 5*time.Minute)

		if c.maxSize != 100 {
			t.Errorf("maxSize = %d, want 100", c.maxSize)
		}
		if c.ttl != 5*time.Minute {
			t.Errorf("ttl = %v, want 5m", c.ttl)
		}
		if !c.enabled {
			t.Error("cache should be enabled by default")
		}
	})

	t.Run("non-positive maxSize uses default", func(t *testing.T) {
		for _, size := range []int{0, -10} {
			c := New[string, int](size, time.Minute)
			if c.maxSize != DefaultMaxSize {
				t.Errorf("maxSize = %d, want %d (default)", c.maxSize, DefaultMaxSize)
			}
		}
	})
}

// =============================================================================
// Get/Put Tests
// =============================================================================

func TestLRU_GetPut(t *testing.T) {
	t.Run("put and get", func(t *testing.T) {
		c := New[string, string](100, time.Minute)
		c.Put("k", "v1")

		val, ok := c.Get("k")
		if !ok {
			t.Fatal("Get returned false for existing key")
		}
		if val != "v1" {
			t.Errorf("Get returned %v, want v1", val)
		}
	})

	t.Run("get non-existent key", func(t *testing.T) {
		c := New[string, string](100, time.Minute)
		if _, ok := c.Get("missing"); ok {
			t.Error("Get returned true for non-existent key")
		}
	})

	t.Run("update existing key", func(t *testing.T) {
		c := New[string, string](100, time.Minute)
		c.Put("k", "v1")
		c.Put("k", "v2")

		val, _ := c.Get("k")
		if val != "v2" {
			t.Errorf("Get returned %v, want v2", val)
		}
		if c.Len() != 1 {
			t.Errorf("Len = %d, want 1", c.Len())
		}
	})
}

func TestLRU_TTL(t *testing.T) {
	c := New[string, string](100, 20*time.Millisecond)
	c.Put("k", "v")

	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should be present before TTL")
	}

	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed, Len = %d", c.Len())
	}
}

func TestLRU_Eviction(t *testing.T) {
	c := New[int, int](3, 0)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Put(3, 3)

	// Touch 1 so 2 becomes least recently used.
	c.Get(1)
	c.Put(4, 4)

	if _, ok := c.Get(2); ok {
		t.Error("key 2 should have been evicted")
	}
	for _, k := range []int{1, 3, 4} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("key %d should be present", k)
		}
	}
}

func TestLRU_RemoveFunc(t *testing.T) {
	c := New[string, int](100, 0)
	c.Put("data:a", 1)
	c.Put("data:b", 2)
	c.Put("links:a", 3)

	removed := c.RemoveFunc(func(k string) bool { return k[:5] == "data:" })
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestLRU_ClearAndDisable(t *testing.T) {
	c := New[string, int](100, 0)
	c.Put("a", 1)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}

	c.Put("a", 1)
	c.SetEnabled(false)
	if _, ok := c.Get("a"); ok {
		t.Error("disabled cache should miss")
	}
	c.Put("b", 2)
	if c.Len() != 0 {
		t.Error("disabled cache should not store")
	}
}

func TestLRU_Stats(t *testing.T) {
	c := New[string, int](10, 0)
	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 2/1", stats.Hits, stats.Misses)
	}
	if stats.Size != 1 || stats.MaxSize != 10 {
		t.Errorf("size/max = %d/%d", stats.Size, stats.MaxSize)
	}
	if stats.HitRate < 66 || stats.HitRate > 67 {
		t.Errorf("hit rate = %f", stats.HitRate)
	}
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c := New[string, int](50, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*i)%80)
				c.Put(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Len = %d exceeds max size", c.Len())
	}
}
