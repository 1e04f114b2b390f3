package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := NewSharded[float64]()
	c.Set("BTCUSDT", 42)

	v, ok := c.Get("BTCUSDT")
	if !ok || v != 42 {
		t.Fatalf("expected 42, got %v (ok=%v)", v, ok)
	}
	if _, ok := c.Get("ETHUSDT"); ok {
		t.Fatalf("expected miss for unknown key")
	}
	c.Delete("BTCUSDT")
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}

func TestCleanupUsesAge(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewSharded[string]()
	c.now = func() time.Time { return now }

	c.Set("old", "a")
	now = now.Add(10 * time.Minute)
	c.Set("new", "b")

	if _, age, _ := c.GetWithAge("old"); age != 10*time.Minute {
		t.Fatalf("expected age 10m, got %v", age)
	}
	if removed := c.Cleanup(5 * time.Minute); removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if keys := c.Keys(); len(keys) != 1 || keys[0] != "new" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewSharded[int]()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Set(key, i)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 10 {
		t.Fatalf("expected 10 keys, got %d", c.Len())
	}
}
