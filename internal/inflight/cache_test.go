package inflight

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	c := New(10, time.Minute)
	if !c.Acquire("owner|a.wav", "m-1") {
		t.Fatal("first Acquire failed")
	}
	if c.Acquire("owner|a.wav", "m-2") {
		t.Fatal("duplicate Acquire succeeded")
	}
	if holder, ok := c.Holder("owner|a.wav"); !ok || holder != "m-1" {
		t.Errorf("Holder() = %q, %v", holder, ok)
	}

	c.Release("owner|a.wav", "m-2")
	if c.Acquire("owner|a.wav", "m-3") {
		t.Fatal("release by non-holder dropped the claim")
	}
	c.Release("owner|a.wav", "m-1")
	if !c.Acquire("owner|a.wav", "m-3") {
		t.Fatal("Acquire after Release failed")
	}
}

func TestExpiry(t *testing.T) {
	c := New(10, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Acquire("k", "m-1")
	now = now.Add(2 * time.Minute)
	if _, ok := c.Holder("k"); ok {
		t.Error("expired claim still held")
	}
	if !c.Acquire("k", "m-2") {
		t.Error("Acquire of expired key failed")
	}
}

func TestBounded(t *testing.T) {
	c := New(3, time.Hour)
	for i := 0; i < 10; i++ {
		c.Acquire(fmt.Sprintf("k%d", i), "m")
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	if _, ok := c.Holder("k0"); ok {
		t.Error("oldest entry not evicted")
	}
}

func TestConcurrentAcquire(t *testing.T) {
	c := New(100, time.Minute)
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if c.Acquire("same", fmt.Sprintf("m-%d", i)) {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if won != 1 {
		t.Errorf("%d goroutines acquired the key, want 1", won)
	}
}
