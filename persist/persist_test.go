package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	in := map[string]any{"counter": map[string]any{"count": float64(3)}}
	if err := WriteJSONAtomic(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out map[string]any
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	counter, ok := out["counter"].(map[string]any)
	if !ok || counter["count"] != float64(3) {
		t.Fatalf("round trip = %#v", out)
	}
}

func TestWriteJSONAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	for i := 0; i < 5; i++ {
		if err := WriteJSONAtomic(path, map[string]int{"i": i}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Fatalf("expected only state.json, got %d entries", len(entries))
	}
}

func TestReadJSONMissingFile(t *testing.T) {
	err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &map[string]any{})
	if !os.IsNotExist(err) {
		t.Fatalf("err = %v, want os.IsNotExist", err)
	}
}

func TestReadJSONMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var out map[string]any
	if err := ReadJSON(path, &out); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCoalescerCollapsesBurst(t *testing.T) {
	var writes atomic.Int32
	c := NewCoalescer(30*time.Millisecond, func() error {
		writes.Add(1)
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	for i := 0; i < 20; i++ {
		c.Request()
	}

	deadline := time.Now().Add(time.Second)
	for writes.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no write happened")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Let another window pass to catch spurious extra writes.
	time.Sleep(60 * time.Millisecond)
	if got := writes.Load(); got != 1 {
		t.Fatalf("writes = %d, want 1", got)
	}

	cancel()
	<-done
}

func TestCoalescerRetriesFailedWrite(t *testing.T) {
	var attempts atomic.Int32
	c := NewCoalescer(10*time.Millisecond, func() error {
		if attempts.Add(1) == 1 {
			return fmt.Errorf("disk full")
		}
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.Request()

	deadline := time.Now().Add(time.Second)
	for attempts.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("attempts = %d, want retry after failure", attempts.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCoalescerFlushesOnShutdown(t *testing.T) {
	var writes atomic.Int32
	// Long window so only the shutdown flush can write.
	c := NewCoalescer(time.Hour, func() error {
		writes.Add(1)
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	c.Request()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if writes.Load() != 1 {
		t.Fatalf("writes = %d, want final flush", writes.Load())
	}
}

func TestCoalescerIdleShutdownDoesNotWrite(t *testing.T) {
	var writes atomic.Int32
	c := NewCoalescer(10*time.Millisecond, func() error {
		writes.Add(1)
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	if writes.Load() != 0 {
		t.Fatalf("writes = %d, want 0 with nothing pending", writes.Load())
	}
}
