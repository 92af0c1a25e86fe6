package policyload

import (
	"context"
	"testing"
	"time"
)

func waitForSwap(t *testing.T, events <-chan SwapEvent, match func(SwapEvent) bool) SwapEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event := <-events:
			if match(event) {
				return event
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload event")
		}
	}
}

func TestWatchSwapsOnSuccessfulRecompile(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "base.policy", `define_program("ls")`)
	initial, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	store := NewStore(initial)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan SwapEvent, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, dir, store, func(event SwapEvent) { events <- event })
	}()

	// Give the watcher a moment to register before the first write.
	time.Sleep(100 * time.Millisecond)
	writePolicyFile(t, dir, "extra.policy", `define_program("pwd")`)

	event := waitForSwap(t, events, func(event SwapEvent) bool { return event.Err == nil && event.Policy != nil })
	if event.Policy.SpecCount() != 2 {
		t.Fatalf("reloaded policy has %d specs, want 2", event.Policy.SpecCount())
	}
	if store.Current().SpecCount() != 2 {
		t.Fatalf("store should hold the reloaded policy")
	}

	cancel()
	<-done
}

func TestWatchKeepsLastGoodPolicyOnCompileFailure(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "base.policy", `define_program("ls")`)
	initial, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	store := NewStore(initial)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan SwapEvent, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, dir, store, func(event SwapEvent) { events <- event })
	}()

	time.Sleep(100 * time.Millisecond)
	writePolicyFile(t, dir, "broken.policy", `define_program(`)

	event := waitForSwap(t, events, func(event SwapEvent) bool { return event.Err != nil })
	if event.Policy != nil {
		t.Fatal("failed reload must not carry a policy")
	}
	if store.Current() != initial {
		t.Fatal("store must keep the last good policy after a failed compile")
	}

	cancel()
	<-done
}

func TestWatchMissingDirectoryFails(t *testing.T) {
	store := NewStore(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := Watch(ctx, t.TempDir()+"/absent", store, nil); err == nil {
		t.Fatal("expected error watching a missing directory")
	}
}
