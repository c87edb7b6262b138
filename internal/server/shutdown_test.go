package server

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestShutdownClosesInLIFOOrder(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) CloserFunc {
		return func() error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	sm.RegisterCloser(record("backend"))
	sm.RegisterCloser(record("pool"))
	sm.RegisterCloser(record("http"))

	if err := sm.Shutdown("test"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	want := []string{"http", "pool", "backend"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestShutdownRunsOnce(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})

	var calls int
	sm.RegisterCloser(CloserFunc(func() error {
		calls++
		return nil
	}))

	if err := sm.Shutdown("first"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := sm.Shutdown("second"); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if calls != 1 {
		t.Fatalf("closer called %d times", calls)
	}

	select {
	case <-sm.ShutdownCh():
	default:
		t.Fatal("shutdown channel not closed")
	}
}

func TestShutdownReportsFirstCloserError(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	sentinel := errors.New("teardown failed")

	sm.RegisterCloser(CloserFunc(func() error { return nil }))
	sm.RegisterCloser(CloserFunc(func() error { return sentinel }))

	err := sm.Shutdown("test")
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want %v", err, sentinel)
	}
}

func TestShutdownTimeout(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{ShutdownTimeout: 20 * time.Millisecond})

	var skipped bool
	sm.RegisterCloser(CloserFunc(func() error {
		skipped = true
		return nil
	}))
	sm.RegisterCloser(CloserFunc(func() error {
		time.Sleep(60 * time.Millisecond)
		return nil
	}))

	err := sm.Shutdown("test")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if skipped {
		t.Fatal("closer past the deadline should not run")
	}
}
