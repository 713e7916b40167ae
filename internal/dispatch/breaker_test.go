package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	inner := &fakeTransport{
		sendFunc: func(ctx context.Context, msg *Message) error {
			calls.Add(1)
			return errors.New("provider down")
		},
	}
	b := NewBreakerTransport(inner, 3, time.Minute, testLogger())

	for i := 0; i < 3; i++ {
		if err := b.Send(context.Background(), &Message{}); err == nil {
			t.Fatal("Expected error from failing transport")
		}
	}

	// Open: the provider is no longer touched.
	before := calls.Load()
	err := b.Send(context.Background(), &Message{})
	if !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("Expected ErrTransportUnavailable, got %v", err)
	}
	if calls.Load() != before {
		t.Errorf("Open breaker must not call the transport (calls %d -> %d)", before, calls.Load())
	}
}

func TestBreakerRecoversAfterTimeout(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	inner := &fakeTransport{
		sendFunc: func(ctx context.Context, msg *Message) error {
			if fail.Load() {
				return errors.New("provider down")
			}
			return nil
		},
	}
	b := NewBreakerTransport(inner, 1, 30*time.Millisecond, testLogger())

	if err := b.Send(context.Background(), &Message{}); err == nil {
		t.Fatal("Expected failure to open the breaker")
	}
	if err := b.Send(context.Background(), &Message{}); !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("Expected fail-fast while open, got %v", err)
	}

	fail.Store(false)
	time.Sleep(40 * time.Millisecond)

	if err := b.Send(context.Background(), &Message{}); err != nil {
		t.Fatalf("Expected half-open trial to succeed, got %v", err)
	}
	if err := b.Send(context.Background(), &Message{}); err != nil {
		t.Fatalf("Expected closed breaker to pass traffic, got %v", err)
	}
}

func TestBreakerFailedTrialReopens(t *testing.T) {
	inner := &fakeTransport{
		sendFunc: func(ctx context.Context, msg *Message) error {
			return errors.New("provider down")
		},
	}
	b := NewBreakerTransport(inner, 1, 20*time.Millisecond, testLogger())

	b.Send(context.Background(), &Message{})
	time.Sleep(30 * time.Millisecond)

	// Half-open trial fails; breaker reopens immediately.
	if err := b.Send(context.Background(), &Message{}); err == nil {
		t.Fatal("Expected trial failure")
	}
	if err := b.Send(context.Background(), &Message{}); !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("Expected reopened breaker to fail fast, got %v", err)
	}
}

func TestBreakerConcurrentSends(t *testing.T) {
	var calls atomic.Int32
	inner := &fakeTransport{
		sendFunc: func(ctx context.Context, msg *Message) error {
			calls.Add(1)
			return errors.New("provider down")
		},
	}
	b := NewBreakerTransport(inner, 5, time.Minute, testLogger())

	const numGoroutines = 20
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Send(context.Background(), &Message{}); err == nil {
				t.Error("Expected error")
			}
		}()
	}
	wg.Wait()

	// Once open, everything fails fast without touching the provider.
	if err := b.Send(context.Background(), &Message{}); !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("Expected ErrTransportUnavailable after concurrent failures, got %v", err)
	}
	if calls.Load() < 5 {
		t.Errorf("Expected at least 5 provider calls before opening, got %d", calls.Load())
	}
}
