package numbering

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Store increments and returns the sequence value for a day key. The
// increment must be atomic: concurrent callers on the same key must receive
// distinct, gapless values.
type Store interface {
	Increment(ctx context.Context, dayKey string) (int64, error)
}

// MemoryStore keeps day counters in process memory. Counts are lost on
// restart; the generator logs when it has to rely on this.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int64)}
}

func (s *MemoryStore) Increment(_ context.Context, dayKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[dayKey]++
	return s.counts[dayKey], nil
}

// Generator produces human-readable order numbers: PREFIX-MMDDYY followed
// by a day-scoped sequence zero-padded to at least two digits. The day key
// is derived from the merchant's local wall clock, not UTC.
type Generator struct {
	prefix string
	loc    *time.Location
	store  Store
	logger *logrus.Logger

	// now is replaceable in tests.
	now func() time.Time

	// The store performs its own atomic increment; mu only guards the
	// fallback bookkeeping below, so a slow durable round-trip never
	// stalls other requests. issued tracks the highest value handed out
	// per day and fallback the values assigned while the store was down,
	// so recovery never repeats or regresses a number.
	mu       sync.Mutex
	issued   map[string]int64
	fallback map[string]int64
	degraded bool
}

func NewGenerator(prefix string, loc *time.Location, store Store, logger *logrus.Logger) *Generator {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Generator{
		prefix:   prefix,
		loc:      loc,
		store:    store,
		logger:   logger,
		now:      time.Now,
		issued:   make(map[string]int64),
		fallback: make(map[string]int64),
	}
}

// Next assigns the next order number for the current local day. Safe for
// concurrent use. A durable-store failure degrades to in-memory sequencing
// and never fails the order.
func (g *Generator) Next(ctx context.Context) (string, error) {
	local := g.now().In(g.loc)
	dayKey := local.Format("060102")

	// The increment itself is atomic in the store, so it runs outside the
	// lock and concurrent requests only wait on their own round-trip.
	seq, err := g.store.Increment(ctx, dayKey)

	g.mu.Lock()
	if err != nil {
		seq = g.nextFallback(dayKey)
		if !g.degraded {
			g.degraded = true
			g.logger.WithError(err).WithField("day_key", dayKey).
				Warn("Durable counter unavailable, sequencing in memory for the rest of the process")
		}
	} else if seq <= g.fallback[dayKey] {
		// The store is behind values assigned in memory during a degraded
		// stretch; stay strictly increasing.
		seq = g.nextFallback(dayKey)
	}
	if seq > g.issued[dayKey] {
		g.issued[dayKey] = seq
	}
	g.mu.Unlock()

	return fmt.Sprintf("%s-%02d%02d%02d%02d", g.prefix, local.Month(), local.Day(), local.Year()%100, seq), nil
}

// Degraded reports whether the generator has fallen back to in-memory
// sequencing at least once. Exposed for the health endpoint.
func (g *Generator) Degraded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.degraded
}

func (g *Generator) nextFallback(dayKey string) int64 {
	next := g.fallback[dayKey] + 1
	if last := g.issued[dayKey]; next <= last {
		next = last + 1
	}
	g.fallback[dayKey] = next
	return next
}
