package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrTransportUnavailable is returned without touching the provider while
// the breaker is open.
var ErrTransportUnavailable = errors.New("email transport temporarily unavailable")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerTransport wraps a Transport so that a run of provider failures
// (bad credentials, exhausted quota, provider outage) fails fast instead
// of burning a timeout per order. It never retries a send; when open,
// dispatch fails immediately and the caller decides what to surface.
type BreakerTransport struct {
	next        Transport
	maxFailures int
	timeout     time.Duration

	mu           sync.Mutex
	state        breakerState
	failures     int
	lastFailTime time.Time

	logger *logrus.Logger
}

func NewBreakerTransport(next Transport, maxFailures int, timeout time.Duration, logger *logrus.Logger) *BreakerTransport {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BreakerTransport{
		next:        next,
		maxFailures: maxFailures,
		timeout:     timeout,
		state:       stateClosed,
		logger:      logger,
	}
}

func (b *BreakerTransport) Send(ctx context.Context, msg *Message) error {
	if err := b.beforeSend(); err != nil {
		return err
	}

	err := b.next.Send(ctx, msg)
	b.afterSend(err)
	return err
}

func (b *BreakerTransport) beforeSend() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen {
		if time.Since(b.lastFailTime) < b.timeout {
			return ErrTransportUnavailable
		}
		b.setState(stateHalfOpen)
	}
	return nil
}

func (b *BreakerTransport) afterSend(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == stateHalfOpen {
			b.setState(stateClosed)
		}
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailTime = time.Now()
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		b.setState(stateOpen)
	}
}

func (b *BreakerTransport) setState(to breakerState) {
	if b.state == to {
		return
	}
	b.logger.WithFields(logrus.Fields{
		"from": b.state.String(),
		"to":   to.String(),
	}).Warn("Email transport breaker state changed")
	b.state = to
	if to == stateClosed {
		b.failures = 0
	}
}
