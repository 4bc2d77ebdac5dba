// Package typing keeps a "bot is typing" indicator alive while a slow call
// runs.
package typing

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/botrelay/internal/logging"
)

// DefaultInterval is used when Start is given a non-positive interval.
const DefaultInterval = 3 * time.Second

// EmitFunc pushes one typing activity tagged with messageID.
type EmitFunc func(ctx context.Context, messageID string) error

// Loop emits a typing activity, then sleeps for the interval, until stopped.
type Loop struct {
	messageID string
	interval  time.Duration
	emit      EmitFunc
	log       *logging.Logger

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	emitted int
}

// Start launches a loop on its own goroutine. Cancelling ctx stops it too.
func Start(ctx context.Context, messageID string, interval time.Duration, emit EmitFunc, log *logging.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	lctx, cancel := context.WithCancel(ctx)
	l := &Loop{
		messageID: messageID,
		interval:  interval,
		emit:      emit,
		log:       log,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go l.run(lctx)
	return l
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !l.pulse(ctx) {
			return
		}
		timer.Reset(l.interval)
	}
}

// pulse emits once unless the loop was stopped. The stop flag and the emit
// share the mutex so Stop cannot return while an emission is in flight.
func (l *Loop) pulse(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || ctx.Err() != nil {
		return false
	}
	if err := l.emit(ctx, l.messageID); err != nil {
		l.log.Warn().Err(err).Str("msgId", l.messageID).Msg("typing emit failed")
	}
	l.emitted++
	return true
}

// Stop ends the loop and waits for it to exit. Nothing is emitted after
// Stop returns. Safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.cancel()
	<-l.done
}

// Emitted returns how many pulses were attempted.
func (l *Loop) Emitted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.emitted
}
