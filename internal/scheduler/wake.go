package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const wakeChannel = "scheduler:wake"

// Waker nudges the queue processor ahead of its next tick. Completions on
// any replica publish through redis so every processor wakes, and a local
// buffered channel covers the common single-process case even when redis
// is briefly unavailable.
type Waker struct {
	rdb *redis.Client
	ch  chan struct{}
	log *slog.Logger
}

// NewWaker builds a waker; rdb may be nil for a purely local one.
func NewWaker(rdb *redis.Client, log *slog.Logger) *Waker {
	if log == nil {
		log = slog.Default()
	}
	return &Waker{rdb: rdb, ch: make(chan struct{}, 1), log: log}
}

// Wake never blocks. A full channel already means a pending nudge, which
// is all a wake can say.
func (w *Waker) Wake() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
	if w.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.rdb.Publish(ctx, wakeChannel, "1").Err(); err != nil {
		// The tick interval bounds the added latency when publish fails.
		w.log.Warn("wake publish failed", "err", err)
	}
}

// C is the channel the processor selects on.
func (w *Waker) C() <-chan struct{} { return w.ch }

// Listen forwards cross-replica nudges into the local channel until ctx
// ends. Run it on its own goroutine alongside the processor.
func (w *Waker) Listen(ctx context.Context) {
	if w.rdb == nil {
		return
	}
	sub := w.rdb.Subscribe(ctx, wakeChannel)
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case w.ch <- struct{}{}:
			default:
			}
		}
	}
}
