package queue

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/embermud/ember"
	"github.com/embermud/ember/storage/dbm"
	"github.com/embermud/ember/structs"
	"github.com/pkg/errors"
)

// Queue is a persistent timer queue over a lexically ordered event tree:
// keys are big-endian timestamps, so the tree's first record is always the
// next due event. Decay expiries, fiendish rotations, spawn checks and
// target-distance reverts all flow through it.
//
// The offset shifts the clock so that after a restart the oldest queued
// event fires immediately instead of all backlogged events appearing
// overdue at once.
//
// Coordination is channel based so timer expiry, new pushes and context
// cancellation meet in one select.
type Queue struct {
	tree   *dbm.TypeTree[structs.Event, *structs.Event]
	offset structs.Timestamp
	wake   chan struct{}
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

func New(t *dbm.TypeTree[structs.Event, *structs.Event]) *Queue {
	return &Queue{
		tree: t,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (q *Queue) After(dur time.Duration) structs.Timestamp {
	return structs.Stamp(time.Now().Add(dur)) + q.offset
}

func (q *Queue) At(t time.Time) structs.Timestamp {
	return structs.Stamp(t) + q.offset
}

func (q *Queue) Now() structs.Timestamp {
	return structs.Stamp(time.Now()) + q.offset
}

func (q *Queue) until(at structs.Timestamp) time.Duration {
	return time.Nanosecond * time.Duration(uint64(at)-uint64(q.Now()))
}

func (q *Queue) peekFirst() (*structs.Event, error) {
	res, err := q.tree.First()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, ember.WithStack(err)
	}
	return res, nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close stops the queue and waits for Start to return. Pending future
// events stay in the tree for the next run.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()
	q.signal()
	<-q.done
	return nil
}

// Push schedules ev. Its At field must already be set; the key is
// assigned here.
func (q *Queue) Push(ctx context.Context, ev *structs.Event) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.Errorf("queue is closed")
	}
	q.mu.Unlock()

	ev.CreateKey()
	if err := q.tree.Set(ev.Key, ev, false); err != nil {
		return ember.WithStack(err)
	}

	q.signal()
	return nil
}

type EventHandler func(context.Context, *structs.Event)

// Start runs the dispatch loop until Close or context cancellation,
// invoking handler for each event once its time arrives. Due events are
// handled before deletion so a crash replays rather than drops them.
func (q *Queue) Start(ctx context.Context, handler EventHandler) error {
	defer close(q.done)

	if ctx.Err() != nil {
		return ember.WithStack(ctx.Err())
	}

	next, err := q.peekFirst()
	if err != nil {
		return ember.WithStack(err)
	}
	if next != nil {
		q.offset = structs.Timestamp(next.At)
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil
		}

		for next != nil && structs.Timestamp(next.At) <= q.Now() {
			handler(ctx, next)
			if err := q.tree.Del(next.Key); err != nil {
				return ember.WithStack(err)
			}
			if next, err = q.peekFirst(); err != nil {
				return ember.WithStack(err)
			}
		}

		var timerC <-chan time.Time
		if next != nil {
			if d := q.until(structs.Timestamp(next.At)); d > 0 {
				timer.Reset(d)
				timerC = timer.C
			} else {
				continue
			}
		}

		select {
		case <-timerC:
		case <-q.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			if next, err = q.peekFirst(); err != nil {
				return ember.WithStack(err)
			}
		case <-ctx.Done():
			return ember.WithStack(ctx.Err())
		}
	}
}
