// Package watch fans store changes out to path subscriptions.
//
// A subscription holds a single dirty flag. Marking it while a delivery is
// in flight coalesces into one more delivery, and every delivery re-reads the
// path, so subscribers always observe the latest value at least once.
package watch

import (
	"context"
	"strings"
	"sync"

	"novaled/internal/core/ports"

	"go.uber.org/zap"
)

// ReadFunc loads the current snapshot of a path.
type ReadFunc func(ctx context.Context, path string) (ports.Snapshot, error)

type subscription struct {
	path     string
	onChange func(ports.Snapshot)
	dirty    chan struct{}
	cancel   context.CancelFunc
}

func (s *subscription) mark() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

type Dispatcher struct {
	read   ReadFunc
	logger *zap.SugaredLogger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
}

func NewDispatcher(read ReadFunc, logger *zap.SugaredLogger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{
		read:   read,
		logger: logger,
		subs:   make(map[uint64]*subscription),
	}
}

// Add registers onChange for path and schedules the initial delivery.
func (d *Dispatcher) Add(ctx context.Context, path string, onChange func(ports.Snapshot)) ports.Unsubscribe {
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{
		path:     path,
		onChange: onChange,
		dirty:    make(chan struct{}, 1),
		cancel:   cancel,
	}

	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = sub
	d.mu.Unlock()

	sub.mark()
	go d.deliver(subCtx, sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
			cancel()
		})
	}
}

// Notify marks every subscription affected by a change at path.
func (d *Dispatcher) Notify(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sub := range d.subs {
		if Affects(path, sub.path) {
			sub.mark()
		}
	}
}

// Len returns the number of live subscriptions.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Close cancels all subscriptions.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, sub := range d.subs {
		sub.cancel()
		delete(d.subs, id)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sub *subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.dirty:
		}

		snap, err := d.read(ctx, sub.path)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warnw("subscription read failed", "path", sub.path, "error", err)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		sub.onChange(snap)
	}
}

// Affects reports whether a change at changed is visible to a subscriber of watched.
func Affects(changed, watched string) bool {
	if changed == watched {
		return true
	}
	return strings.HasPrefix(changed, watched+"/") || strings.HasPrefix(watched, changed+"/")
}
