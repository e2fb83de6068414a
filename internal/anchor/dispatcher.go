// Package anchor runs ledger appends off the request path on a single background
// worker fed by a bounded queue.
package anchor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSentinel/ledger"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Submit non-blocking; a full queue drops the anchor.
	DropIfFull bool
	// AppendTimeout bounds one ledger append. Zero means no bound.
	AppendTimeout time.Duration
}

// ResultFunc observes the outcome of each append attempt.
type ResultFunc func(a ledger.Anchor, err error)

// Stats counts dispatcher outcomes.
type Stats struct {
	Submitted uint64
	Anchored  uint64
	Failed    uint64
	Dropped   uint64
}

// Dispatcher asynchronously appends anchors to a ledger.
type Dispatcher struct {
	cfg      Config
	ledger   ledger.Ledger
	onResult ResultFunc

	ch       chan ledger.Anchor
	stopping chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	// mu is held shared by Submit and exclusively by Close, so no send can land
	// after the worker has been told to drain and exit.
	mu     sync.RWMutex
	closed bool

	pending   atomic.Int64
	submitted atomic.Uint64
	anchored  atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	closeOnce sync.Once
}

// NewDispatcher starts the worker. It returns nil when cfg is disabled or l is nil;
// a nil Dispatcher accepts and ignores submissions.
func NewDispatcher(cfg Config, l ledger.Ledger, onResult ResultFunc) *Dispatcher {
	if !cfg.Enabled || l == nil {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	d := &Dispatcher{
		cfg:      cfg,
		ledger:   l,
		onResult: onResult,
		ch:       make(chan ledger.Anchor, cfg.BufferSize),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case a := <-d.ch:
			d.append(a)
		case <-d.done:
			for {
				select {
				case a := <-d.ch:
					d.append(a)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) append(a ledger.Anchor) {
	defer d.pending.Add(-1)

	ctx := context.Background()
	if d.cfg.AppendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.AppendTimeout)
		defer cancel()
	}

	sealed, err := d.ledger.Append(ctx, a)
	if err != nil {
		d.failed.Add(1)
		sealed = a
	} else {
		d.anchored.Add(1)
	}
	if d.onResult != nil {
		d.onResult(sealed, err)
	}
}

// Submit queues a for anchoring and reports whether it was accepted. It never waits
// when DropIfFull is set. After Close it refuses every anchor.
func (d *Dispatcher) Submit(ctx context.Context, a ledger.Anchor) bool {
	if d == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	d.pending.Add(1)
	if d.cfg.DropIfFull {
		select {
		case d.ch <- a:
			d.submitted.Add(1)
			return true
		default:
			d.dropped.Add(1)
		}
		d.pending.Add(-1)
		return false
	}

	select {
	case d.ch <- a:
		d.submitted.Add(1)
		return true
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stopping:
	}
	d.pending.Add(-1)
	return false
}

// Flush waits until every accepted anchor has been processed or ctx ends.
func (d *Dispatcher) Flush(ctx context.Context) error {
	if d == nil {
		return nil
	}
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for d.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops accepting anchors, drains the queue and waits for the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		close(d.stopping)
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.done)
		d.wg.Wait()
	})
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Submitted: d.submitted.Load(),
		Anchored:  d.anchored.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

// Dropped returns the number of anchors rejected by a full queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
