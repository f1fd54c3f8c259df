package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering and routing.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events when the buffer is full instead of blocking the
	// session operation that emitted them. Critical types are exempt.
	DropIfFull bool
	// Critical lists event types that are always queued, e.g. logout and
	// session_expired, which an audit trail cannot lose.
	Critical []string
	// Routes sends each listed event type to its own sink instead of the
	// default one.
	Routes map[string]Sink
}

// Dispatcher asynchronously forwards session events to a sink. A nil
// Dispatcher is valid and drops everything.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	critical  map[string]struct{}
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once

	mu     sync.Mutex
	byType map[string]uint64
}

// NewDispatcher returns nil when cfg.Enabled is false.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if len(cfg.Routes) > 0 {
		sink = NewRouteSink(sink, cfg.Routes)
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		critical: make(map[string]struct{}, len(cfg.Critical)),
		ch:       make(chan Event, cfg.BufferSize),
		done:     make(chan struct{}),
		byType:   make(map[string]uint64),
	}
	for _, t := range cfg.Critical {
		d.critical[t] = struct{}{}
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event. With DropIfFull a full buffer drops a non-critical event
// and counts it against its type. Otherwise Emit blocks until there is room,
// ctx is done or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, critical := d.critical[event.Type]; d.cfg.DropIfFull && !critical {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
			d.mu.Lock()
			d.byType[event.Type]++
			d.mu.Unlock()
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close stops accepting events and flushes the buffer to the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of events dropped because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType returns a copy of the drop counts keyed by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]uint64, len(d.byType))
	for k, v := range d.byType {
		out[k] = v
	}
	return out
}
