package dispatch

import (
	"context"
	"sync"

	"plutusbot/bot/engine"
)

// Handler consumes one event for one chat.
type Handler func(ctx context.Context, chatID int64, ev engine.Event)

// Dispatcher fans events out to per-chat queues. Events for the same chat are
// handled strictly in arrival order, one at a time; events for different chats
// run concurrently. Workers are spawned lazily per chat and retire once their
// queue drains.
type Dispatcher struct {
	handler Handler

	mu     sync.Mutex
	queues map[int64]*queue
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type queue struct {
	events  []engine.Event
	running bool
}

// New constructs a dispatcher delivering events to handler.
func New(handler Handler) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler: handler,
		queues:  make(map[int64]*queue),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch enqueues an event for the chat. It never blocks on the handler.
func (d *Dispatcher) Dispatch(chatID int64, ev engine.Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	q, ok := d.queues[chatID]
	if !ok {
		q = &queue{}
		d.queues[chatID] = q
	}
	q.events = append(q.events, ev)
	if q.running {
		d.mu.Unlock()
		return
	}
	q.running = true
	d.wg.Add(1)
	d.mu.Unlock()

	go d.drain(chatID, q)
}

func (d *Dispatcher) drain(chatID int64, q *queue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.events) == 0 || d.closed {
			q.running = false
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
		ev := q.events[0]
		q.events = q.events[1:]
		d.mu.Unlock()

		d.handler(d.ctx, chatID, ev)
	}
}

// Close stops accepting events, cancels in-flight handler contexts, and waits
// for all workers to retire.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()
}
