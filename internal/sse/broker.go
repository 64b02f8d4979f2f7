// Package sse implements a Server-Sent Events broker that tells connected
// clients when stored data changed.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync/atomic"
	"time"
)

// Event types sent to clients.
const (
	// TypeKeyUpdated is sent for every local write, with data {"key": ...}.
	TypeKeyUpdated = "key.updated"
	// TypeSnapshotUpdated summarizes the keys written since the previous
	// one, with data {"keys": [...]}. It is rate limited.
	TypeSnapshotUpdated = "snapshot.updated"
	// TypeDataUpdated is sent by the companion service when its document
	// changed, with data {"checksum": ..., "origin": "api"|"disk"}.
	TypeDataUpdated = "data.updated"
)

const (
	defaultThrottle  = 2 * time.Second
	defaultHeartbeat = 25 * time.Second
	clientBuffer     = 64
	reconnectDelayMs = 3000
)

// Event is a message to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Frame is an Event stamped with its broker-wide sequence number.
type Frame struct {
	ID uint64
	Event
}

// WriteTo encodes f in the text/event-stream format.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	payload, err := json.Marshal(f.Data)
	if err != nil {
		return 0, fmt.Errorf("sse: encode %s: %w", f.Type, err)
	}
	n, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", f.ID, f.Type, payload)
	return int64(n), err
}

// Subscription is one client's event stream. C is closed when the client
// is unsubscribed or the broker stops.
type Subscription struct {
	C  <-chan Frame
	ch chan Frame
}

// Option configures a Broker.
type Option func(*Broker)

// WithHeartbeat sets the interval of keep-alive comments on idle streams.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// Broker fans events out to SSE clients.
//
// One goroutine owns the subscriber set, the sequence counter and the
// snapshot throttle; the exported methods talk to it over channels.
type Broker struct {
	throttle  time.Duration
	heartbeat time.Duration

	subscribeCh   chan *Subscription
	unsubscribeCh chan *Subscription
	publishCh     chan Event
	keyCh         chan string
	countCh       chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. snapshot.updated is sent at most once per
// throttle interval; writes inside the interval are folded into one
// trailing event.
func NewBroker(throttle time.Duration, opts ...Option) *Broker {
	if throttle <= 0 {
		throttle = defaultThrottle
	}
	b := &Broker{
		throttle:      throttle,
		heartbeat:     defaultHeartbeat,
		subscribeCh:   make(chan *Subscription),
		unsubscribeCh: make(chan *Subscription),
		publishCh:     make(chan Event, 256),
		keyCh:         make(chan string, 256),
		countCh:       make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	subs := make(map[*Subscription]struct{})
	var (
		seq      uint64
		changed  []string
		lastSnap time.Time
		timer    *time.Timer
		timerC   <-chan time.Time
	)

	send := func(ev Event) {
		seq++
		f := Frame{ID: seq, Event: ev}
		for s := range subs {
			select {
			case s.ch <- f:
			default:
				// Slow client; it resyncs on the next snapshot event.
			}
		}
	}
	snapshot := func() {
		send(Event{Type: TypeSnapshotUpdated, Data: map[string][]string{"keys": changed}})
		changed = nil
		lastSnap = time.Now()
	}

	for {
		select {
		case <-b.stopCh:
			if timer != nil {
				timer.Stop()
			}
			for s := range subs {
				close(s.ch)
			}
			return

		case s := <-b.subscribeCh:
			subs[s] = struct{}{}

		case s := <-b.unsubscribeCh:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				close(s.ch)
			}

		case ev := <-b.publishCh:
			send(ev)

		case key := <-b.keyCh:
			send(Event{Type: TypeKeyUpdated, Data: map[string]string{"key": key}})
			if !slices.Contains(changed, key) {
				changed = append(changed, key)
			}
			if timerC != nil {
				continue
			}
			if wait := b.throttle - time.Since(lastSnap); wait > 0 {
				timer = time.NewTimer(wait)
				timerC = timer.C
			} else {
				snapshot()
			}

		case <-timerC:
			timerC = nil
			snapshot()

		case resp := <-b.countCh:
			resp <- len(subs)
		}
	}
}

// Close stops the broker and closes every subscription. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a new client.
func (b *Broker) Subscribe() *Subscription {
	ch := make(chan Frame, clientBuffer)
	s := &Subscription{C: ch, ch: ch}
	if b.closed.Load() {
		close(ch)
		return s
	}
	select {
	case b.subscribeCh <- s:
	case <-b.stopped:
		close(ch)
	}
	return s
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(s *Subscription) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- s:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts ev to every client.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

// PublishKeyEvent announces a local write to key.
func (b *Broker) PublishKeyEvent(key string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.keyCh <- key:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client until it disconnects.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", reconnectDelayMs)
	flusher.Flush()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	ping := time.NewTicker(b.heartbeat)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case f, ok := <-sub.C:
			if !ok {
				return
			}
			if _, err := f.WriteTo(w); err != nil {
				continue
			}
		}
		flusher.Flush()
	}
}
