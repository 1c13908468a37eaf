// Package sse fans publish progress out to Server-Sent Events clients.
//
// Every frame carries an id. A client reconnecting with Last-Event-ID gets
// the frames it missed from a bounded replay buffer, so a UI that drops its
// connection mid-publish still sees the outcome. Clients may follow a
// single note with ?path=.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/herald/internal/models"
)

const (
	replaySize    = 128
	clientBuffer  = 64
	keepAliveTick = 25 * time.Second
)

// Event is one SSE frame. Path scopes it to a note; empty means global.
type Event struct {
	Type string `json:"type"`
	Path string `json:"-"`
	Data any    `json:"data"`
}

type frame struct {
	id   uint64
	path string
	raw  []byte
}

// Client is one subscriber.
type Client struct {
	C    chan []byte
	path string
}

func (c *Client) wants(f frame) bool {
	return c.path == "" || f.path == "" || f.path == c.path
}

type subscribeReq struct {
	c      *Client
	lastID uint64
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the client set, the replay buffer and
// the per-note throttle; public methods talk to it over channels.
type Broker struct {
	changeMin time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan *Client
	publishCh     chan Event
	changeCh      chan string
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one note.changed event per
// note per changeThrottle.
func NewBroker(changeThrottle time.Duration) *Broker {
	if changeThrottle <= 0 {
		changeThrottle = 2 * time.Second
	}

	b := &Broker{
		changeMin:     changeThrottle,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan *Client),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan string, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[*Client]struct{})
	lastChange := make(map[string]time.Time)
	history := make([]frame, 0, replaySize)
	var seq uint64

	send := func(c *Client, f frame) {
		if !c.wants(f) {
			return
		}
		select {
		case c.C <- f.raw:
		default:
			// Slow client; drop rather than block the loop.
		}
	}

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		f := frame{
			id:   seq,
			path: event.Path,
			raw:  []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload)),
		}
		if len(history) == replaySize {
			history = append(history[:0], history[1:]...)
		}
		history = append(history, f)

		for c := range clients {
			send(c, f)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for c := range clients {
				close(c.C)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.c] = struct{}{}
			if req.lastID > 0 {
				for _, f := range history {
					if f.id > req.lastID {
						send(req.c, f)
					}
				}
			}

		case c := <-b.unsubscribeCh:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.C)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case path := <-b.changeCh:
			now := time.Now()
			if now.Sub(lastChange[path]) < b.changeMin {
				continue
			}
			lastChange[path] = now
			broadcast(Event{
				Type: models.EventNoteChanged,
				Path: path,
				Data: models.Event{Type: models.EventNoteChanged, Path: path, At: now.UTC()},
			})

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client. A non-empty path limits it to that note's events
// (global events still arrive). Frames newer than lastID are replayed first.
func (b *Broker) Subscribe(path string, lastID uint64) *Client {
	c := &Client{C: make(chan []byte, clientBuffer), path: path}
	if b.closed.Load() {
		close(c.C)
		return c
	}

	select {
	case b.subscribeCh <- subscribeReq{c: c, lastID: lastID}:
	case <-b.stopped:
		close(c.C)
	}
	return c
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(c *Client) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- c:
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
	case b.countReqCh <- resp:
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

// Publish sends an event to all interested clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// Notify broadcasts a publish progress event scoped to its note.
func (b *Broker) Notify(e models.Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.Publish(Event{Type: e.Type, Path: e.Path, Data: e})
}

// NoteChanged reports an edit seen by the watcher, throttled per note.
func (b *Broker) NoteChanged(path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- path:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	c := b.Subscribe(r.URL.Query().Get("path"), lastID)
	defer b.Unsubscribe(c)

	ping := time.NewTicker(keepAliveTick)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-c.C:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
