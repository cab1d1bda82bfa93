package websocket

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"tickpulse/internal/infrastructure"
	"tickpulse/pkg/contracts/events"
)

// Queue sizes
const (
	broadcastQueue = 256
	clientQueue    = 64
)

var (
	// ErrHubStopped is returned when broadcasting on a stopped hub
	ErrHubStopped = stderrors.New("websocket hub stopped")
	// ErrQueueFull is returned when the broadcast queue cannot take a message
	ErrQueueFull = stderrors.New("websocket broadcast queue full")
)

// Hub maintains the set of active clients and broadcasts messages to them.
// The client map is owned by the run loop; mu only guards what other
// goroutines read.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	done       chan struct{}

	mu       sync.RWMutex
	count    int
	last     []byte
	running  bool
	stopOnce sync.Once

	logger  *slog.Logger
	metrics *Metrics
}

// NewHub creates a hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastQueue),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
		metrics:    metrics,
	}
}

// Start runs the hub loop in its own goroutine. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

// Stop closes every client and ends the hub loop
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
		h.mu.RLock()
		running := h.running
		h.mu.RUnlock()
		if running {
			<-h.done
		}
	})
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			for c := range h.clients {
				h.remove(c)
			}
			h.logger.Info("websocket hub stopped")
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount()
			h.metrics.connected(len(h.clients))
			h.greet(c)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
				h.logger.Info("websocket client unregistered",
					slog.String("client_id", c.id),
					slog.Int("clients", len(h.clients)),
					slog.Duration("connected_for", time.Since(c.connectedAt)))
			}

		case msg := <-h.broadcast:
			sent := 0
			for c := range h.clients {
				select {
				case c.send <- msg:
					sent++
				default:
					h.remove(c)
					h.metrics.dropped(1)
					h.logger.Warn("websocket client send queue full, disconnecting",
						slog.String("client_id", c.id))
				}
			}
			h.metrics.sent(sent)
		}
	}
}

// remove must only be called from the run loop
func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.setCount()
	h.metrics.disconnected(len(h.clients))
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// greet queues the connect message and the latest run snapshot, so a client
// joining mid-run sees the current state at once
func (h *Hub) greet(c *Client) {
	ctx := infrastructure.WithTraceID(context.Background(), c.traceID)
	connect, err := json.Marshal(events.Message{
		BaseMessage: events.BaseMessage{Type: events.MessageTypeConnect, Timestamp: time.Now(), TraceID: c.traceID},
		Data:        map[string]string{"status": "connected", "client_id": c.id},
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to marshal connect message", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	last := h.last
	h.mu.RUnlock()

	for _, msg := range [][]byte{connect, last} {
		if msg == nil {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.metrics.dropped(1)
		}
	}
	h.logger.InfoContext(ctx, "websocket client registered",
		slog.String("client_id", c.id),
		slog.String("remote_addr", c.remoteAddr),
		slog.Int("clients", len(h.clients)))
}

// Register adds a client. On a stopped hub the client's queue is closed.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.quit:
		close(c.send)
	}
}

// Unregister removes a client and closes its queue
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues msg for every client. It never blocks: a full queue drops
// the message and returns ErrQueueFull.
func (h *Hub) Broadcast(ctx context.Context, msg events.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if msg.Type == events.MessageTypeRunSnapshot {
		h.mu.Lock()
		h.last = data
		h.mu.Unlock()
	}

	select {
	case <-h.quit:
		return ErrHubStopped
	default:
	}
	select {
	case h.broadcast <- data:
		return nil
	default:
		h.metrics.dropped(1)
		h.logger.WarnContext(ctx, "websocket broadcast queue full", slog.String("type", string(msg.Type)))
		return ErrQueueFull
	}
}

// Observe publishes a run snapshot. It implements pipeline.Observer.
func (h *Hub) Observe(ctx context.Context, snap events.RunSnapshot) {
	err := h.Broadcast(ctx, events.Message{
		BaseMessage: events.BaseMessage{
			Type:      events.MessageTypeRunSnapshot,
			Timestamp: snap.UpdatedAt,
			TraceID:   snap.RunID,
		},
		Data: snap,
	})
	if err != nil && !stderrors.Is(err, ErrHubStopped) {
		h.logger.DebugContext(ctx, "run snapshot not delivered", slog.String("error", err.Error()))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
