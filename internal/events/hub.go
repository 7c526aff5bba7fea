// Package events fans delivery events out to live WebSocket subscribers.
//
// Events are published on Redis by whichever instance produced them; every
// instance listens on the channel and pushes matching events to its own
// connected clients.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"msgflow/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// Client is one live subscriber connection.
type Client interface {
	ID() string
	// Wants reports whether the subscriber asked for this event type.
	Wants(ev models.DeliveryEvent) bool
	SendChannel() chan<- models.DeliveryEvent
	Run()
	// Close is called by the hub exactly once, after the client is removed.
	Close()
}

// Hub owns the client set. All mutations go through Run.
type Hub struct {
	RegisterCh   chan Client
	UnregisterCh chan Client
	BroadcastCh  chan models.DeliveryEvent

	mu      sync.RWMutex
	clients map[string]Client
	done    chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		BroadcastCh:  make(chan models.DeliveryEvent, 64),
		clients:      make(map[string]Client),
		done:         make(chan struct{}),
	}
}

// Run dispatches registrations and broadcasts until ctx is done. On exit every
// remaining client is closed.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for id, c := range h.clients {
			delete(h.clients, id)
			c.Close()
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.RegisterCh:
			h.mu.Lock()
			if old, ok := h.clients[c.ID()]; ok {
				old.Close()
			}
			h.clients[c.ID()] = c
			h.mu.Unlock()
			slog.Debug("event subscriber registered", slog.String("client", c.ID()))

		case c := <-h.UnregisterCh:
			h.remove(c)

		case ev := <-h.BroadcastCh:
			h.broadcast(ev)
		}
	}
}

func (h *Hub) remove(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// a reconnect may have replaced the entry already
	if cur, ok := h.clients[c.ID()]; ok && cur == c {
		delete(h.clients, c.ID())
		c.Close()
		slog.Debug("event subscriber removed", slog.String("client", c.ID()))
	}
}

func (h *Hub) broadcast(ev models.DeliveryEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		if !c.Wants(ev) {
			continue
		}
		select {
		case c.SendChannel() <- ev:
		default:
			slog.Warn("dropping slow event subscriber", slog.String("client", id))
			delete(h.clients, id)
			c.Close()
		}
	}
}

// Unregister asks the hub to drop c. It does not block once the hub stopped.
func (h *Hub) Unregister(c Client) {
	select {
	case h.UnregisterCh <- c:
	case <-h.done:
	}
}

// Publish queues ev for local subscribers.
func (h *Hub) Publish(ev models.DeliveryEvent) {
	select {
	case h.BroadcastCh <- ev:
	case <-h.done:
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Listen forwards events from a Redis subscription into the hub until ctx is
// done or the subscription closes.
func (h *Hub) Listen(ctx context.Context, ps *redis.PubSub) {
	if ps == nil {
		slog.Info("redis disabled, live events limited to this instance")
		return
	}
	defer ps.Close()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev models.DeliveryEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("undecodable event on channel", slog.String("error", err.Error()))
				continue
			}
			h.Publish(ev)
		}
	}
}
