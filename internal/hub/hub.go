package hub

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"lanwatch/internal/service"
)

var (
	// ErrSubscriberClosed is returned when delivering to a closed subscriber
	ErrSubscriberClosed = errors.New("subscriber closed")
	// ErrSubscriberSlow is returned when a subscriber's buffer is full
	ErrSubscriberSlow = errors.New("subscriber too slow")
)

// Subscriber is one receiver of broadcast events. Send must not block.
type Subscriber interface {
	ID() string
	Send(data []byte) error
	Close()
}

// ScanSource is the orchestrator as seen by subscribers
type ScanSource interface {
	Snapshot() service.Snapshot
	ScanNow()
}

// Hub fans orchestrator events out to every registered subscriber
type Hub struct {
	source ScanSource
	logger zerolog.Logger

	mu          sync.Mutex
	subscribers map[Subscriber]struct{}

	origins []string
}

var _ service.Publisher = (*Hub)(nil)

// New creates a new Hub. allowedOrigins restricts WebSocket upgrades; an
// empty list or "*" accepts any origin.
func New(source ScanSource, allowedOrigins []string, logger zerolog.Logger) *Hub {
	return &Hub{
		source:      source,
		logger:      logger.With().Str("component", "hub").Logger(),
		subscribers: make(map[Subscriber]struct{}),
		origins:     allowedOrigins,
	}
}

// Register sends the initial state to sub and then adds it to the set, so
// initial_state is always the first event a subscriber sees. The snapshot
// is taken under mu: an update published meanwhile waits for the lock and
// then reaches sub too.
func (h *Hub) Register(sub Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := json.Marshal(service.NewInitialState(h.source.Snapshot()))
	if err != nil {
		return err
	}

	if err := sub.Send(data); err != nil {
		return err
	}
	h.subscribers[sub] = struct{}{}

	h.logger.Info().
		Str("subscriber", sub.ID()).
		Int("total", len(h.subscribers)).
		Msg("Subscriber connected")
	return nil
}

// Unregister removes sub; it is a no-op for unknown subscribers
func (h *Hub) Unregister(sub Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	delete(h.subscribers, sub)
	remaining := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		h.logger.Info().
			Str("subscriber", sub.ID()).
			Int("remaining", remaining).
			Msg("Subscriber removed")
	}
}

// Count returns the number of registered subscribers
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Publish delivers event to every subscriber. Subscribers whose delivery
// fails are dropped once the whole set has been tried.
func (h *Hub) Publish(event service.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(event.Kind())).Msg("Failed to marshal event")
		return
	}

	h.mu.Lock()
	targets := make([]Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	var failed []Subscriber
	for _, sub := range targets {
		if err := sub.Send(data); err != nil {
			h.logger.Warn().
				Err(err).
				Str("subscriber", sub.ID()).
				Str("type", string(event.Kind())).
				Msg("Failed to send to subscriber")
			failed = append(failed, sub)
		}
	}

	for _, sub := range failed {
		h.Unregister(sub)
		sub.Close()
	}
}

// command is a message sent by a subscriber
type command struct {
	Type string `json:"type"`
}

// HandleMessage processes one raw message from a subscriber
func (h *Hub) HandleMessage(sub Subscriber, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.logger.Debug().Err(err).Str("subscriber", sub.ID()).Msg("Ignoring malformed message")
		return
	}

	switch cmd.Type {
	case "scan_now":
		h.logger.Info().Str("subscriber", sub.ID()).Msg("Client requested immediate scan")
		h.source.ScanNow()
	default:
		h.logger.Debug().Str("subscriber", sub.ID()).Str("type", cmd.Type).Msg("Ignoring unknown message type")
	}
}
