// Package websocket pushes record and reminder events to connected staff
// clients. A client subscribes to topics and receives every event published
// on them.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	TopicRecords   = "records"
	TopicReminders = "reminders"

	recordTopicPrefix = "record:"

	// SendBuffer is how many undelivered events a client may queue before
	// further events to it are dropped.
	SendBuffer = 64
)

// RecordTopic is the topic carrying events for one record.
func RecordTopic(id string) string {
	return recordTopicPrefix + id
}

// ValidTopic reports whether clients may subscribe to topic.
func ValidTopic(topic string) bool {
	switch topic {
	case TopicRecords, TopicReminders:
		return true
	}
	id, ok := strings.CutPrefix(topic, recordTopicPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Event is one message pushed to clients.
type Event struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Subject string          `json:"subject,omitempty"`
	At      time.Time       `json:"at"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is sent by clients to change their subscriptions.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one connected socket.
type Client struct {
	ID     string
	UserID string

	topics map[string]struct{}
	send   chan []byte
}

// NewClient creates a client with a SendBuffer-sized queue.
func NewClient(id, userID string) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		topics: make(map[string]struct{}),
		send:   make(chan []byte, SendBuffer),
	}
}

// Send returns the client's outbound queue. It is closed on Unregister.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  zerolog.Logger
	now     func() time.Time
	dropped int
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Client]struct{}),
		all:    make(map[*Client]struct{}),
		logger: logger,
		now:    time.Now,
	}
}

// Register adds c and subscribes it to topics.
func (h *Hub) Register(c *Client, topics ...string) {
	h.mu.Lock()
	h.all[c] = struct{}{}
	h.mu.Unlock()

	h.Subscribe(c, topics...)
}

// Unregister removes c from every topic and closes its queue. Unregistering
// twice is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return
	}
	for topic := range c.topics {
		h.remove(topic, c)
	}
	delete(h.all, c)
	close(c.send)
}

// Subscribe adds topics to a registered client. Invalid topics are skipped and
// the accepted ones returned.
func (h *Hub) Subscribe(c *Client, topics ...string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return nil
	}
	var accepted []string
	for _, topic := range topics {
		if !ValidTopic(topic) {
			h.logger.Debug().Str("client_id", c.ID).Str("topic", topic).Msg("ignoring invalid topic")
			continue
		}
		subs := h.topics[topic]
		if subs == nil {
			subs = make(map[*Client]struct{})
			h.topics[topic] = subs
		}
		subs[c] = struct{}{}
		c.topics[topic] = struct{}{}
		accepted = append(accepted, topic)
	}
	return accepted
}

// Unsubscribe removes topics from c.
func (h *Hub) Unsubscribe(c *Client, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if _, ok := c.topics[topic]; !ok {
			continue
		}
		h.remove(topic, c)
		delete(c.topics, topic)
	}
}

// remove requires h.mu to be held.
func (h *Hub) remove(topic string, c *Client) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Topics lists c's subscriptions in sorted order.
func (h *Hub) Topics(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ProcessMessage applies a raw ClientMessage from c.
func (h *Hub) ProcessMessage(c *Client, raw []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode client message: %w", err)
	}
	switch msg.Action {
	case "subscribe":
		h.Subscribe(c, msg.Topics...)
	case "unsubscribe":
		h.Unsubscribe(c, msg.Topics...)
	default:
		return fmt.Errorf("unknown action %q", msg.Action)
	}
	return nil
}

// Publish delivers ev to subscribers of its topic. Events on the records topic
// with a subject also reach subscribers of that record's topic. Each client
// gets an event at most once; clients with a full queue miss it.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = h.now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.Type, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	targets := make(map[*Client]struct{}, len(h.topics[ev.Topic]))
	for c := range h.topics[ev.Topic] {
		targets[c] = struct{}{}
	}
	if ev.Topic == TopicRecords && ev.Subject != "" {
		for c := range h.topics[RecordTopic(ev.Subject)] {
			targets[c] = struct{}{}
		}
	}

	for c := range targets {
		select {
		case c.send <- data:
		default:
			h.dropped++
			h.logger.Warn().Str("client_id", c.ID).Str("event", ev.Type).Msg("client queue full, dropping event")
		}
	}
	return nil
}

// Notify publishes an event built from its arguments. Failures are logged;
// a live feed never blocks or fails the operation that produced the event.
func (h *Hub) Notify(ctx context.Context, topic, eventType, subject string, data any) {
	ev := Event{Type: eventType, Topic: topic, Subject: subject}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			h.logger.Error().Err(err).Str("event", eventType).Msg("failed to encode event data")
			return
		}
		ev.Data = raw
	}
	if err := h.Publish(ctx, ev); err != nil {
		h.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Dropped returns how many deliveries were skipped because of full queues.
func (h *Hub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Close unregisters every client, which ends their write pumps.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.all))
	for c := range h.all {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}
