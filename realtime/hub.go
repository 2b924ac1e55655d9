// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/danielhkuo/kidwa/auth"
	"github.com/danielhkuo/kidwa/metrics"
)

// Event types
const (
	EventTally        = "poll.tally"
	EventPollClosed   = "poll.closed"
	EventPollResolved = "poll.resolved"
	EventNotification = "notification"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventError        = "error"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageSize  = 4096
	sendBuffer      = 64
	broadcastBuffer = 1024
	maxTopics       = 50
)

func PollTopic(pollID string) string { return "poll:" + pollID }
func UserTopic(userID string) string { return "user:" + userID }

// Event is the envelope written to subscribers.
type Event struct {
	Type    string    `json:"type"`
	Topic   string    `json:"topic"`
	Payload any       `json:"payload,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// Authenticator resolves a session token to a user ID.
type Authenticator func(ctx context.Context, token string) (string, error)

type subscription struct {
	client *client
	topic  string
	add    bool
}

// Hub fans events out to websocket clients by topic. All subscription state
// is owned by the Run goroutine.
type Hub struct {
	log          *zap.Logger
	metrics      *metrics.Metrics
	authenticate Authenticator
	upgrader     websocket.Upgrader

	register   chan *client
	unregister chan *client
	subscribe  chan subscription
	broadcast  chan Event
	done       chan struct{}

	clients map[*client]struct{}
	topics  map[string]map[*client]struct{}
}

func NewHub(log *zap.Logger, m *metrics.Metrics, authenticate Authenticator) *Hub {
	return &Hub{
		log:          log.Named("realtime"),
		metrics:      m,
		authenticate: authenticate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API is token-authenticated and serves browser clients on
			// other origins, same as the CORS policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		subscribe:  make(chan subscription),
		broadcast:  make(chan Event, broadcastBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
		topics:     make(map[string]map[*client]struct{}),
	}
}

// Run processes hub traffic until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.RealtimeConnections.Inc()
			h.log.Debug("client connected", zap.String("client", c.id), zap.String("user_id", c.userID))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.Debug("client disconnected", zap.String("client", c.id))
			}

		case s := <-h.subscribe:
			h.applySubscription(s)

		case ev := <-h.broadcast:
			h.fanOut(ev)
		}
	}
}

// Publish queues an event for every subscriber of topic. It never blocks;
// when the queue is full the event is dropped and counted.
func (h *Hub) Publish(topic, eventType string, payload any) {
	ev := Event{Type: eventType, Topic: topic, Payload: payload, SentAt: time.Now().UTC()}
	select {
	case h.broadcast <- ev:
	default:
		h.metrics.RealtimeDropped.Inc()
		h.log.Warn("broadcast queue full, dropping event", zap.String("topic", topic), zap.String("type", eventType))
	}
}

// ServeWS upgrades the request. A token query parameter authenticates the
// connection; without one the client may only follow poll topics.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var userID string
	if token := r.URL.Query().Get("token"); token != "" {
		id, err := h.authenticate(r.Context(), token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		userID = id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	id, _ := auth.GenerateID(8)
	c := &client{
		id:     id,
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		topics: make(map[string]struct{}),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) drop(c *client) {
	for topic := range c.topics {
		h.removeFromTopic(c, topic)
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.RealtimeConnections.Dec()
}

func (h *Hub) removeFromTopic(c *client, topic string) {
	subs := h.topics[topic]
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
	delete(c.topics, topic)
}

func (h *Hub) applySubscription(s subscription) {
	c := s.client
	if _, ok := h.clients[c]; !ok {
		return
	}

	if !s.add {
		h.removeFromTopic(c, s.topic)
		h.deliver(c, Event{Type: EventUnsubscribed, Topic: s.topic, SentAt: time.Now().UTC()})
		return
	}

	if msg := h.authorize(c, s.topic); msg != "" {
		h.deliver(c, Event{Type: EventError, Topic: s.topic, Payload: msg, SentAt: time.Now().UTC()})
		return
	}

	subs, ok := h.topics[s.topic]
	if !ok {
		subs = make(map[*client]struct{})
		h.topics[s.topic] = subs
	}
	subs[c] = struct{}{}
	c.topics[s.topic] = struct{}{}
	h.deliver(c, Event{Type: EventSubscribed, Topic: s.topic, SentAt: time.Now().UTC()})
}

// authorize returns a rejection message, or "" when the subscription is allowed.
func (h *Hub) authorize(c *client, topic string) string {
	if _, already := c.topics[topic]; !already && len(c.topics) >= maxTopics {
		return "too many subscriptions"
	}

	kind, id, ok := strings.Cut(topic, ":")
	if !ok || id == "" {
		return "unknown topic"
	}
	switch kind {
	case "poll":
		return ""
	case "user":
		if c.userID == "" || c.userID != id {
			return "forbidden"
		}
		return ""
	}
	return "unknown topic"
}

func (h *Hub) fanOut(ev Event) {
	subs := h.topics[ev.Topic]
	if len(subs) == 0 {
		return
	}
	for c := range subs {
		h.deliver(c, ev)
	}
}

// deliver queues ev for one client; a client whose buffer is full is
// disconnected rather than allowed to stall the hub.
func (h *Hub) deliver(c *client, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to encode event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		h.metrics.RealtimeDropped.Inc()
		h.log.Warn("slow client dropped", zap.String("client", c.id))
		h.drop(c)
	}
}
