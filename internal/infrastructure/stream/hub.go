package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentmarket/backend/internal/domain/stream"
)

// HubConfig holds websocket transport settings
type HubConfig struct {
	WriteWait time.Duration // write deadline per frame
	PongWait  time.Duration // read deadline refreshed on pong
}

func (c *HubConfig) withDefaults() {
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client actions
const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// Server frame types
const (
	frameEvent      = "event"
	frameSubscribed = "subscribed"
	frameDropped    = "dropped"
	frameError      = "error"
)

// ControlMessage is what a websocket client sends to manage its
// subscriptions. AfterSeq resumes a topic after the given sequence.
type ControlMessage struct {
	Action   string `json:"action"`
	Topic    string `json:"topic"`
	AfterSeq int64  `json:"after_seq,omitempty"`
}

// Frame is a message from the hub to a websocket client
type Frame struct {
	Type  string        `json:"type"`
	Topic string        `json:"topic,omitempty"`
	Event *stream.Event `json:"event,omitempty"`
	Error string        `json:"error,omitempty"`
}

// Hub bridges websocket connections onto the stream bus. Each
// connection manages its own set of topic subscriptions through
// control messages.
type Hub struct {
	bus    stream.Bus
	config HubConfig
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewHub creates a websocket hub over the given bus
func NewHub(bus stream.Bus, config HubConfig, logger *zap.Logger) *Hub {
	config.withDefaults()
	return &Hub{
		bus:     bus,
		config:  config,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// ClientCount returns the number of connected websocket clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and runs the connection until it closes
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan Frame, 64),
		done: make(chan struct{}),
		subs: make(map[string]stream.Subscription),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go client.writePump()
	client.readPump()
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.conn.Close()
	}
}

func (h *Hub) removeClient(client *wsClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
}

// wsClient is one websocket connection and its topic subscriptions
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Frame
	done chan struct{}

	mu   sync.Mutex
	subs map[string]stream.Subscription
}

func (c *wsClient) readPump() {
	defer func() {
		c.close()
		c.hub.removeClient(c)
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Websocket read failed", zap.Error(err))
			}
			return
		}

		var msg ControlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.enqueue(Frame{Type: frameError, Error: "malformed control message"})
			continue
		}
		c.handleControl(msg)
	}
}

func (c *wsClient) handleControl(msg ControlMessage) {
	switch msg.Action {
	case actionSubscribe:
		c.subscribe(msg.Topic, msg.AfterSeq)
	case actionUnsubscribe:
		c.unsubscribe(msg.Topic)
	default:
		c.enqueue(Frame{Type: frameError, Topic: msg.Topic, Error: "unknown action"})
	}
}

func (c *wsClient) subscribe(topic string, afterSeq int64) {
	c.mu.Lock()
	if _, exists := c.subs[topic]; exists {
		c.mu.Unlock()
		c.enqueue(Frame{Type: frameError, Topic: topic, Error: "already subscribed"})
		return
	}
	c.mu.Unlock()

	sub, err := c.hub.bus.Subscribe(context.Background(), topic, afterSeq)
	if err != nil {
		c.enqueue(Frame{Type: frameError, Topic: topic, Error: err.Error()})
		return
	}

	c.mu.Lock()
	c.subs[topic] = sub
	c.mu.Unlock()

	c.enqueue(Frame{Type: frameSubscribed, Topic: topic})
	go c.pump(topic, sub)
}

func (c *wsClient) unsubscribe(topic string) {
	c.mu.Lock()
	sub, ok := c.subs[topic]
	if ok {
		delete(c.subs, topic)
	}
	c.mu.Unlock()

	if ok {
		sub.Close()
	}
}

// pump forwards one subscription to the connection. When the bus drops
// the subscription, the client is told so it can resubscribe from its
// last seen sequence.
func (c *wsClient) pump(topic string, sub stream.Subscription) {
	for {
		select {
		case event, ok := <-sub.C():
			if !ok {
				c.mu.Lock()
				_, stillSubscribed := c.subs[topic]
				delete(c.subs, topic)
				c.mu.Unlock()
				if stillSubscribed {
					c.enqueue(Frame{Type: frameDropped, Topic: topic})
				}
				return
			}
			c.enqueue(Frame{Type: frameEvent, Topic: topic, Event: event})
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) enqueue(frame Frame) {
	select {
	case c.send <- frame:
	case <-c.done:
	}
}

func (c *wsClient) writePump() {
	pingInterval := c.hub.config.PongWait * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// close tears down the connection's subscriptions exactly once
func (c *wsClient) close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]stream.Subscription)
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	c.conn.Close()
}
