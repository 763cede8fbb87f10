package stream

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentmarket/backend/internal/domain/stream"
)

// ClientConfig holds reconnect settings for a stream consumer
type ClientConfig struct {
	URL             string        // websocket endpoint of the hub
	Topic           string        // topic to follow
	ReconnectBase   time.Duration // first retry delay
	ReconnectMax    time.Duration // retry delay ceiling
	ReconnectJitter float64       // jitter fraction applied to each delay
	PongWait        time.Duration
}

func (c *ClientConfig) withDefaults() {
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = 5 * time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 5 * time.Minute
	}
	if c.ReconnectJitter <= 0 {
		c.ReconnectJitter = 0.1
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
}

// EventHandler consumes one event from the followed topic
type EventHandler func(event *stream.Event)

// Status reports the connection state of a Client
type Status string

const (
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// StatusHandler observes connection state changes
type StatusHandler func(status Status)

// Client follows one topic over a hub websocket and survives
// disconnects. It remembers the last sequence it handled and resumes
// after it on every reconnect, so a handler sees each event once as
// long as the topic history is retained.
type Client struct {
	config   ClientConfig
	handler  EventHandler
	onStatus StatusHandler
	logger   *zap.Logger

	// lastSeq is read concurrently by LastSeq while Run advances it
	lastSeq atomic.Int64
}

// NewClient creates a reconnecting topic follower
func NewClient(config ClientConfig, handler EventHandler, logger *zap.Logger) *Client {
	config.withDefaults()
	return &Client{
		config:  config,
		handler: handler,
		logger:  logger,
	}
}

// OnStatusChange registers a callback observing connection state.
// Must be called before Run.
func (c *Client) OnStatusChange(fn StatusHandler) {
	c.onStatus = fn
}

func (c *Client) notifyStatus(status Status) {
	if c.onStatus != nil {
		c.onStatus(status)
	}
}

// LastSeq returns the sequence of the last handled event
func (c *Client) LastSeq() int64 {
	return c.lastSeq.Load()
}

// Run follows the topic until ctx is cancelled, reconnecting with
// exponential backoff
func (c *Client) Run(ctx context.Context) error {
	failures := 0
	for {
		if err := c.runOnce(ctx); err != nil {
			failures++
			delay := c.backoffDelay(failures)
			c.logger.Warn("Stream connection lost, reconnecting",
				zap.String("topic", c.config.Topic),
				zap.Int64("last_seq", c.lastSeq.Load()),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			c.notifyStatus(StatusReconnecting)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				c.notifyStatus(StatusDisconnected)
				return ctx.Err()
			}
			continue
		}
		failures = 0

		select {
		case <-ctx.Done():
			c.notifyStatus(StatusDisconnected)
			return ctx.Err()
		default:
		}
	}
}

// runOnce dials, subscribes after the last handled sequence and reads
// until the connection fails or the subscription is dropped
func (c *Client) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the socket when ctx ends so the blocked read returns.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	if err := conn.WriteJSON(ControlMessage{
		Action:   actionSubscribe,
		Topic:    c.config.Topic,
		AfterSeq: c.lastSeq.Load(),
	}); err != nil {
		return err
	}
	c.notifyStatus(StatusConnected)

	conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}

		switch frame.Type {
		case frameEvent:
			if frame.Event == nil || frame.Event.Seq <= c.lastSeq.Load() {
				continue
			}
			c.handler(frame.Event)
			c.lastSeq.Store(frame.Event.Seq)
		case frameDropped:
			// The hub shed this subscription, resubscribe on a fresh
			// connection from the last handled sequence.
			return errDropped
		case frameSubscribed, frameError:
			if frame.Type == frameError {
				c.logger.Warn("Stream hub error",
					zap.String("topic", frame.Topic),
					zap.String("error", frame.Error),
				)
			}
		}
	}
}

func (c *Client) backoffDelay(failures int) time.Duration {
	delay := time.Duration(float64(c.config.ReconnectBase) * math.Pow(2, float64(failures-1)))
	if delay > c.config.ReconnectMax || delay <= 0 {
		delay = c.config.ReconnectMax
	}
	jitter := time.Duration(float64(delay) * c.config.ReconnectJitter * (rand.Float64()*2 - 1))
	return delay + jitter
}

type droppedError struct{}

func (droppedError) Error() string { return "stream: subscription dropped by hub" }

var errDropped = droppedError{}
