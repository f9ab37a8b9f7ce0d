package bus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"dockerdb/internal/events"
)

// Config holds the NATS connection settings.
type Config struct {
	URL            string
	Token          string
	ConnectTimeout time.Duration
}

// conn is the part of *nats.Conn the client uses.
type conn interface {
	Publish(subject string, data []byte) error
	Flush() error
	Drain() error
}

// Client publishes dockerdb lifecycle events to NATS.
type Client struct {
	nc     conn
	source string
	logger *slog.Logger

	// emitter and handlerID are set by Forward.
	emitter   *events.Emitter
	handlerID int
}

// Connect dials NATS. Callers must Close the client to flush pending messages.
func Connect(cfg Config, source string, logger *slog.Logger) (*Client, error) {
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	opts := []nats.Option{
		nats.Name(source),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("bus disconnected", "error", err)
			}
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus connect: %w", err)
	}
	return newClient(nc, source, logger), nil
}

func newClient(nc conn, source string, logger *slog.Logger) *Client {
	return &Client{
		nc:     nc,
		source: source,
		logger: logger.With("component", "bus"),
	}
}

// Publish wraps payload in an Envelope and publishes it.
func (c *Client) Publish(subject, eventType string, payload any) error {
	env, err := NewEnvelope(eventType, c.source, payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return c.nc.Publish(subject, data)
}

// Forward publishes every emitted lifecycle event until Close. Publish
// failures are logged, never returned: the bus is an observer of the
// lifecycle, not part of it.
func (c *Client) Forward(emitter *events.Emitter) {
	c.emitter = emitter
	c.handlerID = emitter.OnEvent(func(ev events.Event) {
		subject := ContainerSubject(ev.Container, ev.Type)
		payload := ContainerData{Container: ev.Container, Fields: ev.Fields}
		if err := c.Publish(subject, ev.Type, payload); err != nil {
			c.logger.Warn("publish failed", "subject", subject, "error", err)
		}
	})
}

// Close stops forwarding, then flushes and drains the connection.
func (c *Client) Close() error {
	if c.emitter != nil {
		c.emitter.RemoveHandler(c.handlerID)
		c.emitter = nil
	}
	if c.nc == nil {
		return nil
	}
	if err := c.nc.Flush(); err != nil {
		c.logger.Warn("bus flush failed", "error", err)
	}
	return c.nc.Drain()
}
