// Package broker is the process-wide RabbitMQ client. One Client per
// service multiplexes every publisher and consumer over a single
// connection, owns reconnection, and exposes only publish/subscribe/
// shutdown to the rest of the process.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tixgo/platform/internal/logging"
	"github.com/tixgo/platform/internal/metrics"
)

var (
	// ErrUnavailable means no broker connection is live right now. Callers
	// must treat it as non-fatal to the originating business operation.
	ErrUnavailable = errors.New("broker unavailable")

	// ErrClosed means Shutdown has been called; the client is terminal.
	ErrClosed = errors.New("broker client closed")
)

// State is the lifecycle of the client's logical connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler processes one message body. A nil return acknowledges the
// message; an error rejects it without requeue.
type Handler func(ctx context.Context, body []byte) error

// Config carries the client's tunables. Zero values fall back to the
// defaults below.
type Config struct {
	URL              string
	Prefetch         int
	ReconnectBackoff time.Duration
}

const (
	defaultPrefetch = 1
	defaultBackoff  = 5 * time.Second
)

type subscription struct {
	queue   string
	handler Handler
	ch      amqpChannel
}

// Client owns the connection, the publisher channel and the consumer
// registry. All fields below mu are mutated only by the client itself.
type Client struct {
	cfg    Config
	dial   dialFunc
	tracer trace.Tracer

	mu       sync.Mutex
	state    State
	conn     amqpConnection
	pubCh    amqpChannel
	confirms chan amqp.Confirmation
	subs     []*subscription

	pubMu sync.Mutex

	done      chan struct{}
	finished  chan struct{}
	closeOnce sync.Once
}

// NewClient starts the connection loop in the background and returns
// immediately; publishes fail with ErrUnavailable until the first connect
// succeeds.
func NewClient(cfg Config) *Client {
	return newClient(cfg, amqpDial)
}

func newClient(cfg Config, dial dialFunc) *Client {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaultPrefetch
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = defaultBackoff
	}

	c := &Client{
		cfg:      cfg,
		dial:     dial,
		tracer:   otel.Tracer("platform.broker"),
		state:    StateDisconnected,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go c.run()
	return c
}

// State reports the connection state; used by health checks and tests.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers handler for queue. The subscription survives
// reconnects: the client re-declares the queue and restarts the consumer
// after every successful redial without caller involvement.
func (c *Client) Subscribe(queue string, handler Handler) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	sub := &subscription{queue: queue, handler: handler}
	c.subs = append(c.subs, sub)
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if connected && conn != nil {
		if err := c.startConsumer(conn, sub); err != nil {
			// The reconnect loop will retry this subscription; consuming
			// starts as soon as a healthy connection is available.
			logging.Warn(context.Background(), "consumer start deferred to reconnect",
				zap.String("queue", queue), zap.Error(err))
		}
	}
	return nil
}

// Publish marshals payload as JSON and sends it to queue in confirm mode:
// it returns nil only once the broker acknowledges the message. When no
// connection is live it fails fast with ErrUnavailable.
func (c *Client) Publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", queue, err)
	}

	spanCtx, span := c.tracer.Start(ctx, queue+" publish", trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemRabbitmq,
			semconv.MessagingDestinationName(queue),
		),
	)
	defer span.End()

	err = c.publish(spanCtx, queue, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}

	metrics.MessagesPublished.WithLabelValues(queue).Inc()
	return nil
}

func (c *Client) publish(ctx context.Context, queue string, body []byte) error {
	// Confirmations arrive in publish order, so publishes are serialized
	// and each one consumes exactly one confirmation.
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateConnected || c.pubCh == nil {
		c.mu.Unlock()
		return ErrUnavailable
	}
	ch := c.pubCh
	confirms := c.confirms
	c.mu.Unlock()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	headers := make(TraceCarrier)
	otel.GetTextMapPropagator().Inject(ctx, headers)

	err := ch.Publish("", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Headers:      amqp.Table(headers),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}

	select {
	case conf, ok := <-confirms:
		if !ok {
			// Channel died between publish and confirm; delivery unknown.
			return ErrUnavailable
		}
		if !conf.Ack {
			return fmt.Errorf("broker rejected publish to %s", queue)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// Shutdown closes every consumer, then the connection. Idempotent; safe to
// call with publishes in flight (they fail with ErrClosed).
func (c *Client) Shutdown(ctx context.Context) error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	select {
	case <-c.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) run() {
	defer close(c.finished)

	for {
		select {
		case <-c.done:
			c.teardown()
			return
		default:
		}

		c.setState(StateConnecting)
		conn, err := c.dial(c.cfg.URL)
		if err != nil {
			logging.Error(context.Background(), "broker dial failed", err,
				zap.String("url", c.cfg.URL))
			if c.waitBackoff() {
				c.teardown()
				return
			}
			continue
		}

		closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

		pubCh, confirms, err := c.openPublisher(conn)
		if err != nil {
			logging.Error(context.Background(), "publisher channel setup failed", err)
			_ = conn.Close()
			if c.waitBackoff() {
				c.teardown()
				return
			}
			continue
		}

		c.mu.Lock()
		reconnected := c.state == StateReconnecting
		c.conn = conn
		c.pubCh = pubCh
		c.confirms = confirms
		c.state = StateConnected
		subs := append([]*subscription(nil), c.subs...)
		c.mu.Unlock()

		if reconnected {
			metrics.BrokerReconnects.Inc()
		}
		logging.Info(context.Background(), "broker connected",
			zap.Int("subscriptions", len(subs)))

		for _, sub := range subs {
			if err := c.startConsumer(conn, sub); err != nil {
				logging.Error(context.Background(), "consumer start failed", err,
					zap.String("queue", sub.queue))
			}
		}

		select {
		case <-c.done:
			c.teardown()
			return
		case amqpErr := <-closeCh:
			logging.Warn(context.Background(), "broker connection lost",
				zap.String("reason", closeReason(amqpErr)))
			c.mu.Lock()
			c.conn = nil
			c.pubCh = nil
			c.confirms = nil
			for _, sub := range c.subs {
				sub.ch = nil
			}
			c.state = StateReconnecting
			c.mu.Unlock()
			if c.waitBackoff() {
				c.teardown()
				return
			}
		}
	}
}

// waitBackoff sleeps for the reconnect interval; true means Shutdown was
// requested while waiting. It leaves the state alone: before the first
// successful connect retries stay in Connecting, and Reconnecting is
// entered only when an established connection is lost.
func (c *Client) waitBackoff() bool {
	select {
	case <-c.done:
		return true
	case <-time.After(c.cfg.ReconnectBackoff):
		return false
	}
}

func (c *Client) openPublisher(conn amqpConnection) (amqpChannel, chan amqp.Confirmation, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return ch, confirms, nil
}

func (c *Client) startConsumer(conn amqpConnection, sub *subscription) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel for %s: %w", sub.queue, err)
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set qos for %s: %w", sub.queue, err)
	}
	if _, err := ch.QueueDeclare(sub.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare queue %s: %w", sub.queue, err)
	}

	tag := sub.queue + "-" + uuid.NewString()
	deliveries, err := ch.Consume(sub.queue, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume %s: %w", sub.queue, err)
	}

	c.mu.Lock()
	sub.ch = ch
	c.mu.Unlock()

	go c.consumeLoop(sub, deliveries)
	return nil
}

// consumeLoop ends when the delivery channel closes, which happens on
// connection loss and on shutdown; reconnection starts a fresh loop.
func (c *Client) consumeLoop(sub *subscription, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		c.handleDelivery(sub, d)
	}
}

func (c *Client) handleDelivery(sub *subscription, d amqp.Delivery) {
	carrier := make(TraceCarrier)
	for k, v := range d.Headers {
		carrier[k] = v
	}
	parentCtx := otel.GetTextMapPropagator().Extract(context.Background(), carrier)

	spanCtx, span := c.tracer.Start(parentCtx, sub.queue+" receive", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemRabbitmq,
			semconv.MessagingDestinationName(sub.queue),
		),
	)
	defer span.End()

	if err := sub.handler(spanCtx, d.Body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		logging.Error(spanCtx, "message rejected", err, zap.String("queue", sub.queue))
		// Poison messages are not requeued; retry is the handler's business.
		_ = d.Nack(false, false)
		metrics.MessagesConsumed.WithLabelValues(sub.queue, "reject").Inc()
		return
	}

	_ = d.Ack(false)
	metrics.MessagesConsumed.WithLabelValues(sub.queue, "ack").Inc()
}

// teardown closes consumers first, then the connection.
func (c *Client) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		if sub.ch != nil {
			_ = sub.ch.Close()
			sub.ch = nil
		}
	}
	if c.pubCh != nil {
		_ = c.pubCh.Close()
		c.pubCh = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateClosed
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = s
}

func closeReason(err *amqp.Error) string {
	if err == nil {
		return "clean close"
	}
	return err.Error()
}
