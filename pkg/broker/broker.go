package broker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config configures the connection to the broker.
type Config struct {
	Hostname string
	Port     int
	Username string
	Password string
}

// URL builds the amqp:// dial URL from the config, defaulting credentials
// to the guest account RabbitMQ ships with.
func (c Config) URL() string {
	user, pass := c.Username, c.Password
	if user == "" {
		user = "guest"
	}
	if pass == "" {
		pass = "guest"
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", user, pass, c.Hostname, c.Port)
}

// Conn wraps a single AMQP connection and channel. The engine opens one
// Conn per goroutine that drives a channel (the AppManager alone holds
// several: its own, the synchronizer's, the enqueuer's and the
// dequeuer's; a TaskManager holds two plus one for its heartbeat
// responder) and never shares a *amqp.Channel across goroutines,
// matching amqp091-go's concurrency contract.
type Conn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to the broker and opens one channel.
func Dial(cfg Config) (*Conn, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("broker: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("broker: open channel: %w", err)
	}
	return &Conn{conn: conn, ch: ch}, nil
}

// Close tears down the channel and connection.
func (c *Conn) Close() error {
	if err := c.ch.Close(); err != nil {
		c.conn.Close()
		return fmt.Errorf("broker: close channel: %w", err)
	}
	return c.conn.Close()
}

// DeclareQueue deletes any stale queue by the same name, then declares a
// fresh durable, non-exclusive, non-auto-deleted queue. Ensemble sessions
// are not meant to share queues across runs; starting from empty avoids
// replaying a dead session's backlog into a new one.
func (c *Conn) DeclareQueue(name string) error {
	if _, err := c.ch.QueueDelete(name, false, false, false); err != nil {
		// Deleting a queue that never existed is not an error condition
		// worth failing startup over; amqp091-go surfaces it as a
		// channel-level error that also closes the channel, so reopen.
		ch, rerr := c.conn.Channel()
		if rerr != nil {
			return fmt.Errorf("broker: reopen channel after delete %s: %w", name, rerr)
		}
		c.ch = ch
	}
	_, err := c.ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("broker: declare queue %s: %w", name, err)
	}
	return nil
}

// Publish sends body to queue as a persistent message.
func (c *Conn) Publish(ctx context.Context, queue string, body []byte) error {
	return c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
}

// PublishWithReply sends body to queue tagged with a reply-to queue and
// correlation id, the shape every sync-to-master proposal and heartbeat
// request uses so the sender can await a matching response.
func (c *Conn) PublishWithReply(ctx context.Context, queue, replyTo, correlationID string, body []byte) error {
	return c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		ReplyTo:       replyTo,
		CorrelationId: correlationID,
		Body:          body,
	})
}

// PublishAck answers a PublishWithReply request: body is sent to
// replyQueue tagged with the same correlation id, the shape the
// synchronizer uses for every `<uid>-ack`.
func (c *Conn) PublishAck(ctx context.Context, replyQueue, correlationID string, body []byte) error {
	return c.ch.PublishWithContext(ctx, "", replyQueue, false, false, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		CorrelationId: correlationID,
		Body:          body,
	})
}

// Consume returns a delivery channel for queue. autoAck false means the
// caller must Ack/Nack each delivery; every long-running consumer in this
// engine acks manually, after its own side effects are durable, so a
// crash mid-handling redelivers instead of silently dropping work.
func (c *Conn) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	deliveries, err := c.ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("broker: consume %s: %w", queue, err)
	}
	return deliveries, nil
}

// Get polls queue once for a single message (used by the WFP dequeuer,
// which prefers draining a batch without blocking on Consume).
func (c *Conn) Get(queue string) (*amqp.Delivery, bool, error) {
	msg, ok, err := c.ch.Get(queue, false)
	if err != nil {
		return nil, false, fmt.Errorf("broker: get %s: %w", queue, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &msg, true, nil
}

// AwaitAck consumes replyQueue until a delivery with the matching
// correlation id arrives, or timeout elapses. Used after
// PublishWithReply to block the caller until the synchronizer (or a
// heartbeat responder) has processed the request.
func (c *Conn) AwaitAck(replyQueue, correlationID string, timeout time.Duration) error {
	deliveries, err := c.Consume(replyQueue, "")
	if err != nil {
		return err
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("broker: reply queue %s closed before ack", replyQueue)
			}
			if d.CorrelationId != correlationID {
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
			return nil
		case <-deadline.C:
			return fmt.Errorf("broker: timed out waiting %s for ack on %s (correlation %s)", timeout, replyQueue, correlationID)
		}
	}
}
