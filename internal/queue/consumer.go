package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const outboxFile = "notifications.log"

// StartNotificationConsumer connects to RabbitMQ, declares the notification
// queues (durable) and appends one line per message to
// <logDir>/notifications.log, which is what the mail relay tails. It
// reconnects with backoff until ctx is cancelled.
func StartNotificationConsumer(ctx context.Context, url, logDir string, logger zerolog.Logger) error {
	log := logger.With().Str("component", "notification_consumer").Logger()
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, logDir, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, logDir string, log zerolog.Logger) error {
	// Stops the forwarders on every return, not just on shutdown.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("set QoS failed")
	}

	deliveries := make(chan amqp.Delivery)
	for _, q := range []string{SessionClosedQueue, LoginCodeQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		go forward(ctx, msgs, deliveries)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return errors.New("connection closed")
		case d := <-deliveries:
			if err := HandleMessage(logDir, d.RoutingKey, d.Body); err != nil {
				log.Error().Err(err).Str("queue", d.RoutingKey).Msg("handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// forward copies msgs into out until msgs closes or ctx is done.
func forward(ctx context.Context, msgs <-chan amqp.Delivery, out chan<- amqp.Delivery) {
	for d := range msgs {
		select {
		case out <- d:
		case <-ctx.Done():
			return
		}
	}
}

// HandleMessage appends the outbox line for a message received on queue.
func HandleMessage(logDir, queue string, body []byte) error {
	line, err := formatMessage(queue, body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, outboxFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatMessage(queue string, body []byte) (string, error) {
	switch queue {
	case SessionClosedQueue:
		var ev SessionClosedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Session closed | to=%s | name=%q | ip=%s | agent=%q | reason=%q\n",
			ev.ClosedAt, ev.Email, ev.Name, ev.IP, ev.UserAgent, ev.Reason), nil
	case LoginCodeQueue:
		var ev LoginCodeEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Login code | to=%s | name=%q | code=%s\n",
			ev.ExpiresAt, ev.Email, ev.Name, ev.Code), nil
	}
	return "", fmt.Errorf("unknown queue %q", queue)
}
