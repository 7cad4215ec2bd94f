package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// ErrBadEvent marks a message that can never be handled.
var ErrBadEvent = errors.New("bad scan.awarded event")

// AwardLog appends one line per scan.awarded event to <dir>/awards.log.
type AwardLog struct {
	dir string
	mu  sync.Mutex
}

func NewAwardLog(dir string) *AwardLog {
	if dir == "" {
		dir = "logs"
	}
	return &AwardLog{dir: dir}
}

// Path is the file the log writes to.
func (l *AwardLog) Path() string { return filepath.Join(l.dir, "awards.log") }

// Handle decodes one message body and appends it to the log.
func (l *AwardLog) Handle(body []byte) error {
	var ev ScanAwardedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if ev.UserID == 0 {
		return fmt.Errorf("%w: missing user_id", ErrBadEvent)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(l.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatAwardLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatAwardLine renders ev as a single log line ending in '\n'.
func FormatAwardLine(ev ScanAwardedEvent) string {
	scanner := "-"
	if ev.ScannerID != nil {
		scanner = fmt.Sprintf("%d", *ev.ScannerID)
	}
	return fmt.Sprintf("[%s] Scan awarded | event_id=%s | user_id=%d | scanner_id=%s | day=%s | delta=%d | balance=%d\n",
		ev.AwardedAt, ev.EventID, ev.UserID, scanner, ev.AwardDate, ev.Delta, ev.Balance)
}

// ConsumeAMQP consumes the scan.awarded queue until ctx is cancelled,
// reconnecting with exponential backoff.  Undecodable messages are rejected
// without requeue; write failures are retried before the ack.
func ConsumeAMQP(ctx context.Context, url string, sink *AwardLog, log logrus.FieldLogger) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.WithError(err).Warnf("award-consumer: dial failed, retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, sink, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("award-consumer: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, sink *AwardLog, log logrus.FieldLogger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.WithError(err).Warn("award-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(ScanAwardedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(ScanAwardedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleWithRetry(ctx, sink.Handle, d.Body, log); err != nil {
				if ctx.Err() != nil {
					// unacked deliveries go back to the queue when the channel closes
					return ctx.Err()
				}
				log.WithError(err).Warn("award-consumer: rejecting bad event")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// ConsumeKafka reads the topic with a consumer group until ctx is
// cancelled.  Undecodable messages are committed and skipped.  Other
// handling failures are retried on the same message with backoff, so the
// offset is never committed past an unwritten event.
func ConsumeKafka(ctx context.Context, brokers []string, topic, groupID string, sink *AwardLog, log logrus.FieldLogger) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Warn("award-consumer: fetch failed")
			if !sleep(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}
		entry := log.WithField("offset", msg.Offset)
		if err := handleWithRetry(ctx, sink.Handle, msg.Value, entry); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			entry.WithError(err).Warn("award-consumer: skipping bad event")
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.WithError(err).Warn("award-consumer: commit failed")
		}
	}
}

// retryBackoff is the first wait between handling attempts; it doubles up
// to retryBackoffMax.
var (
	retryBackoff    = 500 * time.Millisecond
	retryBackoffMax = 30 * time.Second
)

// handleWithRetry calls handle until it succeeds, fails with ErrBadEvent,
// or ctx ends.  Only the ErrBadEvent and ctx cases return an error.
func handleWithRetry(ctx context.Context, handle func([]byte) error, body []byte, log logrus.FieldLogger) error {
	wait := retryBackoff
	for {
		err := handle(body)
		if err == nil || errors.Is(err, ErrBadEvent) {
			return err
		}
		log.WithError(err).Warnf("award-consumer: handle failed, retrying in %s", wait)
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
		if wait *= 2; wait > retryBackoffMax {
			wait = retryBackoffMax
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
