package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Publisher hands scan.awarded events to a broker.
type Publisher interface {
	PublishScanAwarded(ctx context.Context, ev ScanAwardedEvent) error
	Close() error
}

// Broker settings for NewPublisher.
type BrokerConfig struct {
	Kind         string // none, amqp or kafka
	RabbitURL    string
	KafkaBrokers []string
	KafkaTopic   string
}

// NewPublisher returns the publisher for cfg.Kind.  Unknown kinds are an
// error; "none" and "" publish nothing.
func NewPublisher(cfg BrokerConfig, log logrus.FieldLogger) (Publisher, error) {
	switch cfg.Kind {
	case "", "none":
		return NopPublisher{}, nil
	case "amqp", "rabbitmq":
		return NewAMQPPublisher(cfg.RabbitURL, log), nil
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log), nil
	}
	return nil, fmt.Errorf("unknown events broker %q", cfg.Kind)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishScanAwarded(context.Context, ScanAwardedEvent) error { return nil }
func (NopPublisher) Close() error                                              { return nil }

func prepare(ev *ScanAwardedEvent) ([]byte, error) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.AwardedAt == "" {
		ev.AwardedAt = time.Now().UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return body, nil
}

// AMQPPublisher publishes persistent messages to the durable scan.awarded
// queue through the default exchange.  A connection is dialled per event;
// awards are at most one per member and day, so the rate is low.
type AMQPPublisher struct {
	url string
	log logrus.FieldLogger
}

func NewAMQPPublisher(url string, log logrus.FieldLogger) *AMQPPublisher {
	return &AMQPPublisher{url: url, log: log}
}

func (p *AMQPPublisher) PublishScanAwarded(ctx context.Context, ev ScanAwardedEvent) error {
	body, err := prepare(&ev)
	if err != nil {
		return err
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		ScanAwardedQueue, // name
		true,             // durable
		false,            // autoDelete
		false,            // exclusive
		false,            // noWait
		nil,              // args
	); err != nil {
		p.log.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", ScanAwardedQueue, false, false, pub); err != nil {
		p.log.WithError(err).WithField("event_id", ev.EventID).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}

func (p *AMQPPublisher) Close() error { return nil }

// KafkaPublisher writes events keyed by member id, so one member's awards
// stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    logrus.FieldLogger
}

func NewKafkaPublisher(brokers []string, topic string, log logrus.FieldLogger) *KafkaPublisher {
	if topic == "" {
		topic = ScanAwardedQueue
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
		},
		log: log,
	}
}

// Topic is the Kafka topic events are written to.
func (p *KafkaPublisher) Topic() string { return p.writer.Topic }

func (p *KafkaPublisher) PublishScanAwarded(ctx context.Context, ev ScanAwardedEvent) error {
	body, err := prepare(&ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", ev.UserID)),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ScanAwardedQueue)},
			{Key: "event-id", Value: []byte(ev.EventID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.WithError(err).WithField("event_id", ev.EventID).Warn("kafka: publish failed")
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
