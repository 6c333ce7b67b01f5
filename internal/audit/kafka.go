package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig configures the Kafka emitter.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmitter publishes events as JSON keyed by target, so events for one
// record land on one partition in order.
type KafkaEmitter struct {
	mu     sync.RWMutex
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaEmitter creates a synchronous Kafka writer for cfg.Topic.
func NewKafkaEmitter(cfg KafkaConfig, logger *zap.Logger) *KafkaEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: timeout,
	}
	if cfg.ClientID != "" {
		writer.Transport = &kafka.Transport{ClientID: cfg.ClientID}
	}
	return newKafkaEmitter(writer, cfg.Topic, logger)
}

// NewKafkaEmitterFromConfig builds a KafkaEmitter from a comma-separated
// broker list. It returns nil, nil when no brokers are configured.
func NewKafkaEmitterFromConfig(brokers, topic, clientID string, logger *zap.Logger) (*KafkaEmitter, error) {
	var list []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			list = append(list, b)
		}
	}
	if len(list) == 0 {
		return nil, nil
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	return NewKafkaEmitter(KafkaConfig{Brokers: list, Topic: topic, ClientID: clientID}, logger), nil
}

func newKafkaEmitter(w messageWriter, topic string, logger *zap.Logger) *KafkaEmitter {
	return &KafkaEmitter{
		writer: w,
		topic:  topic,
		logger: logger.With(zap.String("component", "audit-kafka")),
	}
}

// Emit publishes one event.
func (e *KafkaEmitter) Emit(ctx context.Context, event Event) error {
	e.mu.RLock()
	writer := e.writer
	e.mu.RUnlock()
	if writer == nil {
		return errors.New("kafka writer is closed")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize audit event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.TargetType + ":" + event.TargetID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "action", Value: []byte(event.Action)},
		},
		Time: event.CreatedAt,
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish audit event to Kafka: %w", err)
	}
	e.logger.Debug("audit event published",
		zap.String("event_id", event.EventID.String()),
		zap.String("topic", e.topic),
	)
	return nil
}

// Close closes the writer. Safe to call more than once.
func (e *KafkaEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer == nil {
		return nil
	}
	err := e.writer.Close()
	e.writer = nil
	return err
}
