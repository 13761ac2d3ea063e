package kafka

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DeadLetter is what lands on a dead letter topic: the original message
// plus why it was given up on.
type DeadLetter struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int    `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`   // base64
	OriginalValue     string `json:"original_value"` // base64
	Error             string `json:"error"`
	FailedAt          string `json:"failed_at"`
	EventType         string `json:"event_type,omitempty"`
	EventID           string `json:"event_id,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DLQPublisher writes synchronously, so a caller can commit the original
// offset only after the dead letter is stored.
type DLQPublisher struct {
	w     messageWriter
	topic string
	log   *zap.Logger
	now   func() time.Time
}

func NewDLQPublisher(brokers []string, topic string, log *zap.Logger) *DLQPublisher {
	return newDLQPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, topic, log)
}

func newDLQPublisher(w messageWriter, topic string, log *zap.Logger) *DLQPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &DLQPublisher{w: w, topic: topic, log: log, now: time.Now}
}

func (p *DLQPublisher) Publish(ctx context.Context, m kafka.Message, cause error, eventType, eventID string) error {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	value, err := json.Marshal(DeadLetter{
		OriginalTopic:     m.Topic,
		OriginalPartition: m.Partition,
		OriginalOffset:    m.Offset,
		OriginalKey:       base64.StdEncoding.EncodeToString(m.Key),
		OriginalValue:     base64.StdEncoding.EncodeToString(m.Value),
		Error:             reason,
		FailedAt:          p.now().UTC().Format(time.RFC3339),
		EventType:         eventType,
		EventID:           eventID,
	})
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{Key: m.Key, Value: value}); err != nil {
		p.log.Error("dead letter write failed",
			zap.String("dlq_topic", p.topic),
			zap.Int64("original_offset", m.Offset),
			zap.Error(err))
		return err
	}
	p.log.Warn("message sent to dead letter topic",
		zap.String("dlq_topic", p.topic),
		zap.String("original_topic", m.Topic),
		zap.Int("original_partition", m.Partition),
		zap.Int64("original_offset", m.Offset),
		zap.String("error", reason))
	return nil
}

func (p *DLQPublisher) Close() error { return p.w.Close() }
