package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/events"
	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

const (
	TopicVideoTasks  = "video.tasks"
	TopicVideoEvents = "video.events"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventEnvelope is the wire form of a mirrored lifecycle event.
type EventEnvelope struct {
	Name    events.Name     `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

type KafkaProducerClient struct {
	TasksWriter  messageWriter
	EventsWriter messageWriter
	logger       logger.Logger
}

func NewKafkaProducerClient(cfg config.Config, log logger.Logger) (*KafkaProducerClient, error) {
	brokers := cfg.Kafka.Brokers
	if len(brokers) == 0 {
		return nil, fmt.Errorf("config Kafka brokers not found")
	}

	// tasks are keyed by video so one video's tasks stay on one partition
	tasksWriter := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        TopicVideoTasks,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}

	eventsWriter := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    TopicVideoEvents,
		Balancer: &kafka.LeastBytes{},
	}

	log.Info("Initialize Kafka Producers successfully.")

	return &KafkaProducerClient{
		TasksWriter:  tasksWriter,
		EventsWriter: eventsWriter,
		logger:       log,
	}, nil
}

// Enqueue implements service.TaskQueue.
func (c *KafkaProducerClient) Enqueue(ctx context.Context, tasks ...service.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(tasks))
	for _, t := range tasks {
		value, err := json.Marshal(t)
		if err != nil {
			return apperror.NewInternal("failed to marshal task", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(taskKey(t)), Value: value})
	}
	if err := c.TasksWriter.WriteMessages(ctx, msgs...); err != nil {
		return apperror.NewInternal("failed to enqueue tasks", err)
	}
	return nil
}

func taskKey(t service.Task) string {
	if t.VideoKey != uuid.Nil {
		return t.VideoKey.String()
	}
	return string(t.Type)
}

// MirrorEvent copies a lifecycle event to the events topic for external consumers.
func (c *KafkaProducerClient) MirrorEvent(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return apperror.NewInternal("failed to marshal event", err)
	}
	value, err := json.Marshal(EventEnvelope{Name: e.EventName(), Payload: payload})
	if err != nil {
		return apperror.NewInternal("failed to marshal event envelope", err)
	}
	if err := c.EventsWriter.WriteMessages(ctx, kafka.Message{Key: []byte(e.Key()), Value: value}); err != nil {
		c.logger.Warn("Failed to mirror event", zap.String("event", string(e.EventName())), zap.Error(err))
		return apperror.NewInternal("failed to mirror event", err)
	}
	return nil
}

func (c *KafkaProducerClient) Close() {
	if c.TasksWriter != nil {
		c.TasksWriter.Close()
	}
	if c.EventsWriter != nil {
		c.EventsWriter.Close()
	}
	c.logger.Info("Closed Kafka Producers")
}
