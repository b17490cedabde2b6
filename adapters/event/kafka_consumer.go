package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

// ErrTaskNotSettled stops the consumer when a task failed transiently. Its
// offset stays uncommitted, so the group redelivers it after a restart.
var ErrTaskNotSettled = errors.New("task left uncommitted for redelivery")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type TaskHandler func(ctx context.Context, t service.Task) error

// TaskConsumer reads the tasks topic one message at a time.
type TaskConsumer struct {
	reader messageReader
	logger logger.Logger
}

func NewTaskConsumer(cfg config.Config, log logger.Logger) *TaskConsumer {
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "video-task-worker"
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    TopicVideoTasks,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &TaskConsumer{reader: reader, logger: log}
}

// Run blocks until ctx is done. Offsets are committed only once a task is
// settled: succeeded, failed permanently or undecodable. A retriable failure
// or a cancelled handler leaves the offset uncommitted; the former also stops
// the loop with ErrTaskNotSettled since later commits would cover it.
func (c *TaskConsumer) Run(ctx context.Context, handle TaskHandler) error {
	c.logger.Info("Worker listening on topic", zap.String("topic", TopicVideoTasks))
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to fetch message from Kafka", err)
			continue
		}

		var task service.Task
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			c.logger.Error("Failed to unmarshal task, skipping", err, zap.String("key", string(msg.Key)))
			c.commitMessage(ctx, msg)
			continue
		}

		l := c.logger.With(zap.String("task_type", string(task.Type)), zap.String("video_key", task.VideoKey.String()))
		l.Info("Processing task", zap.Int64("offset", msg.Offset))

		if err := handle(ctx, task); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				l.Warn("Task interrupted, leaving uncommitted")
				return nil
			}
			if apperror.IsRetriable(err) {
				l.Error("Task failed with retriable error, leaving uncommitted", err)
				return fmt.Errorf("%w: offset %d: %w", ErrTaskNotSettled, msg.Offset, err)
			}
			l.Error("Task failed", err)
		}

		c.commitMessage(ctx, msg)
	}
}

// commitMessage failures are logged only: a later commit covers the offset,
// otherwise the settled task is delivered again.
func (c *TaskConsumer) commitMessage(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
		c.logger.Error("Failed to commit message", err, zap.Int64("offset", msg.Offset))
	}
}

func (c *TaskConsumer) Close() error {
	return c.reader.Close()
}
