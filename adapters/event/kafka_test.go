package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/internal/application/events"
	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestEnqueue_KeysByVideo(t *testing.T) {
	w := &recordingWriter{}
	c := &KafkaProducerClient{TasksWriter: w, logger: logger.NewNop()}
	key := uuid.New()

	err := c.Enqueue(context.Background(),
		service.Task{Type: service.TaskTranscode, VideoKey: key},
		service.Task{Type: service.TaskDeleteObject, Bucket: "b", ObjectKey: "k"},
	)
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, key.String(), string(w.msgs[0].Key))
	assert.Equal(t, string(service.TaskDeleteObject), string(w.msgs[1].Key))

	var decoded service.Task
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, service.TaskTranscode, decoded.Type)
	assert.Equal(t, key, decoded.VideoKey)
}

func TestEnqueue_WriterFailureIsInternal(t *testing.T) {
	c := &KafkaProducerClient{TasksWriter: &recordingWriter{err: errors.New("down")}, logger: logger.NewNop()}
	err := c.Enqueue(context.Background(), service.Task{Type: service.TaskNotify})
	assert.ErrorIs(t, err, apperror.ErrInternal)
}

func TestMirrorEvent_WrapsInEnvelope(t *testing.T) {
	w := &recordingWriter{}
	c := &KafkaProducerClient{EventsWriter: w, logger: logger.NewNop()}
	key := uuid.New()

	require.NoError(t, c.MirrorEvent(context.Background(), events.VideoCompleted{VideoKey: key, Retranscoded: true}))
	require.Len(t, w.msgs, 1)

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &env))
	assert.Equal(t, events.NameVideoCompleted, env.Name)
	assert.JSONEq(t, `{"video_key":"`+key.String()+`","retranscoded":true}`, string(env.Payload))
}

type scriptedReader struct {
	msgs      []kafka.Message
	fetched   []int64
	committed []kafka.Message
	cancel    context.CancelFunc
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	r.fetched = append(r.fetched, m.Offset)
	return m, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *scriptedReader) Close() error { return nil }

func (r *scriptedReader) committedOffsets() []int64 {
	var offsets []int64
	for _, m := range r.committed {
		offsets = append(offsets, m.Offset)
	}
	return offsets
}

func taskMessage(t *testing.T, offset int64, typ service.TaskType) kafka.Message {
	t.Helper()
	b, err := json.Marshal(service.Task{Type: typ})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func TestTaskConsumer_CommitsSettledTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &scriptedReader{cancel: cancel, msgs: []kafka.Message{
		{Offset: 1, Value: []byte("not json")},
		taskMessage(t, 2, service.TaskNotify),
		taskMessage(t, 3, service.TaskRetranscode),
	}}
	c := &TaskConsumer{reader: r, logger: logger.NewNop()}

	var handled []service.TaskType
	err := c.Run(ctx, func(_ context.Context, task service.Task) error {
		handled = append(handled, task.Type)
		if task.Type == service.TaskRetranscode {
			return apperror.NewInvalidInput("bad state", nil)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []service.TaskType{service.TaskNotify, service.TaskRetranscode}, handled)
	assert.Equal(t, []int64{1, 2, 3}, r.committedOffsets())
}

func TestTaskConsumer_RetriableFailureStopsWithoutCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &scriptedReader{cancel: cancel, msgs: []kafka.Message{
		taskMessage(t, 1, service.TaskNotify),
		taskMessage(t, 2, service.TaskStreamToStorage),
		taskMessage(t, 3, service.TaskNotify),
	}}
	c := &TaskConsumer{reader: r, logger: logger.NewNop()}

	err := c.Run(ctx, func(_ context.Context, task service.Task) error {
		if task.Type == service.TaskStreamToStorage {
			return apperror.NewStorage(true, "flaky", errors.New("503"))
		}
		return nil
	})

	require.ErrorIs(t, err, ErrTaskNotSettled)
	assert.ErrorIs(t, err, apperror.ErrRetriableStorage)
	assert.Equal(t, []int64{1}, r.committedOffsets())
	assert.Equal(t, []int64{1, 2}, r.fetched, "nothing past the unsettled task is consumed")
}

func TestTaskConsumer_InterruptedTaskIsNotCommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &scriptedReader{cancel: cancel, msgs: []kafka.Message{
		taskMessage(t, 7, service.TaskStreamToStorage),
	}}
	c := &TaskConsumer{reader: r, logger: logger.NewNop()}

	err := c.Run(ctx, func(ctx context.Context, _ service.Task) error {
		// shutdown arrives mid-upload
		cancel()
		return ctx.Err()
	})

	require.NoError(t, err)
	assert.Empty(t, r.committed)
}
