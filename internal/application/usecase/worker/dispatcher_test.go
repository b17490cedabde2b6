package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/application/usecase/pipeline"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/internal/testutil/memory"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
	"github.com/khoahotran/lecture-video/pkg/retry"
)

type recorder struct {
	calls []string
	errs  []error
}

func (r *recorder) next(call string) error {
	r.calls = append(r.calls, call)
	if len(r.errs) == 0 {
		return nil
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return err
}

func (r *recorder) Stream(context.Context, uuid.UUID, string) error { return r.next("stream") }
func (r *recorder) Execute(_ context.Context, in pipeline.TranscodeInput) error {
	if in.Retranscode {
		return r.next("retranscode")
	}
	return r.next("transcode")
}
func (r *recorder) Upload(context.Context, uuid.UUID) error { return r.next("upload") }
func (r *recorder) Remove(_ context.Context, _ uuid.UUID, id string) error {
	return r.next("remove:" + id)
}
func (r *recorder) SyncCaptions(context.Context, uuid.UUID) error { return r.next("captions") }
func (r *recorder) PublishVideo(context.Context, uuid.UUID) (map[string]int, error) {
	return nil, r.next("publish")
}
func (r *recorder) PublishChunk(_ context.Context, keys []uuid.UUID) error {
	return r.next("chunk")
}
func (r *recorder) Notify(_ context.Context, _ uuid.UUID, s video.VideoStatus) error {
	return r.next("notify:" + string(s))
}

func newDispatcher(r *recorder, store service.ObjectStore) *Dispatcher {
	h := Handlers{Streamer: r, Transcoder: r, Host: r, Courseware: r, Notifier: r, Store: store}
	return NewDispatcher(h, retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, Multiplier: 1}, logger.NewNop())
}

func TestHandle_Routes(t *testing.T) {
	r := &recorder{}
	d := newDispatcher(r, memory.NewObjectStore())
	ctx := context.Background()
	key := uuid.New()

	tasks := []service.Task{
		{Type: service.TaskStreamToStorage, VideoKey: key, SourceURL: "https://dropbox.test/a"},
		{Type: service.TaskTranscode, VideoKey: key},
		{Type: service.TaskRetranscode, VideoKey: key},
		{Type: service.TaskUploadExternalHost, VideoKey: key},
		{Type: service.TaskRemoveExternalHost, VideoKey: key, ExternalID: "yt1"},
		{Type: service.TaskSyncCaptions, VideoKey: key},
		{Type: service.TaskPublishCourseware, VideoKey: key},
		{Type: service.TaskPublishBatch, VideoKeys: []uuid.UUID{key}},
		{Type: service.TaskNotify, VideoKey: key, Status: string(video.StatusComplete)},
	}
	for _, task := range tasks {
		require.NoError(t, d.Handle(ctx, task), task.Type)
	}
	assert.Equal(t, []string{
		"stream", "transcode", "retranscode", "upload", "remove:yt1", "captions", "publish", "chunk", "notify:Complete",
	}, r.calls)
}

func TestHandle_DeleteObject(t *testing.T) {
	store := memory.NewObjectStore()
	store.Put("out", "transcoded/1/x/video_hd", []byte("x"))
	d := newDispatcher(&recorder{}, store)

	require.NoError(t, d.Handle(context.Background(), service.Task{Type: service.TaskDeleteObject, Bucket: "out", ObjectKey: "transcoded/1/x/video_hd"}))
	_, ok := store.Get("out", "transcoded/1/x/video_hd")
	assert.False(t, ok)
}

func TestHandle_UnknownTask(t *testing.T) {
	d := newDispatcher(&recorder{}, memory.NewObjectStore())
	assert.ErrorIs(t, d.Handle(context.Background(), service.Task{Type: "bogus"}), ErrUnknownTask)
}

func TestHandle_RetriesTransientThenSucceeds(t *testing.T) {
	r := &recorder{errs: []error{apperror.NewExternalHost(true, "503", nil)}}
	d := newDispatcher(r, memory.NewObjectStore())

	require.NoError(t, d.Handle(context.Background(), service.Task{Type: service.TaskUploadExternalHost, VideoKey: uuid.New()}))
	assert.Equal(t, []string{"upload", "upload"}, r.calls)
}

func TestHandle_ExhaustionIsPermanent(t *testing.T) {
	transient := apperror.NewStorage(true, "slow down", nil)
	r := &recorder{errs: []error{transient, transient, transient}}
	d := newDispatcher(r, memory.NewObjectStore())

	err := d.Handle(context.Background(), service.Task{Type: service.TaskStreamToStorage, VideoKey: uuid.New()})
	assert.Len(t, r.calls, 3)
	assert.ErrorIs(t, err, apperror.ErrPermanentStorage)
	assert.False(t, apperror.IsRetriable(err))
}

func TestHandle_PermanentErrorIsNotRetried(t *testing.T) {
	r := &recorder{errs: []error{apperror.NewInvalidInput("bad", nil)}}
	d := newDispatcher(r, memory.NewObjectStore())

	err := d.Handle(context.Background(), service.Task{Type: service.TaskTranscode, VideoKey: uuid.New()})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	assert.Len(t, r.calls, 1)
}

func TestHandle_PublishWithoutHLSIsDone(t *testing.T) {
	r := &recorder{errs: []error{apperror.NewNotFound("video file", "x")}}
	d := newDispatcher(r, memory.NewObjectStore())
	assert.NoError(t, d.Handle(context.Background(), service.Task{Type: service.TaskPublishCourseware, VideoKey: uuid.New()}))
}
