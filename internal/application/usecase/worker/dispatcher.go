// Package worker routes queued tasks to the use case that executes them.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/application/usecase/pipeline"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
	"github.com/khoahotran/lecture-video/pkg/retry"
)

var tracer = otel.Tracer("worker_usecase")

var ErrUnknownTask = errors.New("unknown task type")

type (
	Streamer interface {
		Stream(ctx context.Context, videoKey uuid.UUID, sourceURL string) error
	}
	Transcoder interface {
		Execute(ctx context.Context, in pipeline.TranscodeInput) error
	}
	HostSyncer interface {
		Upload(ctx context.Context, videoKey uuid.UUID) error
		Remove(ctx context.Context, videoKey uuid.UUID, externalID string) error
		SyncCaptions(ctx context.Context, videoKey uuid.UUID) error
	}
	CoursewarePublisher interface {
		PublishVideo(ctx context.Context, videoKey uuid.UUID) (map[string]int, error)
		PublishChunk(ctx context.Context, keys []uuid.UUID) error
	}
	Notifier interface {
		Notify(ctx context.Context, videoKey uuid.UUID, status video.VideoStatus) error
	}
)

type Handlers struct {
	Streamer   Streamer
	Transcoder Transcoder
	Host       HostSyncer
	Courseware CoursewarePublisher
	Notifier   Notifier
	Store      service.ObjectStore
}

type Dispatcher struct {
	h      Handlers
	retry  retry.Config
	logger logger.Logger
}

func NewDispatcher(h Handlers, cfg retry.Config, log logger.Logger) *Dispatcher {
	return &Dispatcher{h: h, retry: cfg, logger: log}
}

// Handle runs one task. Retriable failures are retried in place; once the
// budget is spent the error is promoted to its permanent kind so the task is
// not redelivered forever.
func (d *Dispatcher) Handle(ctx context.Context, t service.Task) error {
	ctx, span := tracer.Start(ctx, "Handle")
	defer span.End()
	span.SetAttributes(attribute.String("task_type", string(t.Type)), attribute.String("video_key", t.VideoKey.String()))

	run, err := d.route(t)
	if err != nil {
		return err
	}
	err = retry.Do(ctx, d.retry, apperror.IsRetriable, run)
	if err == nil {
		return nil
	}
	span.RecordError(err)
	if errors.Is(err, retry.ErrExhausted) {
		d.logger.Warn("Retry budget spent", zap.String("task_type", string(t.Type)), zap.String("video_key", t.VideoKey.String()), zap.Error(err))
		return promote(err)
	}
	return err
}

func (d *Dispatcher) route(t service.Task) (func(context.Context) error, error) {
	switch t.Type {
	case service.TaskStreamToStorage:
		return func(ctx context.Context) error { return d.h.Streamer.Stream(ctx, t.VideoKey, t.SourceURL) }, nil
	case service.TaskTranscode:
		return func(ctx context.Context) error {
			return d.h.Transcoder.Execute(ctx, pipeline.TranscodeInput{VideoKey: t.VideoKey})
		}, nil
	case service.TaskRetranscode:
		return func(ctx context.Context) error {
			return d.h.Transcoder.Execute(ctx, pipeline.TranscodeInput{VideoKey: t.VideoKey, Retranscode: true})
		}, nil
	case service.TaskUploadExternalHost:
		return func(ctx context.Context) error { return d.h.Host.Upload(ctx, t.VideoKey) }, nil
	case service.TaskRemoveExternalHost:
		return func(ctx context.Context) error { return d.h.Host.Remove(ctx, t.VideoKey, t.ExternalID) }, nil
	case service.TaskSyncCaptions:
		return func(ctx context.Context) error { return d.h.Host.SyncCaptions(ctx, t.VideoKey) }, nil
	case service.TaskPublishCourseware:
		return func(ctx context.Context) error {
			_, err := d.h.Courseware.PublishVideo(ctx, t.VideoKey)
			if errors.Is(err, apperror.ErrNotFound) {
				d.logger.Warn("Nothing to publish", zap.String("video_key", t.VideoKey.String()))
				return nil
			}
			return err
		}, nil
	case service.TaskPublishBatch:
		return func(ctx context.Context) error { return d.h.Courseware.PublishChunk(ctx, t.VideoKeys) }, nil
	case service.TaskNotify:
		return func(ctx context.Context) error {
			return d.h.Notifier.Notify(ctx, t.VideoKey, video.VideoStatus(t.Status))
		}, nil
	case service.TaskDeleteObject:
		return func(ctx context.Context) error { return d.h.Store.Delete(ctx, t.Bucket, t.ObjectKey) }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTask, t.Type)
}

// promote maps an exhausted transient error to its permanent counterpart. The
// cause is kept as text only so the result no longer classifies as retriable.
func promote(err error) error {
	switch {
	case errors.Is(err, apperror.ErrRetriableStorage):
		return apperror.NewAppError(apperror.ErrPermanentStorage, "storage retries exhausted", err.Error(), nil)
	case errors.Is(err, apperror.ErrExternalHostTransient):
		return apperror.NewAppError(apperror.ErrExternalHostPermanent, "external host retries exhausted", err.Error(), nil)
	}
	return err
}
