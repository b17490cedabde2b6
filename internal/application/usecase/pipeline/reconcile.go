package pipeline

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/events"
	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

// ReconcileUseCase polls the transcoder for every in-flight video and moves
// it to its terminal status once the job settles.
type ReconcileUseCase struct {
	videoRepo      video.Repository
	collectionRepo collection.Repository
	jobRepo        video.TranscodeJobRepository
	transcoder     service.Transcoder
	materializer   *Materializer
	locker         service.Locker
	publisher      events.Publisher
	settings       Settings
	logger         logger.Logger
}

func NewReconcileUseCase(
	videos video.Repository,
	collections collection.Repository,
	jobs video.TranscodeJobRepository,
	transcoder service.Transcoder,
	materializer *Materializer,
	locker service.Locker,
	publisher events.Publisher,
	settings Settings,
	log logger.Logger,
) *ReconcileUseCase {
	return &ReconcileUseCase{
		videoRepo:      videos,
		collectionRepo: collections,
		jobRepo:        jobs,
		transcoder:     transcoder,
		materializer:   materializer,
		locker:         locker,
		publisher:      publisher,
		settings:       settings,
		logger:         log,
	}
}

// Execute reconciles every in-flight video. One video failing does not stop the sweep.
func (uc *ReconcileUseCase) Execute(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ReconcileTranscodes")
	defer span.End()

	vids, err := uc.videoRepo.ListByStatus(ctx, video.StatusTranscoding, video.StatusRetranscoding)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("in_flight", len(vids)))

	var errs []error
	for _, v := range vids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := uc.ReconcileVideo(ctx, v); err != nil {
			uc.logger.Error("Failed to reconcile video", err, zap.String("video_key", v.Key.String()))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (uc *ReconcileUseCase) ReconcileVideo(ctx context.Context, v *video.Video) error {
	l := uc.logger.With(zap.String("video_key", v.Key.String()))

	release, ok, err := uc.locker.TryLock(ctx, videoLockKey(v.Key), uc.settings.lockTTL())
	if err != nil {
		return err
	}
	if !ok {
		l.Info("Video locked by another worker, skipping")
		return nil
	}
	defer release()

	// re-read under the lock
	v, err = uc.videoRepo.FindByKey(ctx, v.Key)
	if err != nil {
		return err
	}
	if !v.Status.InFlight() {
		return nil
	}
	from := v.Status
	retranscode := from == video.StatusRetranscoding

	job, err := uc.jobRepo.LatestForVideo(ctx, v.Key)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			l.Error("In-flight video has no transcode job", err)
			return uc.transition(ctx, l, v, from, video.EventFatal, retranscode)
		}
		return err
	}

	st, err := uc.transcoder.ReadJob(ctx, job.ID)
	if err != nil {
		return err
	}
	job.State = string(st.State)
	job.LastMessage = jobMessage(st)
	if err := uc.jobRepo.Update(ctx, job); err != nil {
		return apperror.NewInternal("failed to record job state", err)
	}

	var ev video.Event
	switch st.State {
	case service.JobComplete:
		c, err := uc.collectionRepo.FindByKey(ctx, v.CollectionKey)
		if err != nil {
			return err
		}
		ev = video.EventJobComplete
		if err := uc.materializer.Materialize(ctx, v, c.OwnerID, st, retranscode, job.CreatedAt); err != nil {
			if !errors.Is(err, errMissingPlaylist) {
				return err
			}
			l.Error("Completed job is unusable", err, zap.String("job_id", job.ID))
			ev = video.EventJobInternalError
		}
	case service.JobError, service.JobCanceled:
		ev = video.JobErrorEvent(st.StatusDetail)
		if st.State == service.JobCanceled {
			l.Warn("Transcode job was canceled", zap.String("job_id", job.ID))
			ev = video.EventJobInternalError
		}
		if retranscode {
			if c, err := uc.collectionRepo.FindByKey(ctx, v.CollectionKey); err == nil {
				uc.materializer.DiscardStaging(ctx, v, c.OwnerID)
			}
		}
	default:
		return nil
	}
	return uc.transition(ctx, l, v, from, ev, retranscode)
}

func (uc *ReconcileUseCase) transition(ctx context.Context, l logger.Logger, v *video.Video, from video.VideoStatus, ev video.Event, retranscode bool) error {
	to, err := video.Next(from, ev)
	if err != nil {
		return apperror.NewInternal("unexpected status transition", err)
	}
	ok, err := uc.videoRepo.UpdateStatus(ctx, v.Key, from, to)
	if err != nil {
		return err
	}
	if !ok {
		l.Warn("Video status moved concurrently, dropping transition", zap.String("expected", string(from)))
		return nil
	}
	l.Info("Video transitioned", zap.String("from", string(from)), zap.String("to", string(to)))

	if retranscode {
		clearRetranscodeFlag(ctx, uc.videoRepo, l, v.Key)
	}

	var e events.Event = events.VideoFailed{VideoKey: v.Key, Status: to}
	if to == video.StatusComplete {
		e = events.VideoCompleted{VideoKey: v.Key, Retranscoded: retranscode}
	}
	if err := uc.publisher.Publish(ctx, e); err != nil {
		// the stored status is the checkpoint: undo it so the next sweep
		// repeats the transition and queues the follow-up tasks again
		if _, rerr := uc.videoRepo.UpdateStatus(context.WithoutCancel(ctx), v.Key, to, from); rerr != nil {
			l.Error("Failed to undo transition after follow-up failure", rerr)
			return errors.Join(err, rerr)
		}
		l.Warn("Follow-up tasks not queued, transition undone", zap.String("to", string(to)), zap.Error(err))
		return apperror.NewInternal("failed to queue follow-up tasks", err)
	}
	return nil
}

func jobMessage(st *service.JobStatus) map[string]any {
	msg := map[string]any{"state": string(st.State)}
	if st.StatusDetail != nil {
		msg["status_detail"] = *st.StatusDetail
	}
	outputs := make([]map[string]string, 0, len(st.Outputs))
	for _, o := range st.Outputs {
		outputs = append(outputs, map[string]string{"key": o.Key, "preset_id": o.PresetID, "status": o.Status})
	}
	msg["outputs"] = outputs
	return msg
}
