package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type RetranscodeUseCase struct {
	videoRepo      video.Repository
	collectionRepo collection.Repository
	queue          service.TaskQueue
	locker         service.Locker
	settings       Settings
	logger         logger.Logger
	now            func() time.Time
}

func NewRetranscodeUseCase(
	videos video.Repository,
	collections collection.Repository,
	queue service.TaskQueue,
	locker service.Locker,
	settings Settings,
	log logger.Logger,
) *RetranscodeUseCase {
	return &RetranscodeUseCase{
		videoRepo:      videos,
		collectionRepo: collections,
		queue:          queue,
		locker:         locker,
		settings:       settings,
		logger:         log,
		now:            time.Now,
	}
}

func retranscodable(s video.VideoStatus) bool {
	_, err := video.Next(s, video.EventRetranscodeRequested)
	return err == nil
}

// RequestVideo flags one video; the schedule loop picks it up.
func (uc *RetranscodeUseCase) RequestVideo(ctx context.Context, key uuid.UUID) error {
	v, err := uc.videoRepo.FindByKey(ctx, key)
	if err != nil {
		return err
	}
	if !retranscodable(v.Status) {
		return apperror.NewInvalidInput("video cannot be retranscoded from status "+string(v.Status), nil)
	}
	if v.RetranscodeScheduled {
		return nil
	}
	v.RetranscodeScheduled = true
	return uc.videoRepo.Update(ctx, v)
}

// RequestCollection flags a collection; every eligible video is flagged on the next pass.
func (uc *RetranscodeUseCase) RequestCollection(ctx context.Context, key uuid.UUID) error {
	c, err := uc.collectionRepo.FindByKey(ctx, key)
	if err != nil {
		return err
	}
	if c.RetranscodeScheduled {
		return nil
	}
	c.RetranscodeScheduled = true
	return uc.collectionRepo.Update(ctx, c)
}

// Schedule moves flagged videos to RETRANSCODE_SCHEDULED and queues their
// retranscode. A video that already sits in RETRANSCODE_SCHEDULED longer than
// the lock TTL is queued again, since its task may have been lost.
func (uc *RetranscodeUseCase) Schedule(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ScheduleRetranscodes")
	defer span.End()

	if err := uc.propagateCollections(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	vids, err := uc.videoRepo.ListRetranscodeScheduled(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, v := range vids {
		if err := uc.scheduleVideo(ctx, v); err != nil {
			uc.logger.Error("Failed to schedule retranscode", err, zap.String("video_key", v.Key.String()))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (uc *RetranscodeUseCase) propagateCollections(ctx context.Context) error {
	cols, err := uc.collectionRepo.ListRetranscodeScheduled(ctx)
	if err != nil {
		return err
	}
	for _, c := range cols {
		vids, err := uc.videoRepo.ListByCollection(ctx, c.Key)
		if err != nil {
			return err
		}
		flagged := 0
		for _, v := range vids {
			if v.RetranscodeScheduled || !retranscodable(v.Status) {
				continue
			}
			v.RetranscodeScheduled = true
			if err := uc.videoRepo.Update(ctx, v); err != nil {
				return err
			}
			flagged++
		}
		c.RetranscodeScheduled = false
		if err := uc.collectionRepo.Update(ctx, c); err != nil {
			return err
		}
		uc.logger.Info("Collection retranscode propagated", zap.String("collection_key", c.Key.String()), zap.Int("videos", flagged))
	}
	return nil
}

func (uc *RetranscodeUseCase) scheduleVideo(ctx context.Context, v *video.Video) error {
	l := uc.logger.With(zap.String("video_key", v.Key.String()))

	release, ok, err := uc.locker.TryLock(ctx, videoLockKey(v.Key), uc.settings.lockTTL())
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer release()

	task := service.Task{Type: service.TaskRetranscode, VideoKey: v.Key}
	switch {
	case retranscodable(v.Status):
		to, _ := video.Next(v.Status, video.EventRetranscodeRequested)
		ok, err := uc.videoRepo.UpdateStatus(ctx, v.Key, v.Status, to)
		if err != nil || !ok {
			return err
		}
		l.Info("Retranscode scheduled", zap.String("from", string(v.Status)))
		return uc.queue.Enqueue(ctx, task)
	case v.Status == video.StatusRetranscodeScheduled && uc.now().Sub(v.UpdatedAt) > uc.settings.lockTTL():
		l.Warn("Retranscode still pending, queueing again")
		return uc.queue.Enqueue(ctx, task)
	}
	return nil
}
