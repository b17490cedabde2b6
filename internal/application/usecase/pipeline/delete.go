package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/externalhost"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

// DeleteUseCase removes videos and collections together with every object they reference.
type DeleteUseCase struct {
	videoRepo      video.Repository
	collectionRepo collection.Repository
	fileRepo       video.FileRepository
	thumbnailRepo  video.ThumbnailRepository
	subtitleRepo   video.SubtitleRepository
	hostRepo       externalhost.Repository
	queue          service.TaskQueue
	release        releaser
	settings       Settings
	logger         logger.Logger
}

func NewDeleteUseCase(
	videos video.Repository,
	collections collection.Repository,
	files video.FileRepository,
	thumbnails video.ThumbnailRepository,
	subtitles video.SubtitleRepository,
	hosted externalhost.Repository,
	store service.ObjectStore,
	queue service.TaskQueue,
	settings Settings,
	log logger.Logger,
) *DeleteUseCase {
	return &DeleteUseCase{
		videoRepo:      videos,
		collectionRepo: collections,
		fileRepo:       files,
		thumbnailRepo:  thumbnails,
		subtitleRepo:   subtitles,
		hostRepo:       hosted,
		queue:          queue,
		release:        releaser{store: store, logger: log},
		settings:       settings,
		logger:         log,
	}
}

// DeleteVideo drops the video row (asset rows cascade) and then releases the
// objects. Object failures are logged; the row is already gone.
func (uc *DeleteUseCase) DeleteVideo(ctx context.Context, key uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "DeleteVideo")
	defer span.End()
	l := uc.logger.With(zap.String("video_key", key.String()))

	v, err := uc.videoRepo.FindByKey(ctx, key)
	if err != nil {
		return err
	}
	c, err := uc.collectionRepo.FindByKey(ctx, v.CollectionKey)
	if err != nil {
		return err
	}
	files, err := uc.fileRepo.ListByVideo(ctx, key)
	if err != nil {
		return err
	}
	thumbs, err := uc.thumbnailRepo.ListByVideo(ctx, key)
	if err != nil {
		return err
	}
	subs, err := uc.subtitleRepo.ListByVideo(ctx, key)
	if err != nil {
		return err
	}
	hosted, err := uc.hostRepo.FindByVideo(ctx, key)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}

	if err := uc.videoRepo.Delete(ctx, key); err != nil {
		span.RecordError(err)
		return err
	}

	keys := video.KeysFor(c.OwnerID, v)
	for _, f := range files {
		if f.Encoding == video.EncodingHLS {
			uc.release.prefix(ctx, f.Bucket, keys.TranscodedDir())
			continue
		}
		uc.release.object(ctx, f.Bucket, f.ObjectKey)
	}
	for _, t := range thumbs {
		uc.release.object(ctx, t.Bucket, t.ObjectKey)
	}
	for _, s := range subs {
		uc.release.object(ctx, s.Bucket, s.ObjectKey)
	}
	if hosted != nil && hosted.ExternalID != "" {
		if err := uc.queue.Enqueue(ctx, service.Task{Type: service.TaskRemoveExternalHost, VideoKey: key, ExternalID: hosted.ExternalID}); err != nil {
			l.Warn("Failed to queue hosted copy removal", zap.String("external_id", hosted.ExternalID), zap.Error(err))
		}
	}
	l.Info("Video deleted", zap.Int("files", len(files)), zap.Int("thumbnails", len(thumbs)), zap.Int("subtitles", len(subs)))
	return nil
}

func (uc *DeleteUseCase) DeleteCollection(ctx context.Context, key uuid.UUID) error {
	vids, err := uc.videoRepo.ListByCollection(ctx, key)
	if err != nil {
		return err
	}
	for _, v := range vids {
		if err := uc.DeleteVideo(ctx, v.Key); err != nil {
			return err
		}
	}
	if err := uc.collectionRepo.Delete(ctx, key); err != nil {
		return err
	}
	uc.logger.Info("Collection deleted", zap.String("collection_key", key.String()), zap.Int("videos", len(vids)))
	return nil
}
