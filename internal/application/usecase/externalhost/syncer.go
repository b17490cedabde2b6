// Package externalhost keeps hosted copies of public videos in step with the
// local catalogue.
package externalhost

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/externalhost"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

var tracer = otel.Tracer("externalhost_usecase")

type Settings struct {
	SubtitleBucket string
	LockTTL        time.Duration
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{SubtitleBucket: cfg.Storage.SubtitleBucket, LockTTL: cfg.Schedule.LockTTL}
}

func lockKey(videoKey uuid.UUID) string {
	return "externalhost:" + videoKey.String()
}

type Syncer struct {
	videoRepo      video.Repository
	collectionRepo collection.Repository
	fileRepo       video.FileRepository
	subtitleRepo   video.SubtitleRepository
	hostRepo       externalhost.Repository
	host           service.ExternalHost
	store          service.ObjectStore
	locker         service.Locker
	settings       Settings
	logger         logger.Logger
}

func NewSyncer(
	videos video.Repository,
	collections collection.Repository,
	files video.FileRepository,
	subtitles video.SubtitleRepository,
	hosted externalhost.Repository,
	host service.ExternalHost,
	store service.ObjectStore,
	locker service.Locker,
	settings Settings,
	log logger.Logger,
) *Syncer {
	if settings.LockTTL <= 0 {
		settings.LockTTL = 30 * time.Minute
	}
	return &Syncer{
		videoRepo:      videos,
		collectionRepo: collections,
		fileRepo:       files,
		subtitleRepo:   subtitles,
		hostRepo:       hosted,
		host:           host,
		store:          store,
		locker:         locker,
		settings:       settings,
		logger:         log,
	}
}

// Upload copies a public, completed video to the external host when its
// collection's stream source allows it. A video already hosted only gets its
// captions refreshed.
func (s *Syncer) Upload(ctx context.Context, videoKey uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "Upload")
	defer span.End()
	span.SetAttributes(attribute.String("video_key", videoKey.String()))

	l := s.logger.With(zap.String("video_key", videoKey.String()))
	release, ok, err := s.locker.TryLock(ctx, lockKey(videoKey), s.settings.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		l.Info("Hosted copy is being synced elsewhere, skipping")
		return nil
	}
	defer release()

	v, err := s.videoRepo.FindByKey(ctx, videoKey)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			l.Warn("Video gone, upload skipped")
			return nil
		}
		return err
	}
	c, err := s.collectionRepo.FindByKey(ctx, v.CollectionKey)
	if err != nil {
		return err
	}
	if !v.IsPublic || v.Status != video.StatusComplete || !c.StreamSource.AllowsExternalHost() {
		l.Info("Video not eligible for external hosting",
			zap.Bool("is_public", v.IsPublic), zap.String("status", string(v.Status)), zap.String("stream_source", string(c.StreamSource)))
		return nil
	}

	existing, err := s.hostRepo.FindByVideo(ctx, v.Key)
	switch {
	case err == nil && existing.ExternalID != "":
		return s.syncCaptions(ctx, l, existing)
	case err != nil && !errors.Is(err, apperror.ErrNotFound):
		return err
	}

	original, err := s.fileRepo.FindByVideoAndEncoding(ctx, v.Key, video.EncodingOriginal)
	if err != nil {
		return err
	}
	up, err := s.upload(ctx, v, original)
	if err != nil {
		span.RecordError(err)
		l.Error("External host upload failed", err)
		return err
	}

	row := &externalhost.Video{VideoKey: v.Key, ExternalID: up.ExternalID, Status: up.Status}
	if existing != nil {
		err = s.hostRepo.Update(ctx, row)
	} else {
		err = s.hostRepo.Save(ctx, row)
	}
	if err != nil {
		// the hosted copy has no row to find it by
		if derr := s.host.DeleteVideo(ctx, up.ExternalID); derr != nil {
			l.Warn("Failed to remove orphaned hosted copy", zap.String("external_id", up.ExternalID), zap.Error(derr))
		}
		return err
	}
	l.Info("Uploaded to external host", zap.String("external_id", up.ExternalID))
	return s.syncCaptions(ctx, l, row)
}

func privacyFor(v *video.Video) externalhost.Privacy {
	if v.IsLoggedInOnly {
		return externalhost.PrivacyUnlisted
	}
	return externalhost.PrivacyPublic
}

// upload spools the original to a temp file, since the host needs the full
// length before the first chunk.
func (s *Syncer) upload(ctx context.Context, v *video.Video, original *video.File) (*service.HostedUpload, error) {
	src, err := s.store.Open(ctx, original.Bucket, original.ObjectKey)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "external-host-*."+video.Extension(original.ObjectKey))
	if err != nil {
		return nil, apperror.NewInternal("failed to create temp file", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, src); err != nil {
		return nil, apperror.NewStorage(true, "spool original for upload", err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, apperror.NewInternal("failed to flush temp file", err)
	}

	return s.host.UploadVideo(ctx, service.HostedVideo{
		Title:       v.Title,
		Description: v.Description,
		Privacy:     privacyFor(v),
		Path:        tmp.Name(),
	})
}

// Remove deletes the hosted copy of a video. externalID is used when the local
// row is already gone.
func (s *Syncer) Remove(ctx context.Context, videoKey uuid.UUID, externalID string) error {
	ctx, span := tracer.Start(ctx, "Remove")
	defer span.End()
	span.SetAttributes(attribute.String("video_key", videoKey.String()))

	l := s.logger.With(zap.String("video_key", videoKey.String()))
	release, ok, err := s.locker.TryLock(ctx, lockKey(videoKey), s.settings.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NewExternalHost(true, "hosted copy is locked", nil)
	}
	defer release()

	row, err := s.hostRepo.FindByVideo(ctx, videoKey)
	switch {
	case err == nil:
		if row.ExternalID != "" {
			externalID = row.ExternalID
		}
	case !errors.Is(err, apperror.ErrNotFound):
		return err
	}

	if externalID != "" {
		if err := s.host.DeleteVideo(ctx, externalID); err != nil {
			span.RecordError(err)
			return err
		}
	}
	if row != nil {
		if err := s.hostRepo.Delete(ctx, videoKey); err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return err
		}
	}
	l.Info("Removed hosted copy", zap.String("external_id", externalID))
	return nil
}

// SyncCaptions mirrors the video's subtitles onto its hosted copy.
func (s *Syncer) SyncCaptions(ctx context.Context, videoKey uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "SyncCaptions")
	defer span.End()

	l := s.logger.With(zap.String("video_key", videoKey.String()))
	row, err := s.hostRepo.FindByVideo(ctx, videoKey)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.syncCaptions(ctx, l, row)
}

func (s *Syncer) syncCaptions(ctx context.Context, l logger.Logger, row *externalhost.Video) error {
	if row.ExternalID == "" {
		return nil
	}
	subs, err := s.subtitleRepo.ListByVideo(ctx, row.VideoKey)
	if err != nil {
		return err
	}
	remote, err := s.host.ListCaptions(ctx, row.ExternalID)
	if err != nil {
		return err
	}

	local := make(map[string]bool, len(subs))
	for _, sub := range subs {
		local[sub.Language] = true
		if err := s.uploadCaption(ctx, row.ExternalID, sub); err != nil {
			return err
		}
	}
	for lang, captionID := range remote {
		if local[lang] {
			continue
		}
		if err := s.host.DeleteCaption(ctx, captionID); err != nil {
			l.Warn("Failed to delete stale caption", zap.String("language", lang), zap.Error(err))
		}
	}
	l.Info("Captions synced", zap.Int("captions", len(subs)))
	return nil
}

func (s *Syncer) uploadCaption(ctx context.Context, externalID string, sub *video.Subtitle) error {
	bucket := sub.Bucket
	if bucket == "" {
		bucket = s.settings.SubtitleBucket
	}
	body, err := s.store.Open(ctx, bucket, sub.ObjectKey)
	if err != nil {
		return err
	}
	defer body.Close()
	return s.host.UploadCaption(ctx, externalID, sub.Language, sub.Filename, body)
}
