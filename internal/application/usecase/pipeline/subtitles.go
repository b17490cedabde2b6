package pipeline

import (
	"context"
	"io"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/events"
	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

var languageRegex = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z0-9]{2,8})?$`)

type SubtitleUseCase struct {
	videoRepo    video.Repository
	subtitleRepo video.SubtitleRepository
	store        service.ObjectStore
	publisher    events.Publisher
	release      releaser
	settings     Settings
	logger       logger.Logger
	now          func() time.Time
}

func NewSubtitleUseCase(
	videos video.Repository,
	subtitles video.SubtitleRepository,
	store service.ObjectStore,
	publisher events.Publisher,
	settings Settings,
	log logger.Logger,
) *SubtitleUseCase {
	return &SubtitleUseCase{
		videoRepo:    videos,
		subtitleRepo: subtitles,
		store:        store,
		publisher:    publisher,
		release:      releaser{store: store, logger: log},
		settings:     settings,
		logger:       log,
		now:          time.Now,
	}
}

type SubtitleInput struct {
	VideoKey uuid.UUID
	Language string
	Filename string
	Body     io.Reader
}

// Upload stores a WebVTT subtitle, converting SubRip input first. An existing
// subtitle of the same language is replaced.
func (uc *SubtitleUseCase) Upload(ctx context.Context, in SubtitleInput) (*video.Subtitle, error) {
	ctx, span := tracer.Start(ctx, "UploadSubtitle")
	defer span.End()

	lang := strings.TrimSpace(in.Language)
	if !languageRegex.MatchString(lang) {
		return nil, apperror.NewInvalidInput("invalid subtitle language "+in.Language, nil)
	}
	v, err := uc.videoRepo.FindByKey(ctx, in.VideoKey)
	if err != nil {
		return nil, err
	}
	l := uc.logger.With(zap.String("video_key", v.Key.String()), zap.String("language", lang))

	tmp, err := os.CreateTemp("", "subtitle-*.vtt")
	if err != nil {
		return nil, apperror.NewInternal("failed to create temp file", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	switch strings.ToLower(path.Ext(in.Filename)) {
	case ".srt":
		err = SRTToVTT(in.Body, tmp)
	case ".vtt", "":
		_, err = io.Copy(tmp, in.Body)
	default:
		return nil, apperror.NewInvalidInput("subtitles must be .srt or .vtt", nil)
	}
	if err != nil {
		return nil, apperror.NewInvalidInput("unreadable subtitle file", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, apperror.NewInternal("failed to rewind temp file", err)
	}

	sub := &video.Subtitle{
		ObjectKey: video.SubtitleKey(uc.now(), lang),
		Bucket:    uc.settings.Buckets.Subtitle,
		VideoKey:  v.Key,
		Language:  lang,
		Filename:  path.Base(in.Filename),
	}
	if err := uc.store.StreamUpload(ctx, sub.Bucket, sub.ObjectKey, tmp, "text/vtt", nil); err != nil {
		span.RecordError(err)
		return nil, err
	}

	existing, err := uc.subtitleRepo.ListByVideo(ctx, v.Key)
	if err != nil {
		return nil, err
	}
	for _, old := range existing {
		if old.Language != lang {
			continue
		}
		if err := uc.subtitleRepo.Delete(ctx, old.ID); err != nil {
			return nil, err
		}
		uc.release.object(ctx, old.Bucket, old.ObjectKey)
	}
	if err := uc.subtitleRepo.Save(ctx, sub); err != nil {
		uc.release.object(ctx, sub.Bucket, sub.ObjectKey)
		return nil, err
	}

	l.Info("Subtitle stored", zap.String("object_key", sub.ObjectKey))
	uc.publish(ctx, l, events.SubtitleChanged{VideoKey: v.Key})
	return sub, nil
}

// Delete removes a subtitle. Losing the last subtitle makes a public video non-public.
func (uc *SubtitleUseCase) Delete(ctx context.Context, id int64) error {
	ctx, span := tracer.Start(ctx, "DeleteSubtitle")
	defer span.End()

	sub, err := uc.subtitleRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	l := uc.logger.With(zap.String("video_key", sub.VideoKey.String()), zap.String("language", sub.Language))

	if err := uc.subtitleRepo.Delete(ctx, id); err != nil {
		return err
	}
	uc.release.object(ctx, sub.Bucket, sub.ObjectKey)

	remaining, err := uc.subtitleRepo.ListByVideo(ctx, sub.VideoKey)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		v, err := uc.videoRepo.FindByKey(ctx, sub.VideoKey)
		if err != nil {
			return err
		}
		if v.IsPublic {
			v.IsPublic = false
			if err := uc.videoRepo.Update(ctx, v); err != nil {
				return err
			}
			l.Info("Last subtitle removed, video no longer public")
			uc.publish(ctx, l, events.VideoBecamePrivate{VideoKey: v.Key})
		}
	}
	uc.publish(ctx, l, events.SubtitleChanged{VideoKey: sub.VideoKey})
	return nil
}

func (uc *SubtitleUseCase) publish(ctx context.Context, l logger.Logger, e events.Event) {
	if err := uc.publisher.Publish(ctx, e); err != nil {
		l.Warn("Event subscribers failed", zap.Error(err))
	}
}
