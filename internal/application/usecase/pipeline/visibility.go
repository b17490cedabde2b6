package pipeline

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/events"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

// VisibilityUseCase owns the viewer-facing flags of videos and collections.
type VisibilityUseCase struct {
	videoRepo      video.Repository
	collectionRepo collection.Repository
	subtitleRepo   video.SubtitleRepository
	publisher      events.Publisher
	logger         logger.Logger
}

func NewVisibilityUseCase(
	videos video.Repository,
	collections collection.Repository,
	subtitles video.SubtitleRepository,
	publisher events.Publisher,
	log logger.Logger,
) *VisibilityUseCase {
	return &VisibilityUseCase{
		videoRepo:      videos,
		collectionRepo: collections,
		subtitleRepo:   subtitles,
		publisher:      publisher,
		logger:         log,
	}
}

type VisibilityInput struct {
	VideoKey       uuid.UUID
	IsPublic       bool     `json:"is_public"`
	IsPrivate      bool     `json:"is_private"`
	IsLoggedInOnly bool     `json:"is_logged_in_only"`
	ViewLists      []string `json:"view_lists"`
}

// SetVisibility updates the access flags. A public video needs at least one subtitle.
func (uc *VisibilityUseCase) SetVisibility(ctx context.Context, in VisibilityInput) (*video.Video, error) {
	ctx, span := tracer.Start(ctx, "SetVisibility")
	defer span.End()

	if in.IsPublic && in.IsPrivate {
		return nil, apperror.NewInvalidInput(video.ErrPublicAndPrivate.Error(), video.ErrPublicAndPrivate)
	}
	v, err := uc.videoRepo.FindByKey(ctx, in.VideoKey)
	if err != nil {
		return nil, err
	}
	wasPublic := v.IsPublic

	if in.IsPublic && !wasPublic {
		subs, err := uc.subtitleRepo.ListByVideo(ctx, v.Key)
		if err != nil {
			return nil, err
		}
		if len(subs) == 0 {
			return nil, apperror.NewInvalidInput("a public video needs at least one subtitle", nil)
		}
	}

	v.IsPublic = in.IsPublic
	v.IsPrivate = in.IsPrivate
	v.IsLoggedInOnly = in.IsLoggedInOnly
	if in.ViewLists != nil {
		v.ViewLists = collection.Dedupe(in.ViewLists)
	}
	if err := uc.videoRepo.Update(ctx, v); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var e events.Event
	switch {
	case v.IsPublic && !wasPublic:
		e = events.VideoBecamePublic{VideoKey: v.Key}
	case !v.IsPublic && wasPublic:
		e = events.VideoBecamePrivate{VideoKey: v.Key}
	}
	if e != nil {
		if err := uc.publisher.Publish(ctx, e); err != nil {
			uc.logger.Warn("Event subscribers failed", zap.String("video_key", v.Key.String()), zap.Error(err))
		}
	}
	return v, nil
}

// SetStreamSource switches where a collection's videos are streamed from.
func (uc *VisibilityUseCase) SetStreamSource(ctx context.Context, collectionKey uuid.UUID, src collection.StreamSource) error {
	if !src.Valid() {
		return apperror.NewInvalidInput("unknown stream source "+string(src), nil)
	}
	c, err := uc.collectionRepo.FindByKey(ctx, collectionKey)
	if err != nil {
		return err
	}
	from := c.StreamSource
	if from == src {
		return nil
	}
	c.StreamSource = src
	if err := uc.collectionRepo.Update(ctx, c); err != nil {
		return err
	}
	if err := uc.publisher.Publish(ctx, events.CollectionStreamSourceChanged{CollectionKey: c.Key, From: from, To: src}); err != nil {
		uc.logger.Warn("Event subscribers failed", zap.String("collection_key", c.Key.String()), zap.Error(err))
	}
	return nil
}
