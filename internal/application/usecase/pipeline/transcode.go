package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/events"
	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

var tracer = otel.Tracer("pipeline_usecase")

const playlistFormat = "HLSv3"

// BuildTranscodeRequest lays out one output per preset under keys. Segmented
// outputs join the playlist; only the first output carries thumbnails.
func BuildTranscodeRequest(s Settings, inputKey string, keys video.Keys) service.TranscodeRequest {
	req := service.TranscodeRequest{
		InputKey:     inputKey,
		UserMetadata: map[string]string{"pipeline": s.PipelineName},
	}
	var hlsKeys []string
	for i, preset := range s.Presets {
		out := service.TranscodeOutput{Key: keys.Rendition(preset), PresetID: preset}
		if _, mp4 := s.PresetEncodings[preset]; !mp4 {
			out.SegmentDuration = s.SegmentDuration
			hlsKeys = append(hlsKeys, out.Key)
		}
		if i == 0 {
			out.ThumbnailPattern = keys.ThumbnailPattern()
		}
		req.Outputs = append(req.Outputs, out)
	}
	if len(hlsKeys) > 0 {
		req.Playlists = []service.TranscodePlaylist{{Format: playlistFormat, Name: keys.Playlist(), OutputKeys: hlsKeys}}
	}
	return req
}

type TranscodeUseCase struct {
	videoRepo      video.Repository
	collectionRepo collection.Repository
	fileRepo       video.FileRepository
	jobRepo        video.TranscodeJobRepository
	transcoder     service.Transcoder
	publisher      events.Publisher
	settings       Settings
	logger         logger.Logger
}

func NewTranscodeUseCase(
	videos video.Repository,
	collections collection.Repository,
	files video.FileRepository,
	jobs video.TranscodeJobRepository,
	transcoder service.Transcoder,
	publisher events.Publisher,
	settings Settings,
	log logger.Logger,
) *TranscodeUseCase {
	return &TranscodeUseCase{
		videoRepo:      videos,
		collectionRepo: collections,
		fileRepo:       files,
		jobRepo:        jobs,
		transcoder:     transcoder,
		publisher:      publisher,
		settings:       settings,
		logger:         log,
	}
}

type TranscodeInput struct {
	VideoKey    uuid.UUID
	Retranscode bool
}

// Execute submits a transcoder job. A video whose status does not allow the
// submission is skipped, which makes duplicate task deliveries harmless.
func (uc *TranscodeUseCase) Execute(ctx context.Context, in TranscodeInput) error {
	ctx, span := tracer.Start(ctx, "Transcode")
	defer span.End()
	span.SetAttributes(attribute.String("video_key", in.VideoKey.String()), attribute.Bool("retranscode", in.Retranscode))

	l := uc.logger.With(zap.String("video_key", in.VideoKey.String()), zap.Bool("retranscode", in.Retranscode))

	v, err := uc.videoRepo.FindByKey(ctx, in.VideoKey)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			l.Warn("Video not found, skipping transcode")
			return nil
		}
		return err
	}

	from := v.Status
	allowed := video.CanSubmitTranscode(from)
	if in.Retranscode {
		allowed = from == video.StatusRetranscodeScheduled
	}
	if !allowed {
		l.Info("Video status does not allow submission, skipping", zap.String("status", string(from)))
		return nil
	}

	req, err := uc.prepare(ctx, v, in.Retranscode)
	if err != nil {
		span.RecordError(err)
		return uc.fail(ctx, l, v, from, err)
	}

	jobID, err := uc.transcoder.Submit(ctx, req)
	if err != nil {
		span.RecordError(err)
		return uc.fail(ctx, l, v, from, err)
	}
	span.SetAttributes(attribute.String("job_id", jobID))

	if err := uc.jobRepo.Save(ctx, &video.TranscodeJob{
		ID:          jobID,
		VideoKey:    v.Key,
		State:       string(service.JobSubmitted),
		LastMessage: map[string]any{},
	}); err != nil {
		return apperror.NewInternal("failed to record transcode job", err)
	}

	to, err := video.Next(from, video.EventSubmitOK)
	if err != nil {
		return apperror.NewInternal("unexpected status transition", err)
	}
	ok, err := uc.videoRepo.UpdateStatus(ctx, v.Key, from, to)
	if err != nil {
		return err
	}
	if !ok {
		l.Warn("Video status changed during submission", zap.String("expected", string(from)))
		return nil
	}
	l.Info("Transcode job submitted", zap.String("job_id", jobID), zap.String("status", string(to)))
	return nil
}

func (uc *TranscodeUseCase) prepare(ctx context.Context, v *video.Video, retranscode bool) (service.TranscodeRequest, error) {
	c, err := uc.collectionRepo.FindByKey(ctx, v.CollectionKey)
	if err != nil {
		return service.TranscodeRequest{}, err
	}
	src, err := uc.fileRepo.FindByVideoAndEncoding(ctx, v.Key, video.EncodingOriginal)
	if err != nil {
		return service.TranscodeRequest{}, err
	}
	keys := video.KeysFor(c.OwnerID, v)
	if retranscode {
		keys = keys.Staging()
	}
	return BuildTranscodeRequest(uc.settings, src.ObjectKey, keys), nil
}

func (uc *TranscodeUseCase) fail(ctx context.Context, l logger.Logger, v *video.Video, from video.VideoStatus, cause error) error {
	to, err := video.Next(from, video.EventSubmitErr)
	if err != nil {
		return apperror.NewInternal("unexpected status transition", err)
	}
	ok, err := uc.videoRepo.UpdateStatus(ctx, v.Key, from, to)
	if err != nil {
		return err
	}
	l.Error("Transcode submission failed", cause, zap.String("status", string(to)))
	if !ok {
		return nil
	}
	if from == video.StatusRetranscodeScheduled {
		clearRetranscodeFlag(ctx, uc.videoRepo, l, v.Key)
	}
	if err := uc.publisher.Publish(ctx, events.VideoFailed{VideoKey: v.Key, Status: to}); err != nil {
		l.Warn("Failed to publish failure event", zap.Error(err))
	}
	if errors.Is(cause, apperror.ErrTranscoderSubmit) {
		return cause
	}
	return apperror.NewTranscoderSubmit("transcode submission failed", cause)
}

// clearRetranscodeFlag is best-effort: a stale flag only causes a skipped schedule.
func clearRetranscodeFlag(ctx context.Context, videos video.Repository, l logger.Logger, key uuid.UUID) {
	v, err := videos.FindByKey(ctx, key)
	if err != nil || !v.RetranscodeScheduled {
		return
	}
	v.RetranscodeScheduled = false
	if err := videos.Update(ctx, v); err != nil {
		l.Warn("Failed to clear retranscode flag", zap.Error(err))
	}
}
