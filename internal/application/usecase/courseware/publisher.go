// Package courseware publishes HLS renditions to courseware endpoints and keeps
// local video keys aligned with the keys those endpoints assigned.
package courseware

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/courseware"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

var tracer = otel.Tracer("courseware_usecase")

const (
	profileHLS     = "hls"
	statusComplete = "file_complete"
	refreshMargin  = 5 * time.Minute
)

type Settings struct {
	SignedURLTTL time.Duration
	BatchChunk   int
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{SignedURLTTL: cfg.CDN.SignedURLTTL, BatchChunk: cfg.Edx.BatchChunk}
}

type PublishUseCase struct {
	videoRepo      video.Repository
	collectionRepo collection.Repository
	fileRepo       video.FileRepository
	endpointRepo   courseware.Repository
	client         service.CoursewareClient
	signer         service.CDNSigner
	queue          service.TaskQueue
	settings       Settings
	logger         logger.Logger
	now            func() time.Time
}

func NewPublishUseCase(
	videos video.Repository,
	collections collection.Repository,
	files video.FileRepository,
	endpoints courseware.Repository,
	client service.CoursewareClient,
	signer service.CDNSigner,
	queue service.TaskQueue,
	settings Settings,
	log logger.Logger,
) *PublishUseCase {
	return &PublishUseCase{
		videoRepo:      videos,
		collectionRepo: collections,
		fileRepo:       files,
		endpointRepo:   endpoints,
		client:         client,
		signer:         signer,
		queue:          queue,
		settings:       settings,
		logger:         log,
		now:            time.Now,
	}
}

// PublishVideo publishes the HLS file of a video.
func (uc *PublishUseCase) PublishVideo(ctx context.Context, videoKey uuid.UUID) (map[string]int, error) {
	f, err := uc.fileRepo.FindByVideoAndEncoding(ctx, videoKey, video.EncodingHLS)
	if err != nil {
		return nil, err
	}
	return uc.Publish(ctx, f.ID)
}

// Publish posts one HLS file to every endpoint of its collection and returns
// the status code each endpoint answered, 0 when it could not be reached.
// Endpoint failures never abort the others.
func (uc *PublishUseCase) Publish(ctx context.Context, fileID int64) (map[string]int, error) {
	ctx, span := tracer.Start(ctx, "Publish")
	defer span.End()
	span.SetAttributes(attribute.Int64("file_id", fileID))

	f, err := uc.fileRepo.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if f.Encoding != video.EncodingHLS {
		return nil, apperror.NewInvalidInput("only HLS files are published", nil)
	}
	v, err := uc.videoRepo.FindByKey(ctx, f.VideoKey)
	if err != nil {
		return nil, err
	}
	c, err := uc.collectionRepo.FindByKey(ctx, v.CollectionKey)
	if err != nil {
		return nil, err
	}
	l := uc.logger.With(zap.String("video_key", v.Key.String()), zap.Int64("file_id", f.ID))

	results := make(map[string]int)
	if c.EdxCourseID == "" {
		l.Info("Collection has no course id, nothing to publish")
		return results, nil
	}
	endpoints, err := uc.endpointRepo.ListForCollection(ctx, c.Key)
	if err != nil {
		return nil, err
	}

	url, err := uc.signer.SignedURL(f.ObjectKey, uc.now().Add(uc.settings.SignedURLTTL))
	if err != nil {
		return nil, apperror.NewInternal("failed to sign playlist url", err)
	}
	payload := service.CoursewareVideo{
		ClientVideoID: v.Title,
		EdxVideoID:    uuid.NewString(),
		EncodedVideos: []service.EncodedVideo{{URL: url, Profile: profileHLS}},
		Courses:       []map[string]any{{c.EdxCourseID: nil}},
		Status:        statusComplete,
	}

	for _, ep := range endpoints {
		results[ep.Name] = uc.post(ctx, l, ep, payload)
	}
	l.Info("Published to courseware", zap.Any("results", results))
	return results, nil
}

func (uc *PublishUseCase) post(ctx context.Context, l logger.Logger, ep *courseware.Endpoint, payload service.CoursewareVideo) int {
	l = l.With(zap.String("endpoint", ep.Name))
	if ep.NeedsRefresh(uc.now(), refreshMargin) {
		if err := uc.refresh(ctx, ep); err != nil {
			l.Warn("Token refresh failed, posting with stored token", zap.Error(err))
		}
	}
	code, err := uc.client.PostVideo(ctx, ep, payload)
	if err != nil {
		l.Error("Courseware post failed", err)
		return 0
	}
	if code != http.StatusUnauthorized {
		return code
	}

	if err := uc.refresh(ctx, ep); err != nil {
		l.Error("Courseware rejected credentials", err)
		return code
	}
	code, err = uc.client.PostVideo(ctx, ep, payload)
	if err != nil {
		l.Error("Courseware post failed after refresh", err)
		return 0
	}
	return code
}

func (uc *PublishUseCase) refresh(ctx context.Context, ep *courseware.Endpoint) error {
	if err := uc.client.RefreshToken(ctx, ep); err != nil {
		return err
	}
	return uc.endpointRepo.UpdateCredentials(ctx, ep)
}

// BatchPublish splits keys into chunks and queues one publish task per chunk.
func (uc *PublishUseCase) BatchPublish(ctx context.Context, keys []uuid.UUID) error {
	size := uc.settings.BatchChunk
	if size <= 0 {
		size = 50
	}
	var tasks []service.Task
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		tasks = append(tasks, service.Task{Type: service.TaskPublishBatch, VideoKeys: keys[start:end]})
	}
	if len(tasks) == 0 {
		return nil
	}
	return uc.queue.Enqueue(ctx, tasks...)
}

// PublishChunk publishes every video of one batch task. Videos without an HLS
// file are skipped.
func (uc *PublishUseCase) PublishChunk(ctx context.Context, keys []uuid.UUID) error {
	var errs []error
	for _, key := range keys {
		_, err := uc.PublishVideo(ctx, key)
		if err == nil {
			continue
		}
		if errors.Is(err, apperror.ErrNotFound) {
			uc.logger.Warn("Video has no HLS file, skipping", zap.String("video_key", key.String()))
			continue
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PublishFiles publishes files concurrently, at most limit at a time.
func (uc *PublishUseCase) PublishFiles(ctx context.Context, fileIDs []int64, limit int) (map[int64]map[string]int, error) {
	var (
		mu  sync.Mutex
		out = make(map[int64]map[string]int, len(fileIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, id := range fileIDs {
		g.Go(func() error {
			res, err := uc.Publish(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			out[id] = res
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return out, err
}
