// Package maintenance implements the operator commands run through videoctl.
package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/application/usecase/courseware"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

var tracer = otel.Tracer("maintenance_usecase")

// Target selects videos. At least one field must be set unless All is true.
type Target struct {
	VideoKeys      []uuid.UUID
	CollectionKeys []uuid.UUID
	CourseID       string
	EndpointName   string
	Owner          string
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	All            bool
}

func (t Target) empty() bool {
	return len(t.VideoKeys) == 0 && len(t.CollectionKeys) == 0 && t.CourseID == "" &&
		t.EndpointName == "" && t.Owner == "" && t.CreatedAfter == nil && t.CreatedBefore == nil
}

func (t Target) filter() video.Filter {
	return video.Filter{
		VideoKeys:      t.VideoKeys,
		CollectionKeys: t.CollectionKeys,
		CourseID:       t.CourseID,
		EndpointName:   t.EndpointName,
		OwnerUsername:  t.Owner,
		CreatedAfter:   t.CreatedAfter,
		CreatedBefore:  t.CreatedBefore,
	}
}

// Result lists what a command acted on, or would act on in a dry run.
type Result struct {
	Selected []uuid.UUID
	Skipped  []uuid.UUID
	Failed   map[uuid.UUID]error
}

func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, err := range r.Failed {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type (
	RetranscodeRequester interface {
		RequestVideo(ctx context.Context, key uuid.UUID) error
	}
	CoursewarePublisher interface {
		PublishFiles(ctx context.Context, fileIDs []int64, limit int) (map[int64]map[string]int, error)
		Resync(ctx context.Context, in courseware.ResyncInput) (*courseware.ResyncReport, error)
	}
)

type UseCase struct {
	videoRepo   video.Repository
	fileRepo    video.FileRepository
	store       service.ObjectStore
	queue       service.TaskQueue
	retranscode RetranscodeRequester
	publisher   CoursewarePublisher
	logger      logger.Logger
}

func NewUseCase(
	videos video.Repository,
	files video.FileRepository,
	store service.ObjectStore,
	queue service.TaskQueue,
	retranscode RetranscodeRequester,
	publisher CoursewarePublisher,
	log logger.Logger,
) *UseCase {
	return &UseCase{
		videoRepo:   videos,
		fileRepo:    files,
		store:       store,
		queue:       queue,
		retranscode: retranscode,
		publisher:   publisher,
		logger:      log,
	}
}

func (uc *UseCase) selectVideos(ctx context.Context, t Target) ([]*video.Video, error) {
	if t.empty() && !t.All {
		return nil, apperror.NewInvalidInput("no target given; pass a filter or --all", nil)
	}
	return uc.videoRepo.Find(ctx, t.filter())
}

// Transcode queues a first transcode for every selected video that may be
// submitted from its current status.
func (uc *UseCase) Transcode(ctx context.Context, t Target, dryRun bool) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Transcode")
	defer span.End()
	span.SetAttributes(attribute.Bool("dry_run", dryRun))

	vids, err := uc.selectVideos(ctx, t)
	if err != nil {
		return nil, err
	}
	res := &Result{Failed: make(map[uuid.UUID]error)}
	var tasks []service.Task
	for _, v := range vids {
		if !video.CanSubmitTranscode(v.Status) {
			res.Skipped = append(res.Skipped, v.Key)
			continue
		}
		res.Selected = append(res.Selected, v.Key)
		tasks = append(tasks, service.Task{Type: service.TaskTranscode, VideoKey: v.Key})
	}
	uc.logger.Info("Transcode targets selected", zap.Int("selected", len(res.Selected)), zap.Int("skipped", len(res.Skipped)), zap.Bool("dry_run", dryRun))
	if dryRun || len(tasks) == 0 {
		return res, nil
	}
	if err := uc.queue.Enqueue(ctx, tasks...); err != nil {
		return res, err
	}
	return res, nil
}

// Retranscode flags every selected video for the retranscode loop.
func (uc *UseCase) Retranscode(ctx context.Context, t Target, dryRun bool) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Retranscode")
	defer span.End()
	span.SetAttributes(attribute.Bool("dry_run", dryRun))

	vids, err := uc.selectVideos(ctx, t)
	if err != nil {
		return nil, err
	}
	res := &Result{Failed: make(map[uuid.UUID]error)}
	for _, v := range vids {
		if _, err := video.Next(v.Status, video.EventRetranscodeRequested); err != nil {
			res.Skipped = append(res.Skipped, v.Key)
			continue
		}
		res.Selected = append(res.Selected, v.Key)
		if dryRun {
			continue
		}
		if err := uc.retranscode.RequestVideo(ctx, v.Key); err != nil {
			uc.logger.Error("Failed to request retranscode", err, zap.String("video_key", v.Key.String()))
			res.Failed[v.Key] = err
		}
	}
	uc.logger.Info("Retranscode targets selected", zap.Int("selected", len(res.Selected)), zap.Int("skipped", len(res.Skipped)), zap.Bool("dry_run", dryRun))
	return res, nil
}

// RemoveDuplicateEncodings keeps the most recently updated file of every
// (video, encoding) group and deletes the rest along with their objects.
func (uc *UseCase) RemoveDuplicateEncodings(ctx context.Context, dryRun bool) ([]*video.File, error) {
	ctx, span := tracer.Start(ctx, "RemoveDuplicateEncodings")
	defer span.End()

	dups, err := uc.fileRepo.ListDuplicates(ctx)
	if err != nil {
		return nil, err
	}
	type group struct {
		key uuid.UUID
		enc video.Encoding
	}
	latest := make(map[group]*video.File)
	for _, f := range dups {
		g := group{f.VideoKey, f.Encoding}
		if cur, ok := latest[g]; !ok || f.UpdatedAt.After(cur.UpdatedAt) {
			latest[g] = f
		}
	}

	var removed []*video.File
	var errs []error
	for _, f := range dups {
		if latest[group{f.VideoKey, f.Encoding}] == f {
			continue
		}
		removed = append(removed, f)
		if dryRun {
			continue
		}
		if err := uc.fileRepo.Delete(ctx, f.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := uc.store.Delete(ctx, f.Bucket, f.ObjectKey); err != nil {
			uc.logger.Warn("Failed to release duplicate object", zap.String("object_key", f.ObjectKey), zap.Error(err))
		}
	}
	uc.logger.Info("Duplicate encodings removed", zap.Int("removed", len(removed)), zap.Bool("dry_run", dryRun))
	return removed, errors.Join(errs...)
}

// SyncVideoKeys adopts the video keys a courseware endpoint assigned.
func (uc *UseCase) SyncVideoKeys(ctx context.Context, in courseware.ResyncInput) (*courseware.ResyncReport, error) {
	return uc.publisher.Resync(ctx, in)
}

// AddHLSToCourseware publishes the given HLS files, or the HLS files of the
// targeted videos when no ids are given.
func (uc *UseCase) AddHLSToCourseware(ctx context.Context, fileIDs []int64, t Target, concurrency int) (map[int64]map[string]int, error) {
	ctx, span := tracer.Start(ctx, "AddHLSToCourseware")
	defer span.End()

	if len(fileIDs) == 0 {
		vids, err := uc.selectVideos(ctx, t)
		if err != nil {
			return nil, err
		}
		if len(vids) == 0 {
			return map[int64]map[string]int{}, nil
		}
		keys := make([]uuid.UUID, len(vids))
		for i, v := range vids {
			keys[i] = v.Key
		}
		files, err := uc.fileRepo.List(ctx, video.EncodingHLS, keys)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			fileIDs = append(fileIDs, f.ID)
		}
	}
	span.SetAttributes(attribute.Int("files", len(fileIDs)))
	return uc.publisher.PublishFiles(ctx, fileIDs, concurrency)
}
