package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/events"
	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/lecture"
	"github.com/khoahotran/lecture-video/internal/domain/user"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

const progressLogStep = 64 << 20

type IngestUseCase struct {
	userRepo       user.Repository
	collectionRepo collection.Repository
	videoRepo      video.Repository
	fileRepo       video.FileRepository
	store          service.ObjectStore
	remote         service.RemoteSource
	queue          service.TaskQueue
	locker         service.Locker
	publisher      events.Publisher
	settings       Settings
	logger         logger.Logger
}

func NewIngestUseCase(
	users user.Repository,
	collections collection.Repository,
	videos video.Repository,
	files video.FileRepository,
	store service.ObjectStore,
	remote service.RemoteSource,
	queue service.TaskQueue,
	locker service.Locker,
	publisher events.Publisher,
	settings Settings,
	log logger.Logger,
) *IngestUseCase {
	return &IngestUseCase{
		userRepo:       users,
		collectionRepo: collections,
		videoRepo:      videos,
		fileRepo:       files,
		store:          store,
		remote:         remote,
		queue:          queue,
		locker:         locker,
		publisher:      publisher,
		settings:       settings,
		logger:         log,
	}
}

// ScanWatchFolder ingests every object currently in the watch bucket.
func (uc *IngestUseCase) ScanWatchFolder(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ScanWatchFolder")
	defer span.End()

	var keys []string
	for obj, err := range uc.store.List(ctx, uc.settings.Buckets.Watch, "") {
		if err != nil {
			span.RecordError(err)
			return err
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, obj.Key)
	}
	span.SetAttributes(attribute.Int("objects", len(keys)))

	var errs []error
	for _, key := range keys {
		if err := uc.IngestWatchObject(ctx, key); err != nil {
			uc.logger.Error("Failed to ingest watch object", err, zap.String("object_key", key))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IngestWatchObject files one dropped capture under the collection its name
// derives, moves it to the source bucket and queues the transcode.
func (uc *IngestUseCase) IngestWatchObject(ctx context.Context, objectKey string) error {
	ctx, span := tracer.Start(ctx, "IngestWatchObject")
	defer span.End()
	l := uc.logger.With(zap.String("object_key", objectKey))

	release, ok, err := uc.locker.TryLock(ctx, "watch:"+objectKey, uc.settings.lockTTL())
	if err != nil {
		return err
	}
	if !ok {
		l.Info("Watch object already being ingested, skipping")
		return nil
	}
	defer release()

	attrs := lecture.Parse(objectKey, uc.settings.UnsortedCollection)
	if !attrs.Matched {
		l.Warn("Unrecognised capture filename, filing as unsorted", zap.Error(apperror.NewFilenameParse(attrs.Name)))
	}

	owner, err := uc.userRepo.FindByUsername(ctx, uc.settings.WatchOwner)
	if err != nil {
		return apperror.NewInternal("watch folder owner is not configured", err)
	}
	col, err := uc.collectionFor(ctx, owner.ID, attrs.CollectionSlug())
	if err != nil {
		span.RecordError(err)
		return err
	}

	v := video.New(col.Key, attrs.VideoTitle(), "")
	f := &video.File{
		ObjectKey: video.KeysFor(col.OwnerID, v).Source(attrs.Name),
		Bucket:    uc.settings.Buckets.Source,
		Encoding:  video.EncodingOriginal,
	}
	if err := uc.videoRepo.CreateWithFile(ctx, v, f); err != nil {
		span.RecordError(err)
		return err
	}
	l = l.With(zap.String("video_key", v.Key.String()))

	if err := uc.store.Copy(ctx, uc.settings.Buckets.Watch, objectKey, f.Bucket, f.ObjectKey); err != nil {
		span.RecordError(err)
		if derr := uc.videoRepo.Delete(ctx, v.Key); derr != nil {
			l.Warn("Failed to roll back video after copy failure", zap.Error(derr))
		}
		return err
	}
	if err := uc.store.Delete(ctx, uc.settings.Buckets.Watch, objectKey); err != nil {
		l.Warn("Failed to remove ingested watch object", zap.Error(err))
	}

	if err := uc.queue.Enqueue(ctx, service.Task{Type: service.TaskTranscode, VideoKey: v.Key}); err != nil {
		return err
	}
	l.Info("Watch object ingested", zap.String("collection", col.Slug), zap.String("title", v.Title))
	return nil
}

func (uc *IngestUseCase) collectionFor(ctx context.Context, ownerID int64, slug string) (*collection.Collection, error) {
	c, err := uc.collectionRepo.FindBySlug(ctx, ownerID, slug)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	c = collection.New(ownerID, slug, slug)
	if err := uc.collectionRepo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

type RemoteFile struct {
	Name string `json:"name" binding:"required"`
	Link string `json:"link" binding:"required"`
}

type RemoteIngestInput struct {
	CollectionKey uuid.UUID
	Files         []RemoteFile
}

// IngestRemote creates a video per link and queues the stream into storage.
func (uc *IngestUseCase) IngestRemote(ctx context.Context, in RemoteIngestInput) ([]uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "IngestRemote")
	defer span.End()

	col, err := uc.collectionRepo.FindByKey(ctx, in.CollectionKey)
	if err != nil {
		return nil, err
	}

	keys := make([]uuid.UUID, 0, len(in.Files))
	for _, rf := range in.Files {
		if rf.Name == "" || rf.Link == "" {
			return keys, apperror.NewInvalidInput("every file needs a name and a link", nil)
		}
		v := video.New(col.Key, rf.Name, rf.Link)
		f := &video.File{
			ObjectKey: video.KeysFor(col.OwnerID, v).Source(rf.Name),
			Bucket:    uc.settings.Buckets.Source,
			Encoding:  video.EncodingOriginal,
		}
		if err := uc.videoRepo.CreateWithFile(ctx, v, f); err != nil {
			span.RecordError(err)
			return keys, err
		}
		if err := uc.queue.Enqueue(ctx, service.Task{Type: service.TaskStreamToStorage, VideoKey: v.Key, SourceURL: rf.Link}); err != nil {
			return keys, err
		}
		keys = append(keys, v.Key)
	}
	uc.logger.Info("Remote files queued", zap.String("collection_key", col.Key.String()), zap.Int("count", len(keys)))
	return keys, nil
}

// Stream copies the remote source of a CREATED video into its original file
// and queues the transcode once the upload settles.
func (uc *IngestUseCase) Stream(ctx context.Context, videoKey uuid.UUID, sourceURL string) error {
	ctx, span := tracer.Start(ctx, "StreamToStorage")
	defer span.End()
	l := uc.logger.With(zap.String("video_key", videoKey.String()))

	v, err := uc.videoRepo.FindByKey(ctx, videoKey)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			l.Warn("Video not found, skipping stream")
			return nil
		}
		return err
	}
	// UPLOADING means an earlier delivery died mid-stream; tasks are keyed by
	// video so no other consumer holds it.
	if v.Status != video.StatusCreated && v.Status != video.StatusUploading {
		l.Info("Video is not awaiting upload, skipping", zap.String("status", string(v.Status)))
		return nil
	}
	if sourceURL == "" {
		sourceURL = v.SourceURL
	}
	f, err := uc.fileRepo.FindByVideoAndEncoding(ctx, v.Key, video.EncodingOriginal)
	if err != nil {
		return err
	}

	uploading, _ := video.Next(video.StatusCreated, video.EventUploadStart)
	if v.Status == video.StatusUploading {
		l.Warn("Resuming interrupted upload")
	} else {
		ok, err := uc.videoRepo.UpdateStatus(ctx, v.Key, video.StatusCreated, uploading)
		if err != nil || !ok {
			return err
		}
	}

	if err := uc.upload(ctx, l, sourceURL, f); err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			l.Warn("Upload interrupted, leaving video for redelivery")
			return ctx.Err()
		}
		l.Error("Remote upload failed", err)
		failed, _ := video.Next(uploading, video.EventUploadErr)
		if ok, uerr := uc.videoRepo.UpdateStatus(ctx, v.Key, uploading, failed); uerr != nil {
			return uerr
		} else if ok {
			if perr := uc.publisher.Publish(ctx, events.VideoFailed{VideoKey: v.Key, Status: failed}); perr != nil {
				l.Warn("Event subscribers failed", zap.Error(perr))
			}
		}
		return nil
	}

	created, _ := video.Next(uploading, video.EventUploadOK)
	if _, err := uc.videoRepo.UpdateStatus(ctx, v.Key, uploading, created); err != nil {
		return err
	}
	l.Info("Remote upload finished", zap.String("object_key", f.ObjectKey))
	return uc.queue.Enqueue(ctx, service.Task{Type: service.TaskTranscode, VideoKey: v.Key})
}

func (uc *IngestUseCase) upload(ctx context.Context, l logger.Logger, sourceURL string, f *video.File) error {
	obj, err := uc.remote.Open(ctx, sourceURL)
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	var next int64 = progressLogStep
	progress := func(n int64) {
		if n < next {
			return
		}
		next = n + progressLogStep
		fields := []zap.Field{zap.Int64("uploaded", n)}
		if obj.Size > 0 {
			fields = append(fields, zap.Int64("total", obj.Size))
		}
		l.Info("Upload progress", fields...)
	}
	return uc.store.StreamUpload(ctx, f.Bucket, f.ObjectKey, obj.Body, obj.ContentType, progress)
}

// CompleteUpload queues the transcode of a video whose original the client
// uploaded directly to the source bucket.
func (uc *IngestUseCase) CompleteUpload(ctx context.Context, videoKey uuid.UUID) error {
	v, err := uc.videoRepo.FindByKey(ctx, videoKey)
	if err != nil {
		return err
	}
	if v.Status != video.StatusCreated {
		return apperror.NewInvalidInput("video is not awaiting upload: "+string(v.Status), nil)
	}
	if _, err := uc.fileRepo.FindByVideoAndEncoding(ctx, v.Key, video.EncodingOriginal); err != nil {
		return err
	}
	return uc.queue.Enqueue(ctx, service.Task{Type: service.TaskTranscode, VideoKey: v.Key})
}
