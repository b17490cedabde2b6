package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

// errMissingPlaylist marks a completed job whose HLS manifest cannot be found.
var errMissingPlaylist = errors.New("transcode job produced no HLS playlist")

// Materializer turns a completed transcoder job into file and thumbnail rows.
type Materializer struct {
	fileRepo      video.FileRepository
	thumbnailRepo video.ThumbnailRepository
	store         service.ObjectStore
	transcoder    service.Transcoder
	settings      Settings
	logger        logger.Logger
}

func NewMaterializer(
	files video.FileRepository,
	thumbnails video.ThumbnailRepository,
	store service.ObjectStore,
	transcoder service.Transcoder,
	settings Settings,
	log logger.Logger,
) *Materializer {
	return &Materializer{
		fileRepo:      files,
		thumbnailRepo: thumbnails,
		store:         store,
		transcoder:    transcoder,
		settings:      settings,
		logger:        log,
	}
}

// Materialize records the outputs of st. Retranscoded outputs are first rolled
// over from staging onto the production keys; submittedAt is when the
// retranscode job was submitted. Running it twice is harmless.
func (m *Materializer) Materialize(ctx context.Context, v *video.Video, ownerID int64, st *service.JobStatus, retranscode bool, submittedAt time.Time) error {
	if len(st.Playlists) == 0 {
		return errMissingPlaylist
	}
	keys := video.KeysFor(ownerID, v)
	l := m.logger.With(zap.String("video_key", v.Key.String()))

	if retranscode {
		if err := m.rollover(ctx, m.settings.Buckets.Transcode, keys.Staging().TranscodedDir(), submittedAt); err != nil {
			return err
		}
		if err := m.rollover(ctx, m.settings.Buckets.Thumbnail, keys.Staging().ThumbnailDir(), submittedAt); err != nil {
			return err
		}
	}

	for _, pl := range st.Playlists {
		objectKey := video.Unstage(pl.Name) + video.HLSSuffix
		exists, err := m.exists(ctx, m.settings.Buckets.Transcode, objectKey)
		if err != nil {
			return err
		}
		if !exists {
			l.Warn("Playlist object missing after job", zap.String("object_key", objectKey))
			return errMissingPlaylist
		}
		if err := m.fileRepo.Upsert(ctx, &video.File{
			ObjectKey: objectKey,
			Bucket:    m.settings.Buckets.Transcode,
			VideoKey:  v.Key,
			Encoding:  video.EncodingHLS,
		}); err != nil {
			return apperror.NewInternal("failed to record playlist", err)
		}
	}

	for _, out := range st.Outputs {
		enc, ok := m.settings.PresetEncodings[out.PresetID]
		if !ok {
			continue
		}
		if err := m.fileRepo.Upsert(ctx, &video.File{
			ObjectKey: video.Unstage(out.Key),
			Bucket:    m.settings.Buckets.Transcode,
			VideoKey:  v.Key,
			Encoding:  enc,
			PresetID:  out.PresetID,
		}); err != nil {
			return apperror.NewInternal("failed to record rendition", err)
		}
	}

	return m.thumbnails(ctx, v, st)
}

func (m *Materializer) thumbnails(ctx context.Context, v *video.Video, st *service.JobStatus) error {
	current := make(map[string]struct{})
	for _, out := range st.Outputs {
		if out.ThumbnailPattern == "" {
			continue
		}
		preset, err := m.transcoder.ReadPreset(ctx, out.PresetID)
		if err != nil {
			return err
		}
		prefix := video.Unstage(strings.TrimSuffix(out.ThumbnailPattern, "{count}"))
		for obj, err := range m.store.List(ctx, m.settings.Buckets.Thumbnail, prefix) {
			if err != nil {
				return err
			}
			current[obj.Key] = struct{}{}
			if err := m.thumbnailRepo.Upsert(ctx, &video.Thumbnail{
				ObjectKey: obj.Key,
				Bucket:    m.settings.Buckets.Thumbnail,
				VideoKey:  v.Key,
				MaxWidth:  preset.ThumbMaxWidth,
				MaxHeight: preset.ThumbMaxHeight,
			}); err != nil {
				return apperror.NewInternal("failed to record thumbnail", err)
			}
		}
	}

	existing, err := m.thumbnailRepo.ListByVideo(ctx, v.Key)
	if err != nil {
		return err
	}
	for _, t := range existing {
		if _, ok := current[t.ObjectKey]; ok {
			continue
		}
		if err := m.thumbnailRepo.Delete(ctx, t.ID); err != nil {
			return apperror.NewInternal("failed to drop stale thumbnail", err)
		}
	}
	return nil
}

// rollover replaces the production directory with the staged one. Staged
// objects are copied over first. Production objects last written before the
// job was submitted belong to the previous rendition set and are removed, then
// staging is emptied. Staleness never depends on what is left in staging, so a
// pass that failed while emptying it can run again.
func (m *Materializer) rollover(ctx context.Context, bucket, stagingDir string, submittedAt time.Time) error {
	copied := 0
	for obj, err := range m.store.List(ctx, bucket, stagingDir) {
		if err != nil {
			return err
		}
		if err := m.store.Copy(ctx, bucket, obj.Key, bucket, video.Unstage(obj.Key)); err != nil {
			return fmt.Errorf("rollover %s: %w", obj.Key, err)
		}
		copied++
	}
	if copied == 0 {
		// already rolled over by an earlier attempt
		return nil
	}

	// object stores report modification times in whole seconds
	cutoff := submittedAt.Truncate(time.Second)
	var stale []string
	for obj, err := range m.store.List(ctx, bucket, video.Unstage(stagingDir)) {
		if err != nil {
			return err
		}
		if obj.LastModified.Before(cutoff) {
			stale = append(stale, obj.Key)
		}
	}
	for _, key := range stale {
		if err := m.store.Delete(ctx, bucket, key); err != nil {
			return fmt.Errorf("rollover delete %s: %w", key, err)
		}
	}
	return m.store.DeletePrefix(ctx, bucket, stagingDir)
}

// DiscardStaging drops the outputs of a failed retranscode. Production objects are untouched.
func (m *Materializer) DiscardStaging(ctx context.Context, v *video.Video, ownerID int64) {
	keys := video.KeysFor(ownerID, v).Staging()
	dirs := [][2]string{
		{m.settings.Buckets.Transcode, keys.TranscodedDir()},
		{m.settings.Buckets.Thumbnail, keys.ThumbnailDir()},
	}
	for _, d := range dirs {
		if err := m.store.DeletePrefix(ctx, d[0], d[1]); err != nil {
			m.logger.Warn("Failed to discard staged outputs", zap.String("bucket", d[0]), zap.String("prefix", d[1]), zap.Error(err))
		}
	}
}

func (m *Materializer) exists(ctx context.Context, bucket, key string) (bool, error) {
	for obj, err := range m.store.List(ctx, bucket, key) {
		if err != nil {
			return false, err
		}
		if obj.Key == key {
			return true, nil
		}
	}
	return false, nil
}
