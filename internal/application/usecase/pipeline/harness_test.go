package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/user"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/internal/testutil/memory"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

const (
	presetHLSHigh = "1351620000001-200010"
	presetHLSLow  = "1351620000001-200050"
	presetMP4     = "1351620000001-100070"
)

type harness struct {
	users       *memory.Users
	collections *memory.Collections
	videos      *memory.Videos
	files       *memory.Files
	thumbs      *memory.Thumbnails
	subs        *memory.Subtitles
	jobs        *memory.TranscodeJobs
	hosted      *memory.ExternalHostVideos
	store       *memory.ObjectStore
	transcoder  *memory.Transcoder
	queue       *memory.TaskQueue
	locker      *memory.Locker
	pub         *memory.Publisher
	remote      *memory.RemoteSource

	settings Settings
	owner    *user.User

	transcode   *TranscodeUseCase
	reconcile   *ReconcileUseCase
	ingest      *IngestUseCase
	retranscode *RetranscodeUseCase
	visibility  *VisibilityUseCase
	subtitles   *SubtitleUseCase
	deleter     *DeleteUseCase
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		users:       memory.NewUsers(),
		collections: memory.NewCollections(),
		files:       memory.NewFiles(),
		thumbs:      memory.NewThumbnails(),
		subs:        memory.NewSubtitles(),
		jobs:        memory.NewTranscodeJobs(),
		hosted:      memory.NewExternalHostVideos(),
		store:       memory.NewObjectStore(),
		transcoder:  memory.NewTranscoder(),
		queue:       &memory.TaskQueue{},
		locker:      memory.NewLocker(),
		pub:         &memory.Publisher{},
		remote:      &memory.RemoteSource{Bodies: map[string]string{}},
		settings: Settings{
			Buckets: Buckets{
				Source:    "src",
				Transcode: "out",
				Thumbnail: "thumbs",
				Subtitle:  "subs",
				Watch:     "watch",
			},
			Presets:            []string{presetHLSHigh, presetHLSLow, presetMP4},
			PresetEncodings:    map[string]video.Encoding{presetMP4: video.EncodingHD},
			SegmentDuration:    "10",
			PipelineName:       "lecture-video-test",
			LockTTL:            time.Minute,
			WatchOwner:         "captures",
			UnsortedCollection: "Unsorted",
		},
	}
	h.videos = memory.NewVideos(h.files)
	h.owner = &user.User{ID: 42, Username: "captures", Email: "captures@mit.edu"}
	require.NoError(t, h.users.Save(context.Background(), h.owner))

	log := logger.NewNop()
	mat := NewMaterializer(h.files, h.thumbs, h.store, h.transcoder, h.settings, log)
	h.transcode = NewTranscodeUseCase(h.videos, h.collections, h.files, h.jobs, h.transcoder, h.pub, h.settings, log)
	h.reconcile = NewReconcileUseCase(h.videos, h.collections, h.jobs, h.transcoder, mat, h.locker, h.pub, h.settings, log)
	h.ingest = NewIngestUseCase(h.users, h.collections, h.videos, h.files, h.store, h.remote, h.queue, h.locker, h.pub, h.settings, log)
	h.retranscode = NewRetranscodeUseCase(h.videos, h.collections, h.queue, h.locker, h.settings, log)
	h.visibility = NewVisibilityUseCase(h.videos, h.collections, h.subs, h.pub, log)
	h.subtitles = NewSubtitleUseCase(h.videos, h.subs, h.store, h.pub, h.settings, log)
	h.deleter = NewDeleteUseCase(h.videos, h.collections, h.files, h.thumbs, h.subs, h.hosted, h.store, h.queue, h.settings, log)
	return h
}

// seedVideo stores a CREATED video with its uploaded original.
func (h *harness) seedVideo(t *testing.T) (*collection.Collection, *video.Video) {
	t.Helper()
	ctx := context.Background()
	c := collection.New(h.owner.ID, "6.046", "mit-6046")
	require.NoError(t, h.collections.Save(ctx, c))

	v := video.New(c.Key, "Lecture 1", "")
	f := &video.File{
		ObjectKey: video.KeysFor(c.OwnerID, v).Source("lecture.mp4"),
		Bucket:    h.settings.Buckets.Source,
		Encoding:  video.EncodingOriginal,
	}
	require.NoError(t, h.videos.CreateWithFile(ctx, v, f))
	h.store.Put(f.Bucket, f.ObjectKey, []byte("original"))
	return c, v
}

// writeOutputs plays the transcoder: it stores what the last submission asked for.
func (h *harness) writeOutputs(t *testing.T, body string) service.TranscodeRequest {
	t.Helper()
	require.NotEmpty(t, h.transcoder.Submitted)
	req := h.transcoder.Submitted[len(h.transcoder.Submitted)-1]
	for _, out := range req.Outputs {
		if out.SegmentDuration != "" {
			h.store.Put(h.settings.Buckets.Transcode, out.Key+"00000.ts", []byte(body))
			h.store.Put(h.settings.Buckets.Transcode, out.Key+".m3u8", []byte(body))
		} else {
			h.store.Put(h.settings.Buckets.Transcode, out.Key, []byte(body))
		}
		if out.ThumbnailPattern != "" {
			for i := 1; i <= 2; i++ {
				key := strings.Replace(out.ThumbnailPattern, "{count}", fmt.Sprintf("%05d", i), 1) + ".png"
				h.store.Put(h.settings.Buckets.Thumbnail, key, []byte(body))
			}
		}
	}
	for _, pl := range req.Playlists {
		h.store.Put(h.settings.Buckets.Transcode, pl.Name+video.HLSSuffix, []byte(body))
	}
	return req
}

func (h *harness) lastJobID() string {
	return fmt.Sprintf("job-%d", len(h.transcoder.Submitted))
}

func (h *harness) status(t *testing.T, v *video.Video) video.VideoStatus {
	t.Helper()
	got, err := h.videos.FindByKey(context.Background(), v.Key)
	require.NoError(t, err)
	return got.Status
}

// complete drives a CREATED video to COMPLETE through a successful job.
func (h *harness) complete(t *testing.T, v *video.Video, body string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.transcode.Execute(ctx, TranscodeInput{VideoKey: v.Key}))
	h.writeOutputs(t, body)
	h.transcoder.Complete(h.lastJobID())
	require.NoError(t, h.reconcile.Execute(ctx))
	require.Equal(t, video.StatusComplete, h.status(t, v))
	h.settle()
}

// settle dates every stored rendition and thumbnail an hour back, as if they
// were written long before any later job.
func (h *harness) settle() {
	h.store.Age(h.settings.Buckets.Transcode, "", time.Hour)
	h.store.Age(h.settings.Buckets.Thumbnail, "", time.Hour)
}

// addVideo stores another CREATED video in collection key.
func (h *harness) addVideo(t *testing.T, collectionKey uuid.UUID) *video.Video {
	t.Helper()
	c, err := h.collections.FindByKey(context.Background(), collectionKey)
	require.NoError(t, err)
	v := video.New(c.Key, "Lecture 2", "")
	f := &video.File{
		ObjectKey: video.KeysFor(c.OwnerID, v).Source("lecture.mp4"),
		Bucket:    h.settings.Buckets.Source,
		Encoding:  video.EncodingOriginal,
	}
	require.NoError(t, h.videos.CreateWithFile(context.Background(), v, f))
	return v
}
