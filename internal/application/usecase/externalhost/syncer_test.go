package externalhost

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/externalhost"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/internal/testutil/memory"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type fixture struct {
	syncer      *Syncer
	videos      *memory.Videos
	files       *memory.Files
	collections *memory.Collections
	subtitles   *memory.Subtitles
	hosted      *memory.ExternalHostVideos
	host        *memory.ExternalHost
	store       *memory.ObjectStore
	locker      *memory.Locker
	col         *collection.Collection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		files:       memory.NewFiles(),
		collections: memory.NewCollections(),
		subtitles:   memory.NewSubtitles(),
		hosted:      memory.NewExternalHostVideos(),
		host:        memory.NewExternalHost(),
		store:       memory.NewObjectStore(),
		locker:      memory.NewLocker(),
	}
	f.videos = memory.NewVideos(f.files)
	f.col = collection.New(3, "8.01 Physics", "mit-801")
	f.col.StreamSource = collection.StreamEither
	require.NoError(t, f.collections.Save(context.Background(), f.col))
	f.syncer = NewSyncer(f.videos, f.collections, f.files, f.subtitles, f.hosted, f.host, f.store, f.locker,
		Settings{SubtitleBucket: "subs"}, logger.NewNop())
	return f
}

// publicVideo stores a complete public video with its original upload.
func (f *fixture) publicVideo(t *testing.T) *video.Video {
	t.Helper()
	ctx := context.Background()
	v := video.New(f.col.Key, "Lecture 4", "")
	v.Status = video.StatusComplete
	v.IsPublic = true
	key := video.KeysFor(f.col.OwnerID, v).Source("lecture.mov")
	require.NoError(t, f.videos.CreateWithFile(ctx, v, &video.File{ObjectKey: key, Bucket: "src", Encoding: video.EncodingOriginal}))
	f.store.Put("src", key, []byte("movie bytes"))
	return v
}

func (f *fixture) addSubtitle(t *testing.T, v *video.Video, lang, body string) {
	t.Helper()
	key := "subtitles/" + uuid.NewString() + "/" + lang + ".vtt"
	f.store.Put("subs", key, []byte(body))
	require.NoError(t, f.subtitles.Save(context.Background(), &video.Subtitle{
		ObjectKey: key, Bucket: "subs", VideoKey: v.Key, Language: lang, Filename: lang + ".vtt",
	}))
}

func TestUpload_HostsVideoAndCaptions(t *testing.T) {
	f := newFixture(t)
	v := f.publicVideo(t)
	f.addSubtitle(t, v, "en", "WEBVTT\n\nhello")

	require.NoError(t, f.syncer.Upload(context.Background(), v.Key))

	require.Len(t, f.host.Uploads, 1)
	assert.Equal(t, "Lecture 4", f.host.Uploads[0].Title)
	assert.Equal(t, externalhost.PrivacyPublic, f.host.Uploads[0].Privacy)
	assert.NoFileExists(t, f.host.Uploads[0].Path)

	row, err := f.hosted.FindByVideo(context.Background(), v.Key)
	require.NoError(t, err)
	assert.Equal(t, externalhost.StatusUploaded, row.Status)
	require.Len(t, f.host.Captions[row.ExternalID], 1)
	assert.Equal(t, "WEBVTT\n\nhello", f.host.Captions[row.ExternalID][0].Body)
}

func TestUpload_LoggedInOnlyIsUnlisted(t *testing.T) {
	f := newFixture(t)
	v := f.publicVideo(t)
	v.IsLoggedInOnly = true
	require.NoError(t, f.videos.Update(context.Background(), v))

	require.NoError(t, f.syncer.Upload(context.Background(), v.Key))
	require.Len(t, f.host.Uploads, 1)
	assert.Equal(t, externalhost.PrivacyUnlisted, f.host.Uploads[0].Privacy)
}

func TestUpload_SkipsIneligible(t *testing.T) {
	cases := map[string]func(f *fixture, v *video.Video){
		"private":      func(_ *fixture, v *video.Video) { v.IsPublic = false },
		"not complete": func(_ *fixture, v *video.Video) { v.Status = video.StatusTranscoding },
		"cdn only": func(f *fixture, _ *video.Video) {
			f.col.StreamSource = collection.StreamCDN
			_ = f.collections.Update(context.Background(), f.col)
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			v := f.publicVideo(t)
			mutate(f, v)
			require.NoError(t, f.videos.Update(context.Background(), v))

			require.NoError(t, f.syncer.Upload(context.Background(), v.Key))
			assert.Empty(t, f.host.Uploads)
		})
	}
}

func TestUpload_AlreadyHostedOnlySyncsCaptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.publicVideo(t)
	require.NoError(t, f.syncer.Upload(ctx, v.Key))
	f.addSubtitle(t, v, "fr", "WEBVTT\n\nbonjour")

	require.NoError(t, f.syncer.Upload(ctx, v.Key))

	assert.Len(t, f.host.Uploads, 1)
	row, err := f.hosted.FindByVideo(ctx, v.Key)
	require.NoError(t, err)
	assert.Len(t, f.host.Captions[row.ExternalID], 1)
}

func TestUpload_FailureLeavesNoRow(t *testing.T) {
	f := newFixture(t)
	v := f.publicVideo(t)
	f.host.UploadErr = apperror.NewExternalHost(true, "host answered 503", nil)

	err := f.syncer.Upload(context.Background(), v.Key)
	assert.True(t, apperror.IsRetriable(err))
	_, err = f.hosted.FindByVideo(context.Background(), v.Key)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpload_LockedIsSkipped(t *testing.T) {
	f := newFixture(t)
	v := f.publicVideo(t)
	f.locker.Hold(lockKey(v.Key))

	require.NoError(t, f.syncer.Upload(context.Background(), v.Key))
	assert.Empty(t, f.host.Uploads)
}

func TestSyncCaptions_ReplacesAndPrunes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.publicVideo(t)
	f.addSubtitle(t, v, "en", "WEBVTT\n\nold")
	require.NoError(t, f.syncer.Upload(ctx, v.Key))
	row, err := f.hosted.FindByVideo(ctx, v.Key)
	require.NoError(t, err)

	subs, err := f.subtitles.ListByVideo(ctx, v.Key)
	require.NoError(t, err)
	require.NoError(t, f.subtitles.Delete(ctx, subs[0].ID))
	f.addSubtitle(t, v, "es", "WEBVTT\n\nhola")

	require.NoError(t, f.syncer.SyncCaptions(ctx, v.Key))

	caps, err := f.host.ListCaptions(ctx, row.ExternalID)
	require.NoError(t, err)
	assert.Len(t, caps, 1)
	assert.Contains(t, caps, "es")
}

func TestSyncCaptions_NotHostedIsNoop(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.syncer.SyncCaptions(context.Background(), uuid.New()))
}

func TestRemove_DeletesHostedCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.publicVideo(t)
	require.NoError(t, f.syncer.Upload(ctx, v.Key))
	row, err := f.hosted.FindByVideo(ctx, v.Key)
	require.NoError(t, err)

	require.NoError(t, f.syncer.Remove(ctx, v.Key, ""))

	assert.Equal(t, []string{row.ExternalID}, f.host.Deleted)
	_, err = f.hosted.FindByVideo(ctx, v.Key)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRemove_UsesExternalIDWhenRowIsGone(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.syncer.Remove(context.Background(), uuid.New(), "yt000000042"))
	assert.Equal(t, []string{"yt000000042"}, f.host.Deleted)
}

func TestRemove_NothingHosted(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.syncer.Remove(context.Background(), uuid.New(), ""))
	assert.Empty(t, f.host.Deleted)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	processing := uuid.New()
	rejected := uuid.New()
	vanished := uuid.New()
	require.NoError(t, f.hosted.Save(ctx, &externalhost.Video{VideoKey: processing, ExternalID: "yt-processing", Status: externalhost.StatusUploaded}))
	require.NoError(t, f.hosted.Save(ctx, &externalhost.Video{VideoKey: rejected, ExternalID: "yt-rejected", Status: externalhost.StatusProcessing}))
	require.NoError(t, f.hosted.Save(ctx, &externalhost.Video{VideoKey: vanished, ExternalID: "yt-vanished", Status: externalhost.StatusProcessing}))
	f.host.Statuses["yt-processing"] = externalhost.StatusProcessed
	f.host.Statuses["yt-rejected"] = externalhost.StatusRejected

	require.NoError(t, f.syncer.Reconcile(ctx))

	row, err := f.hosted.FindByVideo(ctx, processing)
	require.NoError(t, err)
	assert.Equal(t, externalhost.StatusProcessed, row.Status)
	_, err = f.hosted.FindByVideo(ctx, rejected)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = f.hosted.FindByVideo(ctx, vanished)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, []string{"yt-rejected"}, f.host.Deleted)

	rows, err := f.hosted.ListNonTerminal(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReconcile_SkipsLockedRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := uuid.New()
	require.NoError(t, f.hosted.Save(ctx, &externalhost.Video{VideoKey: key, ExternalID: "yt-1", Status: externalhost.StatusUploaded}))
	f.host.Statuses["yt-1"] = externalhost.StatusFailed
	f.locker.Hold(lockKey(key))

	require.NoError(t, f.syncer.Reconcile(ctx))
	_, err := f.hosted.FindByVideo(ctx, key)
	assert.NoError(t, err)
}
