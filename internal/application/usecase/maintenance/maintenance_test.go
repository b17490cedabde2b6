package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/application/usecase/courseware"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/internal/testutil/memory"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type requester struct{ keys []uuid.UUID }

func (r *requester) RequestVideo(_ context.Context, key uuid.UUID) error {
	r.keys = append(r.keys, key)
	return nil
}

type publisher struct {
	files  []int64
	resync []courseware.ResyncInput
}

func (p *publisher) PublishFiles(_ context.Context, ids []int64, _ int) (map[int64]map[string]int, error) {
	p.files = append(p.files, ids...)
	out := make(map[int64]map[string]int, len(ids))
	for _, id := range ids {
		out[id] = map[string]int{"edx": 200}
	}
	return out, nil
}

func (p *publisher) Resync(_ context.Context, in courseware.ResyncInput) (*courseware.ResyncReport, error) {
	p.resync = append(p.resync, in)
	return &courseware.ResyncReport{}, nil
}

type fixture struct {
	uc        *UseCase
	videos    *memory.Videos
	files     *memory.Files
	store     *memory.ObjectStore
	queue     *memory.TaskQueue
	requester *requester
	publisher *publisher
	col       *collection.Collection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		files:     memory.NewFiles(),
		store:     memory.NewObjectStore(),
		queue:     &memory.TaskQueue{},
		requester: &requester{},
		publisher: &publisher{},
	}
	f.videos = memory.NewVideos(f.files)
	collections := memory.NewCollections()
	f.videos.Collections = collections
	f.col = collection.New(1, "6.006", "mit-6006")
	f.col.EdxCourseID = "course-v1:MITx+6.006"
	require.NoError(t, collections.Save(context.Background(), f.col))
	f.uc = NewUseCase(f.videos, f.files, f.store, f.queue, f.requester, f.publisher, logger.NewNop())
	return f
}

func (f *fixture) add(t *testing.T, status video.VideoStatus) *video.Video {
	t.Helper()
	v := video.New(f.col.Key, "Lecture", "")
	v.Status = status
	require.NoError(t, f.videos.Save(context.Background(), v))
	return v
}

func TestTranscode_RequiresTarget(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.Transcode(context.Background(), Target{}, false)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestTranscode_QueuesSubmittableVideos(t *testing.T) {
	f := newFixture(t)
	created := f.add(t, video.StatusCreated)
	failed := f.add(t, video.StatusTranscodeFailedVideo)
	complete := f.add(t, video.StatusComplete)

	res, err := f.uc.Transcode(context.Background(), Target{CollectionKeys: []uuid.UUID{f.col.Key}}, false)
	require.NoError(t, err)

	assert.ElementsMatch(t, []uuid.UUID{created.Key, failed.Key}, res.Selected)
	assert.Equal(t, []uuid.UUID{complete.Key}, res.Skipped)
	assert.Len(t, f.queue.Tasks, 2)
	for _, task := range f.queue.Tasks {
		assert.Equal(t, service.TaskTranscode, task.Type)
	}
}

func TestTranscode_DryRunQueuesNothing(t *testing.T) {
	f := newFixture(t)
	f.add(t, video.StatusCreated)

	res, err := f.uc.Transcode(context.Background(), Target{All: true}, true)
	require.NoError(t, err)
	assert.Len(t, res.Selected, 1)
	assert.Empty(t, f.queue.Tasks)
}

func TestRetranscode_FlagsEligibleByCourse(t *testing.T) {
	f := newFixture(t)
	complete := f.add(t, video.StatusComplete)
	retryable := f.add(t, video.StatusRetranscodeFailed)
	f.add(t, video.StatusTranscoding)

	res, err := f.uc.Retranscode(context.Background(), Target{CourseID: f.col.EdxCourseID}, false)
	require.NoError(t, err)
	require.NoError(t, res.Err())

	assert.ElementsMatch(t, []uuid.UUID{complete.Key, retryable.Key}, f.requester.keys)
	assert.Len(t, res.Skipped, 1)
}

func TestRetranscode_CreatedWindow(t *testing.T) {
	f := newFixture(t)
	f.add(t, video.StatusComplete)
	future := time.Now().Add(time.Hour)

	res, err := f.uc.Retranscode(context.Background(), Target{CreatedAfter: &future}, true)
	require.NoError(t, err)
	assert.Empty(t, res.Selected)
}

func TestRemoveDuplicateEncodings_KeepsLatest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.add(t, video.StatusComplete)
	older := &video.File{ObjectKey: "transcoded/1/a/video_hd-old", Bucket: "out", VideoKey: v.Key, Encoding: video.EncodingHD}
	newer := &video.File{ObjectKey: "transcoded/1/a/video_hd", Bucket: "out", VideoKey: v.Key, Encoding: video.EncodingHD}
	single := &video.File{ObjectKey: "transcoded/1/a/video__index.m3u8", Bucket: "out", VideoKey: v.Key, Encoding: video.EncodingHLS}
	for _, file := range []*video.File{older, newer, single} {
		require.NoError(t, f.files.Save(ctx, file))
		f.store.Put("out", file.ObjectKey, []byte("x"))
	}

	removed, err := f.uc.RemoveDuplicateEncodings(ctx, false)
	require.NoError(t, err)

	require.Len(t, removed, 1)
	assert.Equal(t, older.ID, removed[0].ID)
	left, err := f.files.ListByVideo(ctx, v.Key)
	require.NoError(t, err)
	assert.Len(t, left, 2)
	_, ok := f.store.Get("out", older.ObjectKey)
	assert.False(t, ok)
	_, ok = f.store.Get("out", newer.ObjectKey)
	assert.True(t, ok)
}

func TestRemoveDuplicateEncodings_DryRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.add(t, video.StatusComplete)
	require.NoError(t, f.files.Save(ctx, &video.File{ObjectKey: "a", Bucket: "out", VideoKey: v.Key, Encoding: video.EncodingHD}))
	require.NoError(t, f.files.Save(ctx, &video.File{ObjectKey: "b", Bucket: "out", VideoKey: v.Key, Encoding: video.EncodingHD}))

	removed, err := f.uc.RemoveDuplicateEncodings(ctx, true)
	require.NoError(t, err)
	assert.Len(t, removed, 1)
	assert.Len(t, f.files.All(), 2)
}

func TestAddHLSToCourseware_ByTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.add(t, video.StatusComplete)
	hls := &video.File{ObjectKey: "transcoded/1/x/video__index.m3u8", Bucket: "out", VideoKey: v.Key, Encoding: video.EncodingHLS}
	require.NoError(t, f.files.Save(ctx, hls))
	require.NoError(t, f.files.Save(ctx, &video.File{ObjectKey: "transcoded/1/x/video_hd", Bucket: "out", VideoKey: v.Key, Encoding: video.EncodingHD}))

	out, err := f.uc.AddHLSToCourseware(ctx, nil, Target{VideoKeys: []uuid.UUID{v.Key}}, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{hls.ID}, f.publisher.files)
	assert.Equal(t, map[string]int{"edx": 200}, out[hls.ID])
}

func TestAddHLSToCourseware_ByFileID(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.AddHLSToCourseware(context.Background(), []int64{7, 9}, Target{}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 9}, f.publisher.files)
}

func TestSyncVideoKeys_Delegates(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.SyncVideoKeys(context.Background(), courseware.ResyncInput{CourseID: "c", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []courseware.ResyncInput{{CourseID: "c", DryRun: true}}, f.publisher.resync)
}
