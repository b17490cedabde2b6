package courseware

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/courseware"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/internal/testutil/memory"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type fixture struct {
	uc          *PublishUseCase
	videos      *memory.Videos
	files       *memory.Files
	collections *memory.Collections
	endpoints   *memory.Courseware
	client      *memory.CoursewareClient
	queue       *memory.TaskQueue
	col         *collection.Collection
}

func fresh(name string) *courseware.Endpoint {
	return &courseware.Endpoint{Name: name, BaseURL: "https://" + name + ".test", AccessToken: "tok", ExpiresIn: 3600, UpdatedAt: time.Now()}
}

func newFixture(t *testing.T, eps ...*courseware.Endpoint) *fixture {
	t.Helper()
	f := &fixture{
		files:       memory.NewFiles(),
		collections: memory.NewCollections(),
		endpoints:   memory.NewCourseware(eps...),
		client:      memory.NewCoursewareClient(),
		queue:       &memory.TaskQueue{},
	}
	f.videos = memory.NewVideos(f.files)
	f.col = collection.New(9, "6.046", "mit-6046")
	f.col.EdxCourseID = "course-v1:MITx+6.046+2017"
	require.NoError(t, f.collections.Save(context.Background(), f.col))
	for _, ep := range eps {
		require.NoError(t, f.endpoints.Associate(context.Background(), f.col.Key, ep.ID))
	}
	f.uc = NewPublishUseCase(f.videos, f.collections, f.files, f.endpoints, f.client, memory.CDNSigner{}, f.queue,
		Settings{SignedURLTTL: time.Hour, BatchChunk: 2}, logger.NewNop())
	return f
}

// completeVideo stores a video with its HLS file.
func (f *fixture) completeVideo(t *testing.T, title string) (*video.Video, *video.File) {
	t.Helper()
	ctx := context.Background()
	v := video.New(f.col.Key, title, "")
	v.Status = video.StatusComplete
	require.NoError(t, f.videos.Save(ctx, v))
	hls := &video.File{
		ObjectKey: video.KeysFor(f.col.OwnerID, v).Playlist() + video.HLSSuffix,
		Bucket:    "out",
		VideoKey:  v.Key,
		Encoding:  video.EncodingHLS,
	}
	require.NoError(t, f.files.Save(ctx, hls))
	return v, hls
}

func TestPublish_RecordsEveryEndpoint(t *testing.T) {
	f := newFixture(t, fresh("endpoint-1"), fresh("endpoint-2"))
	f.client.Responses["endpoint-2"] = []int{500}
	v, hls := f.completeVideo(t, "Lecture 1")

	res, err := f.uc.Publish(context.Background(), hls.ID)

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"endpoint-1": 200, "endpoint-2": 500}, res)
	require.Len(t, f.client.Posts["endpoint-1"], 1)
	require.Len(t, f.client.Posts["endpoint-2"], 1)

	payload := f.client.Posts["endpoint-1"][0]
	assert.Equal(t, "Lecture 1", payload.ClientVideoID)
	edxID, err := uuid.Parse(payload.EdxVideoID)
	require.NoError(t, err)
	assert.NotEqual(t, v.Key, edxID)
	assert.Equal(t, payload.EdxVideoID, f.client.Posts["endpoint-2"][0].EdxVideoID)

	_, err = f.uc.Publish(context.Background(), hls.ID)
	require.NoError(t, err)
	require.Len(t, f.client.Posts["endpoint-1"], 2)
	assert.NotEqual(t, payload.EdxVideoID, f.client.Posts["endpoint-1"][1].EdxVideoID, "each publish mints a fresh id")
	assert.Equal(t, "file_complete", payload.Status)
	assert.Equal(t, []map[string]any{{"course-v1:MITx+6.046+2017": nil}}, payload.Courses)
	require.Len(t, payload.EncodedVideos, 1)
	assert.Equal(t, "hls", payload.EncodedVideos[0].Profile)
	assert.True(t, strings.HasPrefix(payload.EncodedVideos[0].URL, "https://cdn.test/"+hls.ObjectKey+"?Expires="))
}

func TestPublish_UnauthorizedRefreshesOnce(t *testing.T) {
	f := newFixture(t, fresh("edx"))
	f.client.Responses["edx"] = []int{401, 201}
	_, hls := f.completeVideo(t, "Lecture 1")

	res, err := f.uc.Publish(context.Background(), hls.ID)

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"edx": 201}, res)
	assert.Equal(t, []string{"edx"}, f.client.Refreshed)
	stored, err := f.endpoints.FindByName(context.Background(), "edx")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-edx", stored.AccessToken)
}

func TestPublish_SecondUnauthorizedIsRecorded(t *testing.T) {
	f := newFixture(t, fresh("edx"), fresh("other"))
	f.client.Responses["edx"] = []int{401, 401}
	_, hls := f.completeVideo(t, "Lecture 1")

	res, err := f.uc.Publish(context.Background(), hls.ID)

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"edx": 401, "other": 200}, res)
	assert.Len(t, f.client.Posts["edx"], 2)
}

func TestPublish_ExpiredTokenIsRefreshedFirst(t *testing.T) {
	stale := fresh("edx")
	stale.UpdatedAt = time.Now().Add(-2 * time.Hour)
	f := newFixture(t, stale)
	_, hls := f.completeVideo(t, "Lecture 1")

	_, err := f.uc.Publish(context.Background(), hls.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"edx"}, f.client.Refreshed)
}

func TestPublish_FallsBackToGlobalDefault(t *testing.T) {
	def := fresh("default")
	def.IsGlobalDefault = true
	f := newFixture(t)
	f.endpoints = memory.NewCourseware(def)
	f.uc.endpointRepo = f.endpoints
	_, hls := f.completeVideo(t, "Lecture 1")

	res, err := f.uc.Publish(context.Background(), hls.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"default": 200}, res)
}

func TestPublish_RejectsNonHLSFile(t *testing.T) {
	f := newFixture(t, fresh("edx"))
	v, _ := f.completeVideo(t, "Lecture 1")
	mp4 := &video.File{ObjectKey: "x/video_hd", Bucket: "out", VideoKey: v.Key, Encoding: video.EncodingHD}
	require.NoError(t, f.files.Save(context.Background(), mp4))

	_, err := f.uc.Publish(context.Background(), mp4.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestPublish_NoCourseIsNoop(t *testing.T) {
	f := newFixture(t, fresh("edx"))
	f.col.EdxCourseID = ""
	require.NoError(t, f.collections.Update(context.Background(), f.col))
	_, hls := f.completeVideo(t, "Lecture 1")

	res, err := f.uc.Publish(context.Background(), hls.ID)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Empty(t, f.client.Posts)
}

func TestBatchPublish_Chunks(t *testing.T) {
	f := newFixture(t)
	keys := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	require.NoError(t, f.uc.BatchPublish(context.Background(), keys))

	require.Len(t, f.queue.Tasks, 2)
	assert.Equal(t, service.TaskPublishBatch, f.queue.Tasks[0].Type)
	assert.Equal(t, keys[:2], f.queue.Tasks[0].VideoKeys)
	assert.Equal(t, keys[2:], f.queue.Tasks[1].VideoKeys)
}

func TestPublishChunk_SkipsVideosWithoutHLS(t *testing.T) {
	f := newFixture(t, fresh("edx"))
	v, _ := f.completeVideo(t, "Lecture 1")

	require.NoError(t, f.uc.PublishChunk(context.Background(), []uuid.UUID{uuid.New(), v.Key}))
	assert.Len(t, f.client.Posts["edx"], 1)
}

func TestPublishFiles_Concurrent(t *testing.T) {
	f := newFixture(t, fresh("edx"))
	var ids []int64
	for i := range 5 {
		_, hls := f.completeVideo(t, fmt.Sprintf("Lecture %d", i))
		ids = append(ids, hls.ID)
	}

	out, err := f.uc.PublishFiles(context.Background(), ids, 2)
	require.NoError(t, err)
	assert.Len(t, out, 5)
	for _, id := range ids {
		assert.Equal(t, map[string]int{"edx": 200}, out[id])
	}
}
