package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/externalhost"
	"github.com/khoahotran/lecture-video/pkg/apperror"
)

func TestDeleteVideo_ReleasesEveryObject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, v := h.seedVideo(t)
	h.complete(t, v, "v1")
	_, err := h.subtitles.Upload(ctx, SubtitleInput{VideoKey: v.Key, Language: "en", Filename: "en.vtt", Body: strings.NewReader("WEBVTT\n")})
	require.NoError(t, err)
	require.NoError(t, h.hosted.Save(ctx, &externalhost.Video{VideoKey: v.Key, ExternalID: "yt-1", Status: externalhost.StatusProcessed}))
	h.queue.Drain()

	require.NoError(t, h.deleter.DeleteVideo(ctx, v.Key))

	_, err = h.videos.FindByKey(ctx, v.Key)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Empty(t, h.store.Keys("out", fmt.Sprintf("transcoded/%d/%s/", c.OwnerID, v.SubKey)))
	assert.Empty(t, h.store.Keys("thumbs", ""))
	assert.Empty(t, h.store.Keys("subs", ""))
	assert.Empty(t, h.store.Keys("src", ""))

	tasks := h.queue.Drain()
	require.Len(t, tasks, 1)
	assert.Equal(t, service.Task{Type: service.TaskRemoveExternalHost, VideoKey: v.Key, ExternalID: "yt-1"}, tasks[0])
}

func TestDeleteVideo_StorageFailureStillDeletesRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, v := h.seedVideo(t)
	h.store.FailDelete = func(string) error { return apperror.NewStorage(true, "throttled", nil) }

	require.NoError(t, h.deleter.DeleteVideo(ctx, v.Key))
	_, err := h.videos.FindByKey(ctx, v.Key)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteCollection_DeletesVideos(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, v := h.seedVideo(t)
	other := h.addVideo(t, c.Key)

	require.NoError(t, h.deleter.DeleteCollection(ctx, c.Key))

	for _, key := range []uuid.UUID{v.Key, other.Key} {
		_, err := h.videos.FindByKey(ctx, key)
		assert.ErrorIs(t, err, apperror.ErrNotFound, key.String())
	}
	_, err := h.collections.FindByKey(ctx, c.Key)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
