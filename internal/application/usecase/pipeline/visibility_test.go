package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/internal/application/events"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/pkg/apperror"
)

func TestSetVisibility_RejectsPublicAndPrivate(t *testing.T) {
	h := newHarness(t)
	_, v := h.seedVideo(t)

	_, err := h.visibility.SetVisibility(context.Background(), VisibilityInput{VideoKey: v.Key, IsPublic: true, IsPrivate: true})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestSetVisibility_PublicNeedsSubtitle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, v := h.seedVideo(t)

	_, err := h.visibility.SetVisibility(ctx, VisibilityInput{VideoKey: v.Key, IsPublic: true})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)
	assert.Empty(t, h.pub.Events)

	_, err = h.subtitles.Upload(ctx, SubtitleInput{VideoKey: v.Key, Language: "en", Filename: "en.vtt", Body: strings.NewReader("WEBVTT\n")})
	require.NoError(t, err)
	h.pub.Events = nil

	got, err := h.visibility.SetVisibility(ctx, VisibilityInput{VideoKey: v.Key, IsPublic: true, ViewLists: []string{"a", "a"}})
	require.NoError(t, err)
	assert.True(t, got.IsPublic)
	assert.Equal(t, []string{"a"}, got.ViewLists)
	assert.Equal(t, []events.Event{events.VideoBecamePublic{VideoKey: v.Key}}, h.pub.Events)

	_, err = h.visibility.SetVisibility(ctx, VisibilityInput{VideoKey: v.Key, IsPrivate: true})
	require.NoError(t, err)
	assert.Equal(t, events.VideoBecamePrivate{VideoKey: v.Key}, h.pub.Events[1])
}

func TestSetStreamSource_EmitsChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.seedVideo(t)

	require.NoError(t, h.visibility.SetStreamSource(ctx, c.Key, collection.StreamCDN))
	require.NoError(t, h.visibility.SetStreamSource(ctx, c.Key, collection.StreamCDN))

	require.Len(t, h.pub.Events, 1)
	ev := h.pub.Events[0].(events.CollectionStreamSourceChanged)
	assert.Equal(t, collection.StreamCDN, ev.To)

	err := h.visibility.SetStreamSource(ctx, c.Key, "ftp")
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}
