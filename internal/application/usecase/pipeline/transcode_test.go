package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/internal/application/events"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
)

func TestBuildTranscodeRequest(t *testing.T) {
	s := Settings{
		Presets:         []string{"p1", "p2", "mp4"},
		PresetEncodings: map[string]video.Encoding{"mp4": video.EncodingHD},
		SegmentDuration: "10",
		PipelineName:    "lecture-video-prod",
	}
	keys := video.Keys{OwnerID: 7, SubKey: "sub"}

	req := BuildTranscodeRequest(s, "7/sub/video.mp4", keys)

	assert.Equal(t, "7/sub/video.mp4", req.InputKey)
	assert.Equal(t, map[string]string{"pipeline": "lecture-video-prod"}, req.UserMetadata)
	require.Len(t, req.Outputs, 3)
	assert.Equal(t, "transcoded/7/sub/video_p1", req.Outputs[0].Key)
	assert.Equal(t, "10", req.Outputs[0].SegmentDuration)
	assert.Equal(t, "thumbnails/7/sub/video_thumbnail_{count}", req.Outputs[0].ThumbnailPattern)
	assert.Empty(t, req.Outputs[1].ThumbnailPattern)
	assert.Empty(t, req.Outputs[2].SegmentDuration)
	require.Len(t, req.Playlists, 1)
	assert.Equal(t, "HLSv3", req.Playlists[0].Format)
	assert.Equal(t, "transcoded/7/sub/video__index", req.Playlists[0].Name)
	assert.Equal(t, []string{"transcoded/7/sub/video_p1", "transcoded/7/sub/video_p2"}, req.Playlists[0].OutputKeys)

	staged := BuildTranscodeRequest(s, "7/sub/video.mp4", keys.Staging())
	assert.Equal(t, "retranscode/transcoded/7/sub/video_p1", staged.Outputs[0].Key)
	assert.Equal(t, "retranscode/thumbnails/7/sub/video_thumbnail_{count}", staged.Outputs[0].ThumbnailPattern)
	assert.Equal(t, "retranscode/transcoded/7/sub/video__index", staged.Playlists[0].Name)
	assert.Equal(t, "7/sub/video.mp4", staged.InputKey)
}

func TestTranscode_RecordsJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, v := h.seedVideo(t)

	require.NoError(t, h.transcode.Execute(ctx, TranscodeInput{VideoKey: v.Key}))

	job, err := h.jobs.LatestForVideo(ctx, v.Key)
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "Submitted", job.State)
	assert.Equal(t, video.StatusTranscoding, h.status(t, v))
}

func TestTranscode_DuplicateTaskIsSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, v := h.seedVideo(t)

	require.NoError(t, h.transcode.Execute(ctx, TranscodeInput{VideoKey: v.Key}))
	require.NoError(t, h.transcode.Execute(ctx, TranscodeInput{VideoKey: v.Key}))

	assert.Len(t, h.transcoder.Submitted, 1)
}

func TestTranscode_SubmitErrorFailsVideo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, v := h.seedVideo(t)
	h.transcoder.SubmitErr = errors.New("pipeline paused")

	err := h.transcode.Execute(ctx, TranscodeInput{VideoKey: v.Key})

	assert.ErrorIs(t, err, apperror.ErrTranscoderSubmit)
	assert.False(t, apperror.IsRetriable(err))
	assert.Equal(t, video.StatusTranscodeFailedInternal, h.status(t, v))
	require.Len(t, h.pub.Events, 1)
	assert.Equal(t, events.VideoFailed{VideoKey: v.Key, Status: video.StatusTranscodeFailedInternal}, h.pub.Events[0])
}

func TestTranscode_FailedVideoCanBeResubmitted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, v := h.seedVideo(t)
	_, err := h.videos.UpdateStatus(ctx, v.Key, video.StatusCreated, video.StatusTranscodeFailedVideo)
	require.NoError(t, err)

	require.NoError(t, h.transcode.Execute(ctx, TranscodeInput{VideoKey: v.Key}))
	assert.Equal(t, video.StatusTranscoding, h.status(t, v))
}

func TestTranscode_RetranscodeRequiresScheduledStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, v := h.seedVideo(t)

	require.NoError(t, h.transcode.Execute(ctx, TranscodeInput{VideoKey: v.Key, Retranscode: true}))
	assert.Empty(t, h.transcoder.Submitted)
	assert.Equal(t, video.StatusCreated, h.status(t, v))
}

func TestTranscode_MissingVideoIsSkipped(t *testing.T) {
	h := newHarness(t)
	v := video.New(uuid.New(), "gone", "")
	assert.NoError(t, h.transcode.Execute(context.Background(), TranscodeInput{VideoKey: v.Key}))
}
