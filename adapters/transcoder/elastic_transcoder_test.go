package transcoder

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elastictranscoder"
	"github.com/aws/aws-sdk-go-v2/service/elastictranscoder/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type fakeET struct {
	created   *elastictranscoder.CreateJobInput
	createErr error
	job       *types.Job
	readErr   error
	preset    *types.Preset
}

func (f *fakeET) CreateJob(_ context.Context, in *elastictranscoder.CreateJobInput, _ ...func(*elastictranscoder.Options)) (*elastictranscoder.CreateJobOutput, error) {
	f.created = in
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &elastictranscoder.CreateJobOutput{Job: &types.Job{Id: aws.String("1500000000000-abcdef")}}, nil
}

func (f *fakeET) ReadJob(_ context.Context, _ *elastictranscoder.ReadJobInput, _ ...func(*elastictranscoder.Options)) (*elastictranscoder.ReadJobOutput, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return &elastictranscoder.ReadJobOutput{Job: f.job}, nil
}

func (f *fakeET) ReadPreset(_ context.Context, _ *elastictranscoder.ReadPresetInput, _ ...func(*elastictranscoder.Options)) (*elastictranscoder.ReadPresetOutput, error) {
	return &elastictranscoder.ReadPresetOutput{Preset: f.preset}, nil
}

func newAdapter(f *fakeET) *elasticTranscoderAdapter {
	return &elasticTranscoderAdapter{client: f, pipelineID: "pipe-1", logger: logger.NewNop()}
}

func TestSubmit_BuildsJobPayload(t *testing.T) {
	f := &fakeET{}
	a := newAdapter(f)

	id, err := a.Submit(context.Background(), service.TranscodeRequest{
		InputKey: "1/u/video.mp4",
		Outputs: []service.TranscodeOutput{
			{Key: "transcoded/1/u/video_p1", PresetID: "p1", SegmentDuration: "10", ThumbnailPattern: "thumbnails/1/u/video_thumbnail_{count}"},
			{Key: "transcoded/1/u/video_p2", PresetID: "p2", SegmentDuration: "10"},
		},
		Playlists: []service.TranscodePlaylist{
			{Format: "HLSv3", Name: "transcoded/1/u/video__index", OutputKeys: []string{"transcoded/1/u/video_p1", "transcoded/1/u/video_p2"}},
		},
		UserMetadata: map[string]string{"pipeline": "odl-video-service-test"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1500000000000-abcdef", id)

	in := f.created
	require.NotNil(t, in)
	assert.Equal(t, "pipe-1", aws.ToString(in.PipelineId))
	assert.Equal(t, "1/u/video.mp4", aws.ToString(in.Input.Key))
	require.Len(t, in.Outputs, 2)
	assert.Equal(t, "thumbnails/1/u/video_thumbnail_{count}", aws.ToString(in.Outputs[0].ThumbnailPattern))
	assert.Nil(t, in.Outputs[1].ThumbnailPattern)
	require.Len(t, in.Playlists, 1)
	assert.Equal(t, "HLSv3", aws.ToString(in.Playlists[0].Format))
	assert.Equal(t, "odl-video-service-test", in.UserMetadata["pipeline"])
}

func TestSubmit_WrapsProviderErrors(t *testing.T) {
	a := newAdapter(&fakeET{createErr: &types.ValidationException{Message: aws.String("bad preset")}})

	_, err := a.Submit(context.Background(), service.TranscodeRequest{InputKey: "k"})
	assert.ErrorIs(t, err, apperror.ErrTranscoderSubmit)
}

func TestReadJob_PrefersJobLevelStatusDetail(t *testing.T) {
	a := newAdapter(&fakeET{job: &types.Job{
		Id:     aws.String("j"),
		Status: aws.String("Error"),
		Output: &types.JobOutput{StatusDetail: aws.String("4000 Amazon ET could not interpret the media file.")},
		Outputs: []types.JobOutput{
			{Key: aws.String("a"), PresetId: aws.String("p1"), StatusDetail: aws.String("3001 other")},
		},
	}})

	st, err := a.ReadJob(context.Background(), "j")
	require.NoError(t, err)
	assert.Equal(t, service.JobError, st.State)
	require.NotNil(t, st.StatusDetail)
	assert.Equal(t, "4000 Amazon ET could not interpret the media file.", *st.StatusDetail)
}

func TestReadJob_FallsBackToOutputStatusDetail(t *testing.T) {
	a := newAdapter(&fakeET{job: &types.Job{
		Id:     aws.String("j"),
		Status: aws.String("Error"),
		Outputs: []types.JobOutput{
			{Key: aws.String("a")},
			{Key: aws.String("b"), StatusDetail: aws.String("3001 boom")},
		},
	}})

	st, err := a.ReadJob(context.Background(), "j")
	require.NoError(t, err)
	require.NotNil(t, st.StatusDetail)
	assert.Equal(t, "3001 boom", *st.StatusDetail)
}

func TestReadJob_NotFound(t *testing.T) {
	a := newAdapter(&fakeET{readErr: &types.ResourceNotFoundException{Message: aws.String("gone")}})

	_, err := a.ReadJob(context.Background(), "j")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestReadJob_OtherErrorsAreInternal(t *testing.T) {
	a := newAdapter(&fakeET{readErr: errors.New("connection reset")})

	_, err := a.ReadJob(context.Background(), "j")
	assert.ErrorIs(t, err, apperror.ErrInternal)
}

func TestReadPreset_ParsesThumbnailGeometry(t *testing.T) {
	a := newAdapter(&fakeET{preset: &types.Preset{
		Id:         aws.String("1351620000001-200015"),
		Container:  aws.String("ts"),
		Thumbnails: &types.Thumbnails{MaxWidth: aws.String("192"), MaxHeight: aws.String("auto")},
	}})

	p, err := a.ReadPreset(context.Background(), "1351620000001-200015")
	require.NoError(t, err)
	assert.Equal(t, "ts", p.Container)
	assert.Equal(t, 192, p.ThumbMaxWidth)
	assert.Equal(t, 0, p.ThumbMaxHeight)
}
