package transcoder

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elastictranscoder"
	"github.com/aws/aws-sdk-go-v2/service/elastictranscoder/types"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

// etAPI is the subset of the Elastic Transcoder client the adapter calls.
type etAPI interface {
	CreateJob(ctx context.Context, in *elastictranscoder.CreateJobInput, optFns ...func(*elastictranscoder.Options)) (*elastictranscoder.CreateJobOutput, error)
	ReadJob(ctx context.Context, in *elastictranscoder.ReadJobInput, optFns ...func(*elastictranscoder.Options)) (*elastictranscoder.ReadJobOutput, error)
	ReadPreset(ctx context.Context, in *elastictranscoder.ReadPresetInput, optFns ...func(*elastictranscoder.Options)) (*elastictranscoder.ReadPresetOutput, error)
}

type elasticTranscoderAdapter struct {
	client     etAPI
	pipelineID string
	timeout    time.Duration
	logger     logger.Logger
}

func NewElasticTranscoderAdapter(awsCfg aws.Config, cfg config.Config, log logger.Logger) service.Transcoder {
	return &elasticTranscoderAdapter{
		client:     elastictranscoder.NewFromConfig(awsCfg),
		pipelineID: cfg.Transcoder.PipelineID,
		timeout:    cfg.Transcoder.Timeout,
		logger:     log,
	}
}

func (a *elasticTranscoderAdapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *elasticTranscoderAdapter) Submit(ctx context.Context, req service.TranscodeRequest) (string, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	outputs := make([]types.CreateJobOutput, 0, len(req.Outputs))
	for _, o := range req.Outputs {
		out := types.CreateJobOutput{
			Key:      aws.String(o.Key),
			PresetId: aws.String(o.PresetID),
		}
		if o.SegmentDuration != "" {
			out.SegmentDuration = aws.String(o.SegmentDuration)
		}
		if o.ThumbnailPattern != "" {
			out.ThumbnailPattern = aws.String(o.ThumbnailPattern)
		}
		outputs = append(outputs, out)
	}
	playlists := make([]types.CreateJobPlaylist, 0, len(req.Playlists))
	for _, p := range req.Playlists {
		playlists = append(playlists, types.CreateJobPlaylist{
			Format:     aws.String(p.Format),
			Name:       aws.String(p.Name),
			OutputKeys: p.OutputKeys,
		})
	}

	out, err := a.client.CreateJob(ctx, &elastictranscoder.CreateJobInput{
		PipelineId:   aws.String(a.pipelineID),
		Input:        &types.JobInput{Key: aws.String(req.InputKey)},
		Outputs:      outputs,
		Playlists:    playlists,
		UserMetadata: req.UserMetadata,
	})
	if err != nil {
		return "", apperror.NewTranscoderSubmit("create job for "+req.InputKey, err)
	}
	if out.Job == nil || aws.ToString(out.Job.Id) == "" {
		return "", apperror.NewTranscoderSubmit("create job for "+req.InputKey, errors.New("response carried no job id"))
	}

	a.logger.Info("Submitted transcode job",
		zap.String("job_id", aws.ToString(out.Job.Id)), zap.String("input_key", req.InputKey), zap.Int("outputs", len(outputs)))
	return aws.ToString(out.Job.Id), nil
}

func (a *elasticTranscoderAdapter) ReadJob(ctx context.Context, jobID string) (*service.JobStatus, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	out, err := a.client.ReadJob(ctx, &elastictranscoder.ReadJobInput{Id: aws.String(jobID)})
	if err != nil {
		return nil, readError("transcode job", jobID, err)
	}
	if out.Job == nil {
		return nil, apperror.NewNotFound("transcode job", jobID)
	}
	return toJobStatus(out.Job), nil
}

func toJobStatus(job *types.Job) *service.JobStatus {
	st := &service.JobStatus{
		ID:    aws.ToString(job.Id),
		State: service.JobState(aws.ToString(job.Status)),
	}
	for _, o := range job.Outputs {
		st.Outputs = append(st.Outputs, service.JobOutput{
			Key:              aws.ToString(o.Key),
			PresetID:         aws.ToString(o.PresetId),
			ThumbnailPattern: aws.ToString(o.ThumbnailPattern),
			Status:           aws.ToString(o.Status),
			StatusDetail:     aws.ToString(o.StatusDetail),
		})
	}
	for _, p := range job.Playlists {
		st.Playlists = append(st.Playlists, service.JobPlaylist{
			Name:       aws.ToString(p.Name),
			Format:     aws.ToString(p.Format),
			OutputKeys: p.OutputKeys,
			Status:     aws.ToString(p.Status),
		})
	}

	// The job-level output carries the error detail; fall back to the first output that has one.
	if job.Output != nil && job.Output.StatusDetail != nil {
		st.StatusDetail = job.Output.StatusDetail
	} else {
		for _, o := range job.Outputs {
			if aws.ToString(o.StatusDetail) != "" {
				st.StatusDetail = o.StatusDetail
				break
			}
		}
	}
	return st
}

func (a *elasticTranscoderAdapter) ReadPreset(ctx context.Context, presetID string) (*service.Preset, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	out, err := a.client.ReadPreset(ctx, &elastictranscoder.ReadPresetInput{Id: aws.String(presetID)})
	if err != nil {
		return nil, readError("transcode preset", presetID, err)
	}
	if out.Preset == nil {
		return nil, apperror.NewNotFound("transcode preset", presetID)
	}
	p := &service.Preset{
		ID:        aws.ToString(out.Preset.Id),
		Container: aws.ToString(out.Preset.Container),
	}
	if t := out.Preset.Thumbnails; t != nil {
		p.ThumbMaxWidth = dimension(t.MaxWidth)
		p.ThumbMaxHeight = dimension(t.MaxHeight)
	}
	return p, nil
}

// dimension parses a preset pixel size; "auto" and malformed values read as 0.
func dimension(v *string) int {
	n, err := strconv.Atoi(aws.ToString(v))
	if err != nil {
		return 0
	}
	return n
}

func readError(resource, id string, err error) error {
	var nf *types.ResourceNotFoundException
	if errors.As(err, &nf) {
		return apperror.NewNotFound(resource, id)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperror.NewInternal("read "+resource+" "+id, err)
}
