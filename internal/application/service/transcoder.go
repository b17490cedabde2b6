package service

import "context"

type JobState string

const (
	JobSubmitted   JobState = "Submitted"
	JobProgressing JobState = "Progressing"
	JobComplete    JobState = "Complete"
	JobError       JobState = "Error"
	JobCanceled    JobState = "Canceled"
)

type TranscodeOutput struct {
	Key              string
	PresetID         string
	SegmentDuration  string
	ThumbnailPattern string
}

type TranscodePlaylist struct {
	Format     string
	Name       string
	OutputKeys []string
}

type TranscodeRequest struct {
	InputKey     string
	Outputs      []TranscodeOutput
	Playlists    []TranscodePlaylist
	UserMetadata map[string]string
}

type JobOutput struct {
	Key              string
	PresetID         string
	ThumbnailPattern string
	Status           string
	StatusDetail     string
}

type JobPlaylist struct {
	Name       string
	Format     string
	OutputKeys []string
	Status     string
}

type JobStatus struct {
	ID           string
	State        JobState
	Outputs      []JobOutput
	Playlists    []JobPlaylist
	StatusDetail *string
}

type Preset struct {
	ID             string
	Container      string
	ThumbMaxWidth  int
	ThumbMaxHeight int
}

type Transcoder interface {
	Submit(ctx context.Context, req TranscodeRequest) (string, error)
	ReadJob(ctx context.Context, jobID string) (*JobStatus, error)
	ReadPreset(ctx context.Context, presetID string) (*Preset, error)
}
