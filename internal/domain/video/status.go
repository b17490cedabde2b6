package video

import (
	"errors"
	"fmt"
)

type VideoStatus string

const (
	StatusCreated                 VideoStatus = "Created"
	StatusUploading               VideoStatus = "Uploading"
	StatusUploadFailed            VideoStatus = "Upload failed"
	StatusTranscoding             VideoStatus = "Transcoding"
	StatusTranscodeFailedInternal VideoStatus = "Transcode failed internal error"
	StatusTranscodeFailedVideo    VideoStatus = "Transcode failed video error"
	StatusRetranscodeScheduled    VideoStatus = "Retranscode scheduled"
	StatusRetranscoding           VideoStatus = "Retranscoding"
	StatusRetranscodeFailed       VideoStatus = "Retranscode failed error"
	StatusComplete                VideoStatus = "Complete"
	StatusError                   VideoStatus = "Error"
)

var (
	ErrUnknownStatus     = errors.New("unknown video status")
	ErrIllegalTransition = errors.New("illegal video status transition")
)

var allStatuses = []VideoStatus{
	StatusCreated, StatusUploading, StatusUploadFailed, StatusTranscoding,
	StatusTranscodeFailedInternal, StatusTranscodeFailedVideo, StatusRetranscodeScheduled,
	StatusRetranscoding, StatusRetranscodeFailed, StatusComplete, StatusError,
}

func (s VideoStatus) Valid() bool {
	for _, st := range allStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// InFlight reports whether a transcoder job is expected to be running.
func (s VideoStatus) InFlight() bool {
	return s == StatusTranscoding || s == StatusRetranscoding
}

// Failed reports whether s is one of the failure terminals.
func (s VideoStatus) Failed() bool {
	switch s {
	case StatusUploadFailed, StatusTranscodeFailedInternal, StatusTranscodeFailedVideo,
		StatusRetranscodeFailed, StatusError:
		return true
	}
	return false
}

type Event string

const (
	EventUploadStart          Event = "upload_start"
	EventUploadOK             Event = "upload_ok"
	EventUploadErr            Event = "upload_err"
	EventSubmitOK             Event = "submit_ok"
	EventSubmitErr            Event = "submit_err"
	EventJobComplete          Event = "job_complete"
	EventJobVideoError        Event = "job_video_error"
	EventJobInternalError     Event = "job_internal_error"
	EventRetranscodeRequested Event = "retranscode_requested"
	EventFatal                Event = "fatal"
)

type transitionKey struct {
	from VideoStatus
	ev   Event
}

var transitions = map[transitionKey]VideoStatus{
	{StatusCreated, EventUploadStart}:          StatusUploading,
	{StatusUploading, EventUploadOK}:           StatusCreated,
	{StatusUploading, EventUploadErr}:          StatusUploadFailed,
	{StatusCreated, EventSubmitOK}:             StatusTranscoding,
	{StatusCreated, EventSubmitErr}:            StatusTranscodeFailedInternal,
	{StatusTranscoding, EventJobComplete}:      StatusComplete,
	{StatusTranscoding, EventJobVideoError}:    StatusTranscodeFailedVideo,
	{StatusTranscoding, EventJobInternalError}: StatusTranscodeFailedInternal,

	// a failed transcode can be resubmitted from the control interface
	{StatusTranscodeFailedInternal, EventSubmitOK}:  StatusTranscoding,
	{StatusTranscodeFailedInternal, EventSubmitErr}: StatusTranscodeFailedInternal,
	{StatusTranscodeFailedVideo, EventSubmitOK}:     StatusTranscoding,
	{StatusTranscodeFailedVideo, EventSubmitErr}:    StatusTranscodeFailedInternal,

	{StatusComplete, EventRetranscodeRequested}:          StatusRetranscodeScheduled,
	{StatusRetranscodeFailed, EventRetranscodeRequested}: StatusRetranscodeScheduled,
	{StatusRetranscodeScheduled, EventSubmitOK}:          StatusRetranscoding,
	{StatusRetranscodeScheduled, EventSubmitErr}:         StatusRetranscodeFailed,
	{StatusRetranscoding, EventJobComplete}:              StatusComplete,
	{StatusRetranscoding, EventJobVideoError}:            StatusRetranscodeFailed,
	{StatusRetranscoding, EventJobInternalError}:         StatusRetranscodeFailed,
}

// Next returns the status reached from `from` on `ev`.
func Next(from VideoStatus, ev Event) (VideoStatus, error) {
	if !from.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if ev == EventFatal {
		if from == StatusComplete || from.Failed() {
			return "", fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, from)
		}
		return StatusError, nil
	}
	to, ok := transitions[transitionKey{from, ev}]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, from)
	}
	return to, nil
}

// CanSubmitTranscode reports whether a first-time transcode may be submitted from s.
func CanSubmitTranscode(s VideoStatus) bool {
	_, err := Next(s, EventSubmitOK)
	return err == nil && s != StatusRetranscodeScheduled
}
