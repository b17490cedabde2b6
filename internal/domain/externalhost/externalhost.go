package externalhost

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
	StatusRejected   Status = "rejected"
	StatusDeleted    Status = "deleted"
)

// Terminal reports whether reconciliation should stop polling.
func (s Status) Terminal() bool {
	switch s {
	case StatusProcessed, StatusFailed, StatusRejected, StatusDeleted:
		return true
	}
	return false
}

// Dead reports whether the hosted copy must be removed.
func (s Status) Dead() bool {
	return s == StatusFailed || s == StatusRejected
}

type Privacy string

const (
	PrivacyPublic   Privacy = "public"
	PrivacyUnlisted Privacy = "unlisted"
	PrivacyPrivate  Privacy = "private"
)

var ErrNotFound = errors.New("external host video not found")

// Video links a local video to its copy on the external host.
type Video struct {
	VideoKey   uuid.UUID `json:"video_key"`
	ExternalID string    `json:"external_id,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Repository interface {
	Save(ctx context.Context, v *Video) error
	Update(ctx context.Context, v *Video) error
	Delete(ctx context.Context, videoKey uuid.UUID) error
	FindByVideo(ctx context.Context, videoKey uuid.UUID) (*Video, error)
	ListNonTerminal(ctx context.Context) ([]*Video, error)
}
