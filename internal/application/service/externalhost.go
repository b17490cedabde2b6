package service

import (
	"context"
	"io"

	"github.com/khoahotran/lecture-video/internal/domain/externalhost"
)

type HostedVideo struct {
	Title       string
	Description string
	Privacy     externalhost.Privacy
	// Path is a local file holding the full source bytes.
	Path string
}

type HostedUpload struct {
	ExternalID string
	Status     externalhost.Status
}

type ExternalHost interface {
	UploadVideo(ctx context.Context, v HostedVideo) (*HostedUpload, error)
	UploadCaption(ctx context.Context, externalID, language, name string, body io.Reader) error
	ListCaptions(ctx context.Context, externalID string) (map[string]string, error)
	UpdateCaption(ctx context.Context, captionID string, body io.Reader) error
	DeleteCaption(ctx context.Context, captionID string) error
	DeleteVideo(ctx context.Context, externalID string) error
	VideoStatus(ctx context.Context, externalID string) (externalhost.Status, error)
}
