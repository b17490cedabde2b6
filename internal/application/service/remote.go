package service

import (
	"context"
	"io"
)

type RemoteObject struct {
	Body        io.ReadCloser
	ContentType string
	// Size is -1 when the remote does not announce a length.
	Size int64
}

// RemoteSource opens a shared link (e.g. a Dropbox download URL) for streaming.
type RemoteSource interface {
	Open(ctx context.Context, url string) (*RemoteObject, error)
}
