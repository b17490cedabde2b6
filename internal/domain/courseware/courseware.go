package courseware

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrEndpointNotFound = errors.New("courseware endpoint not found")

// Endpoint is a courseware instance accepting published HLS metadata.
type Endpoint struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	BaseURL         string    `json:"base_url"`
	HLSAPIPath      string    `json:"hls_api_path"`
	AccessToken     string    `json:"-"`
	RefreshToken    string    `json:"-"`
	ClientID        string    `json:"client_id"`
	ClientSecret    string    `json:"-"`
	ExpiresIn       int       `json:"expires_in"`
	IsGlobalDefault bool      `json:"is_global_default"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ExpiresAt is when the stored access token stops being valid.
func (e *Endpoint) ExpiresAt() time.Time {
	return e.UpdatedAt.Add(time.Duration(e.ExpiresIn) * time.Second)
}

// NeedsRefresh reports expiry within the given margin.
func (e *Endpoint) NeedsRefresh(now time.Time, margin time.Duration) bool {
	if e.AccessToken == "" || e.ExpiresIn <= 0 {
		return true
	}
	return !now.Add(margin).Before(e.ExpiresAt())
}

type Repository interface {
	UpdateCredentials(ctx context.Context, e *Endpoint) error
	FindByName(ctx context.Context, name string) (*Endpoint, error)
	// ListForCollection returns the collection's endpoints, or the global default
	// when none is associated.
	ListForCollection(ctx context.Context, collectionKey uuid.UUID) ([]*Endpoint, error)
	ListAll(ctx context.Context) ([]*Endpoint, error)
	Associate(ctx context.Context, collectionKey uuid.UUID, endpointID int64) error
}
