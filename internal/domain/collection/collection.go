package collection

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type StreamSource string

const (
	StreamExternalHost StreamSource = "youtube"
	StreamCDN          StreamSource = "cloudfront"
	StreamEither       StreamSource = "either"
)

func (s StreamSource) Valid() bool {
	return s == StreamExternalHost || s == StreamCDN || s == StreamEither
}

// AllowsExternalHost reports whether public videos get a hosted copy.
func (s StreamSource) AllowsExternalHost() bool {
	return s != StreamCDN
}

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrMissingOwner       = errors.New("collection owner is required")
	ErrInvalidSlug        = errors.New("invalid collection slug")

	slugRegex = regexp.MustCompile(`^[^/\\\x00-\x1f]+$`)
)

type Collection struct {
	Key                  uuid.UUID    `json:"key"`
	Title                string       `json:"title"`
	Slug                 string       `json:"slug"`
	Description          string       `json:"description"`
	OwnerID              int64        `json:"owner_id"`
	ViewLists            []string     `json:"view_lists"`
	AdminLists           []string     `json:"admin_lists"`
	StreamSource         StreamSource `json:"stream_source"`
	EdxCourseID          string       `json:"edx_course_id,omitempty"`
	RetranscodeScheduled bool         `json:"retranscode_scheduled"`
	IsLoggedInOnly       bool         `json:"is_logged_in_only"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

func New(ownerID int64, title, slug string) *Collection {
	now := time.Now().UTC()
	return &Collection{
		Key:        uuid.New(),
		Title:      title,
		Slug:       slug,
		OwnerID:    ownerID,
		ViewLists:  []string{},
		AdminLists: []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (c *Collection) Validate() error {
	if c.OwnerID == 0 {
		return ErrMissingOwner
	}
	if c.Slug != "" && !slugRegex.MatchString(c.Slug) {
		return ErrInvalidSlug
	}
	c.ViewLists = Dedupe(c.ViewLists)
	c.AdminLists = Dedupe(c.AdminLists)
	return nil
}

// Dedupe trims and deduplicates list names, keeping first-seen order.
func Dedupe(lists []string) []string {
	seen := make(map[string]struct{}, len(lists))
	out := make([]string, 0, len(lists))
	for _, l := range lists {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

type Repository interface {
	Save(ctx context.Context, c *Collection) error
	Update(ctx context.Context, c *Collection) error
	Delete(ctx context.Context, key uuid.UUID) error
	FindByKey(ctx context.Context, key uuid.UUID) (*Collection, error)
	FindBySlug(ctx context.Context, ownerID int64, slug string) (*Collection, error)
	ListByCourseID(ctx context.Context, courseID string) ([]*Collection, error)
	ListRetranscodeScheduled(ctx context.Context) ([]*Collection, error)
}
