package video

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrVideoNotFound       = errors.New("video not found")
	ErrPublicAndPrivate    = errors.New("video cannot be both public and private")
	ErrVideoFileNotFound   = errors.New("video file not found")
	ErrSubtitleNotFound    = errors.New("video subtitle not found")
	ErrThumbnailNotFound   = errors.New("video thumbnail not found")
	ErrTranscodeJobMissing = errors.New("transcode job not found")
)

type Video struct {
	Key                  uuid.UUID   `json:"key"`
	SubKey               uuid.UUID   `json:"sub_key"`
	CollectionKey        uuid.UUID   `json:"collection_key"`
	Title                string      `json:"title"`
	Description          string      `json:"description"`
	SourceURL            string      `json:"source_url"`
	Status               VideoStatus `json:"status"`
	IsPublic             bool        `json:"is_public"`
	IsPrivate            bool        `json:"is_private"`
	IsLoggedInOnly       bool        `json:"is_logged_in_only"`
	Multiangle           bool        `json:"multiangle"`
	ViewLists            []string    `json:"view_lists"`
	RetranscodeScheduled bool        `json:"retranscode_scheduled"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// New returns a video in CREATED with fresh key and sub-key.
func New(collectionKey uuid.UUID, title, sourceURL string) *Video {
	now := time.Now().UTC()
	return &Video{
		Key:           uuid.New(),
		SubKey:        uuid.New(),
		CollectionKey: collectionKey,
		Title:         title,
		SourceURL:     sourceURL,
		Status:        StatusCreated,
		ViewLists:     []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (v *Video) Validate() error {
	if v.IsPublic && v.IsPrivate {
		return ErrPublicAndPrivate
	}
	if !v.Status.Valid() {
		return ErrUnknownStatus
	}
	return nil
}

// Apply moves the video along the status machine.
func (v *Video) Apply(ev Event) error {
	next, err := Next(v.Status, ev)
	if err != nil {
		return err
	}
	v.Status = next
	v.UpdatedAt = time.Now().UTC()
	return nil
}

type Filter struct {
	VideoKeys      []uuid.UUID
	CollectionKeys []uuid.UUID
	CourseID       string
	EndpointName   string
	OwnerUsername  string
	Statuses       []VideoStatus
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	Title          string
}

type Repository interface {
	// CreateWithFile inserts the video and its original file in one transaction.
	CreateWithFile(ctx context.Context, v *Video, f *File) error
	Save(ctx context.Context, v *Video) error
	Update(ctx context.Context, v *Video) error
	// UpdateStatus persists status only if the stored status still equals from.
	UpdateStatus(ctx context.Context, key uuid.UUID, from, to VideoStatus) (bool, error)
	ChangeKey(ctx context.Context, oldKey, newKey uuid.UUID) error
	Delete(ctx context.Context, key uuid.UUID) error
	FindByKey(ctx context.Context, key uuid.UUID) (*Video, error)
	FindBySubKey(ctx context.Context, subKey uuid.UUID) (*Video, error)
	ListByStatus(ctx context.Context, statuses ...VideoStatus) ([]*Video, error)
	ListByCollection(ctx context.Context, collectionKey uuid.UUID) ([]*Video, error)
	ListRetranscodeScheduled(ctx context.Context) ([]*Video, error)
	Find(ctx context.Context, f Filter) ([]*Video, error)
}
