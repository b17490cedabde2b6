package video

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Encoding string

const (
	EncodingOriginal Encoding = "original"
	EncodingHLS      Encoding = "HLS"
	EncodingHD       Encoding = "HD"
	EncodingLarge    Encoding = "large"
	EncodingMedium   Encoding = "medium"
	EncodingBasic    Encoding = "basic"
	EncodingSmall    Encoding = "small"
)

func (e Encoding) Valid() bool {
	switch e {
	case EncodingOriginal, EncodingHLS, EncodingHD, EncodingLarge, EncodingMedium, EncodingBasic, EncodingSmall:
		return true
	}
	return false
}

// File is one stored rendition (or the original upload) of a video.
type File struct {
	ID        int64     `json:"id"`
	ObjectKey string    `json:"object_key"`
	Bucket    string    `json:"bucket"`
	VideoKey  uuid.UUID `json:"video_key"`
	Encoding  Encoding  `json:"encoding"`
	PresetID  string    `json:"preset_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Thumbnail struct {
	ID        int64     `json:"id"`
	ObjectKey string    `json:"object_key"`
	Bucket    string    `json:"bucket"`
	VideoKey  uuid.UUID `json:"video_key"`
	MaxWidth  int       `json:"max_width"`
	MaxHeight int       `json:"max_height"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Subtitle struct {
	ID        int64     `json:"id"`
	ObjectKey string    `json:"object_key"`
	Bucket    string    `json:"bucket"`
	VideoKey  uuid.UUID `json:"video_key"`
	Language  string    `json:"language"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TranscodeJob records a submitted transcoder job and its last observed message.
type TranscodeJob struct {
	ID          string         `json:"id"`
	VideoKey    uuid.UUID      `json:"video_key"`
	State       string         `json:"state"`
	LastMessage map[string]any `json:"last_message"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type FileRepository interface {
	Save(ctx context.Context, f *File) error
	// Upsert inserts or refreshes the row identified by ObjectKey.
	Upsert(ctx context.Context, f *File) error
	Delete(ctx context.Context, id int64) error
	FindByID(ctx context.Context, id int64) (*File, error)
	ListByVideo(ctx context.Context, videoKey uuid.UUID) ([]*File, error)
	FindByVideoAndEncoding(ctx context.Context, videoKey uuid.UUID, enc Encoding) (*File, error)
	// ListDuplicates returns every row of a (video, encoding) group holding more than one row.
	ListDuplicates(ctx context.Context) ([]*File, error)
	List(ctx context.Context, encoding Encoding, videoKeys []uuid.UUID) ([]*File, error)
}

type ThumbnailRepository interface {
	Upsert(ctx context.Context, t *Thumbnail) error
	Delete(ctx context.Context, id int64) error
	ListByVideo(ctx context.Context, videoKey uuid.UUID) ([]*Thumbnail, error)
}

type SubtitleRepository interface {
	Save(ctx context.Context, s *Subtitle) error
	Delete(ctx context.Context, id int64) error
	FindByID(ctx context.Context, id int64) (*Subtitle, error)
	ListByVideo(ctx context.Context, videoKey uuid.UUID) ([]*Subtitle, error)
}

type TranscodeJobRepository interface {
	Save(ctx context.Context, j *TranscodeJob) error
	Update(ctx context.Context, j *TranscodeJob) error
	LatestForVideo(ctx context.Context, videoKey uuid.UUID) (*TranscodeJob, error)
}
