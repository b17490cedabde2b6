package http

import (
	"time"

	"github.com/google/uuid"

	"github.com/khoahotran/lecture-video/internal/application/usecase/permission"
	"github.com/khoahotran/lecture-video/internal/domain/video"
)

type VideoDTO struct {
	Key            uuid.UUID `json:"key"`
	CollectionKey  uuid.UUID `json:"collection_key"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	IsPublic       bool      `json:"is_public"`
	IsPrivate      bool      `json:"is_private"`
	IsLoggedInOnly bool      `json:"is_logged_in_only"`
	ViewLists      []string  `json:"view_lists"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func ToVideoDTO(v *video.Video) VideoDTO {
	return VideoDTO{
		Key:            v.Key,
		CollectionKey:  v.CollectionKey,
		Title:          v.Title,
		Status:         string(v.Status),
		IsPublic:       v.IsPublic,
		IsPrivate:      v.IsPrivate,
		IsLoggedInOnly: v.IsLoggedInOnly,
		ViewLists:      v.ViewLists,
		UpdatedAt:      v.UpdatedAt,
	}
}

type AccessDTO struct {
	VideoKey uuid.UUID `json:"video_key"`
	permission.Decision
}

type SubtitleDTO struct {
	ID        int64     `json:"id"`
	VideoKey  uuid.UUID `json:"video_key"`
	Language  string    `json:"language"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

func ToSubtitleDTO(s *video.Subtitle) SubtitleDTO {
	return SubtitleDTO{ID: s.ID, VideoKey: s.VideoKey, Language: s.Language, Filename: s.Filename, CreatedAt: s.CreatedAt}
}

type VisibilityRequest struct {
	IsPublic       bool     `json:"is_public"`
	IsPrivate      bool     `json:"is_private"`
	IsLoggedInOnly bool     `json:"is_logged_in_only"`
	ViewLists      []string `json:"view_lists"`
}

type StreamSourceRequest struct {
	StreamSource string `json:"stream_source" binding:"required"`
}

type DropboxRequest struct {
	Files []struct {
		Name string `json:"name" binding:"required"`
		Link string `json:"link" binding:"required"`
	} `json:"files" binding:"required,min=1,dive"`
}
