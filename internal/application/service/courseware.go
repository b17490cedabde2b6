package service

import (
	"context"

	"github.com/khoahotran/lecture-video/internal/domain/courseware"
)

type EncodedVideo struct {
	URL      string `json:"url"`
	FileSize int64  `json:"file_size"`
	Bitrate  int    `json:"bitrate"`
	Profile  string `json:"profile"`
}

type CoursewareVideo struct {
	ClientVideoID string           `json:"client_video_id"`
	EdxVideoID    string           `json:"edx_video_id"`
	EncodedVideos []EncodedVideo   `json:"encoded_videos"`
	Courses       []map[string]any `json:"courses"`
	Status        string           `json:"status"`
	Duration      float64          `json:"duration"`
}

type CoursewareClient interface {
	// PostVideo returns the HTTP status code; non-2xx is not an error.
	PostVideo(ctx context.Context, ep *courseware.Endpoint, payload CoursewareVideo) (int, error)
	ListCourseVideos(ctx context.Context, ep *courseware.Endpoint, courseID string) ([]CoursewareVideo, error)
	// RefreshToken updates the endpoint's credentials in place.
	RefreshToken(ctx context.Context, ep *courseware.Endpoint) error
}
