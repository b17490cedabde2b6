package video

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	TranscodedPrefix  = "transcoded"
	ThumbnailsPrefix  = "thumbnails"
	SubtitlesPrefix   = "subtitles"
	RetranscodePrefix = "retranscode/"

	// HLSSuffix is appended to playlist names by the transcoder.
	HLSSuffix = ".m3u8"

	defaultExtension = "mp4"
)

// Keys derives every object key of one video. The owner id is the
// collection owner's user id.
type Keys struct {
	OwnerID int64
	SubKey  string
	// Retranscode prefixes derived transcoder outputs with the staging prefix.
	Retranscode bool
}

func KeysFor(ownerID int64, v *Video) Keys {
	return Keys{OwnerID: ownerID, SubKey: v.SubKey.String()}
}

func (k Keys) Staging() Keys {
	k.Retranscode = true
	return k
}

func (k Keys) Production() Keys {
	k.Retranscode = false
	return k
}

func (k Keys) base() string {
	return fmt.Sprintf("%d/%s", k.OwnerID, k.SubKey)
}

func (k Keys) stage(key string) string {
	if k.Retranscode {
		return RetranscodePrefix + key
	}
	return key
}

// Source is the original upload key in the source bucket. It is never staged.
func (k Keys) Source(filename string) string {
	return fmt.Sprintf("%s/video.%s", k.base(), Extension(filename))
}

// TranscodedDir is the directory holding every rendition of the video.
func (k Keys) TranscodedDir() string {
	return k.stage(fmt.Sprintf("%s/%s/", TranscodedPrefix, k.base()))
}

func (k Keys) Rendition(presetID string) string {
	return k.stage(fmt.Sprintf("%s/%s/video_%s", TranscodedPrefix, k.base(), presetID))
}

// Playlist is the manifest name handed to the transcoder, without HLSSuffix.
func (k Keys) Playlist() string {
	return k.stage(fmt.Sprintf("%s/%s/video__index", TranscodedPrefix, k.base()))
}

func (k Keys) ThumbnailDir() string {
	return k.stage(fmt.Sprintf("%s/%s/", ThumbnailsPrefix, k.base()))
}

func (k Keys) ThumbnailPattern() string {
	return k.stage(fmt.Sprintf("%s/%s/video_thumbnail_{count}", ThumbnailsPrefix, k.base()))
}

// SubtitleKey returns the stored key for a subtitle uploaded at t.
func SubtitleKey(t time.Time, language string) string {
	return fmt.Sprintf("%s/%s/%s.vtt", SubtitlesPrefix, t.UTC().Format("2006-01-02T15:04:05.000000Z07:00"), language)
}

// Unstage strips the retranscode staging prefix from key.
func Unstage(key string) string {
	return strings.TrimPrefix(key, RetranscodePrefix)
}

func IsStaged(key string) bool {
	return strings.HasPrefix(key, RetranscodePrefix)
}

// Extension returns the lowercased extension of filename, defaulting to mp4.
func Extension(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if ext == "" || strings.ContainsAny(ext, "/ ") {
		return defaultExtension
	}
	return ext
}
