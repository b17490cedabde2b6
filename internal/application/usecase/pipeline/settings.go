// Package pipeline drives a video through ingest, transcode, retranscode and
// publication, one state transition at a time.
package pipeline

import (
	"time"

	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/internal/domain/video"
)

type Buckets struct {
	Source    string
	Transcode string
	Thumbnail string
	Subtitle  string
	Watch     string
}

type Settings struct {
	Buckets Buckets
	// Presets are transcoder preset ids, in output order.
	Presets []string
	// PresetEncodings maps mp4 presets to the encoding their output is stored as.
	// Presets absent here are segmented and join the HLS playlist.
	PresetEncodings    map[string]video.Encoding
	SegmentDuration    string
	PipelineName       string
	LockTTL            time.Duration
	WatchOwner         string
	UnsortedCollection string
}

func SettingsFromConfig(cfg config.Config) Settings {
	encodings := make(map[string]video.Encoding, len(cfg.Transcoder.PresetEncodings))
	for preset, enc := range cfg.Transcoder.PresetEncodings {
		encodings[preset] = video.Encoding(enc)
	}
	return Settings{
		Buckets: Buckets{
			Source:    cfg.Storage.SourceBucket,
			Transcode: cfg.Storage.TranscodeBucket,
			Thumbnail: cfg.Storage.ThumbnailBucket,
			Subtitle:  cfg.Storage.SubtitleBucket,
			Watch:     cfg.Storage.WatchBucket,
		},
		Presets:            cfg.Transcoder.Presets,
		PresetEncodings:    encodings,
		SegmentDuration:    cfg.Transcoder.SegmentDuration,
		PipelineName:       cfg.PipelineName(),
		LockTTL:            cfg.Schedule.LockTTL,
		WatchOwner:         cfg.Watch.OwnerUsername,
		UnsortedCollection: cfg.Watch.UnsortedCollection,
	}
}

func (s Settings) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 15 * time.Minute
	}
	return s.LockTTL
}

func videoLockKey(key interface{ String() string }) string {
	return "video:" + key.String()
}
