// Package events carries lifecycle notifications between the pipeline and its
// subscribers.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type Name string

const (
	NameVideoCompleted                Name = "video.completed"
	NameVideoFailed                   Name = "video.failed"
	NameVideoBecamePublic             Name = "video.became_public"
	NameVideoBecamePrivate            Name = "video.became_private"
	NameCollectionStreamSourceChanged Name = "collection.stream_source_changed"
	NameSubtitleChanged               Name = "video.subtitle_changed"
)

type Event interface {
	EventName() Name
	// Key groups events of one aggregate, used as the message key when mirrored.
	Key() string
}

type VideoCompleted struct {
	VideoKey     uuid.UUID `json:"video_key"`
	Retranscoded bool      `json:"retranscoded"`
}

type VideoFailed struct {
	VideoKey uuid.UUID         `json:"video_key"`
	Status   video.VideoStatus `json:"status"`
}

type VideoBecamePublic struct {
	VideoKey uuid.UUID `json:"video_key"`
}

type VideoBecamePrivate struct {
	VideoKey uuid.UUID `json:"video_key"`
}

type CollectionStreamSourceChanged struct {
	CollectionKey uuid.UUID               `json:"collection_key"`
	From          collection.StreamSource `json:"from"`
	To            collection.StreamSource `json:"to"`
}

type SubtitleChanged struct {
	VideoKey uuid.UUID `json:"video_key"`
}

func (VideoCompleted) EventName() Name                { return NameVideoCompleted }
func (VideoFailed) EventName() Name                   { return NameVideoFailed }
func (VideoBecamePublic) EventName() Name             { return NameVideoBecamePublic }
func (VideoBecamePrivate) EventName() Name            { return NameVideoBecamePrivate }
func (CollectionStreamSourceChanged) EventName() Name { return NameCollectionStreamSourceChanged }
func (SubtitleChanged) EventName() Name               { return NameSubtitleChanged }

func (e VideoCompleted) Key() string                { return e.VideoKey.String() }
func (e VideoFailed) Key() string                   { return e.VideoKey.String() }
func (e VideoBecamePublic) Key() string             { return e.VideoKey.String() }
func (e VideoBecamePrivate) Key() string            { return e.VideoKey.String() }
func (e CollectionStreamSourceChanged) Key() string { return e.CollectionKey.String() }
func (e SubtitleChanged) Key() string               { return e.VideoKey.String() }

type Handler func(ctx context.Context, e Event) error

// Publisher is what state transitions depend on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Dispatcher delivers events synchronously, in subscription order. Handlers
// are expected to only enqueue durable work.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Name][]Handler
	all      []Handler
	logger   logger.Logger
}

func NewDispatcher(log logger.Logger) *Dispatcher {
	return &Dispatcher{handlers: make(map[Name][]Handler), logger: log}
}

func (d *Dispatcher) Subscribe(name Name, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = append(d.handlers[name], h)
}

// SubscribeAll registers h for every event name.
func (d *Dispatcher) SubscribeAll(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = append(d.all, h)
}

// Publish runs every handler even when some fail and joins their errors.
func (d *Dispatcher) Publish(ctx context.Context, e Event) error {
	d.mu.RLock()
	hs := make([]Handler, 0, len(d.handlers[e.EventName()])+len(d.all))
	hs = append(hs, d.handlers[e.EventName()]...)
	hs = append(hs, d.all...)
	d.mu.RUnlock()

	var errs []error
	for _, h := range hs {
		if err := h(ctx, e); err != nil {
			d.logger.Error("Event handler failed", err, zap.String("event", string(e.EventName())), zap.String("key", e.Key()))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
