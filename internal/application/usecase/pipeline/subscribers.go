package pipeline

import (
	"context"
	"fmt"

	"github.com/khoahotran/lecture-video/internal/application/events"
	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/video"
)

// Subscribers turns lifecycle events into queued tasks for the notifier, the
// external-host syncer and the courseware publisher.
type Subscribers struct {
	queue     service.TaskQueue
	videoRepo video.Repository
}

func NewSubscribers(queue service.TaskQueue, videos video.Repository) *Subscribers {
	return &Subscribers{queue: queue, videoRepo: videos}
}

func (s *Subscribers) Register(d *events.Dispatcher) {
	d.Subscribe(events.NameVideoCompleted, typed(s.onCompleted))
	d.Subscribe(events.NameVideoFailed, typed(s.onFailed))
	d.Subscribe(events.NameVideoBecamePublic, typed(s.onPublic))
	d.Subscribe(events.NameVideoBecamePrivate, typed(s.onPrivate))
	d.Subscribe(events.NameCollectionStreamSourceChanged, typed(s.onStreamSourceChanged))
	d.Subscribe(events.NameSubtitleChanged, typed(s.onSubtitleChanged))
}

func typed[E events.Event](h func(context.Context, E) error) events.Handler {
	return func(ctx context.Context, e events.Event) error {
		ev, ok := e.(E)
		if !ok {
			return fmt.Errorf("unexpected event payload %T for %s", e, e.EventName())
		}
		return h(ctx, ev)
	}
}

func (s *Subscribers) onCompleted(ctx context.Context, ev events.VideoCompleted) error {
	return s.queue.Enqueue(ctx,
		service.Task{Type: service.TaskNotify, VideoKey: ev.VideoKey, Status: string(video.StatusComplete)},
		service.Task{Type: service.TaskPublishCourseware, VideoKey: ev.VideoKey},
		service.Task{Type: service.TaskUploadExternalHost, VideoKey: ev.VideoKey},
	)
}

func (s *Subscribers) onFailed(ctx context.Context, ev events.VideoFailed) error {
	return s.queue.Enqueue(ctx, service.Task{Type: service.TaskNotify, VideoKey: ev.VideoKey, Status: string(ev.Status)})
}

func (s *Subscribers) onPublic(ctx context.Context, ev events.VideoBecamePublic) error {
	return s.queue.Enqueue(ctx, service.Task{Type: service.TaskUploadExternalHost, VideoKey: ev.VideoKey})
}

func (s *Subscribers) onPrivate(ctx context.Context, ev events.VideoBecamePrivate) error {
	return s.queue.Enqueue(ctx, service.Task{Type: service.TaskRemoveExternalHost, VideoKey: ev.VideoKey})
}

func (s *Subscribers) onStreamSourceChanged(ctx context.Context, ev events.CollectionStreamSourceChanged) error {
	vids, err := s.videoRepo.ListByCollection(ctx, ev.CollectionKey)
	if err != nil {
		return err
	}
	var tasks []service.Task
	for _, v := range vids {
		switch {
		case ev.To == collection.StreamCDN:
			tasks = append(tasks, service.Task{Type: service.TaskRemoveExternalHost, VideoKey: v.Key})
		case v.IsPublic && v.Status == video.StatusComplete:
			tasks = append(tasks, service.Task{Type: service.TaskUploadExternalHost, VideoKey: v.Key})
		}
	}
	if len(tasks) == 0 {
		return nil
	}
	return s.queue.Enqueue(ctx, tasks...)
}

func (s *Subscribers) onSubtitleChanged(ctx context.Context, ev events.SubtitleChanged) error {
	return s.queue.Enqueue(ctx, service.Task{Type: service.TaskSyncCaptions, VideoKey: ev.VideoKey})
}
