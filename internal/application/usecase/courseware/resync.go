package courseware

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/courseware"
	"github.com/khoahotran/lecture-video/pkg/apperror"
)

type ResyncInput struct {
	CourseID string
	// EndpointName limits the sync to one endpoint; empty means all endpoints.
	EndpointName string
	DryRun       bool
}

type ResyncReport struct {
	Changed []KeyChange
	Skipped int
	Failed  map[string]error
}

type KeyChange struct {
	OldKey uuid.UUID
	NewKey uuid.UUID
	Title  string
}

// Resync adopts the video keys a courseware endpoint holds for the course. A
// remote video is matched through the storage sub-key embedded in its HLS URL
// and must carry the local title as its client id.
func (uc *PublishUseCase) Resync(ctx context.Context, in ResyncInput) (*ResyncReport, error) {
	ctx, span := tracer.Start(ctx, "Resync")
	defer span.End()

	if in.CourseID == "" {
		return nil, apperror.NewInvalidInput("course id is required", nil)
	}
	endpoints, err := uc.resyncEndpoints(ctx, in.EndpointName)
	if err != nil {
		return nil, err
	}
	cols, err := uc.collectionRepo.ListByCourseID(ctx, in.CourseID)
	if err != nil {
		return nil, err
	}
	inCourse := make(map[uuid.UUID]bool, len(cols))
	for _, c := range cols {
		inCourse[c.Key] = true
	}

	report := &ResyncReport{Failed: make(map[string]error)}
	for _, ep := range endpoints {
		l := uc.logger.With(zap.String("endpoint", ep.Name), zap.String("course_id", in.CourseID))
		remote, err := uc.listCourseVideos(ctx, ep, in.CourseID)
		if err != nil {
			l.Error("Failed to list course videos", err)
			report.Failed[ep.Name] = err
			continue
		}
		for _, rv := range remote {
			change, ok := uc.match(ctx, rv, inCourse)
			if !ok {
				report.Skipped++
				continue
			}
			if !in.DryRun {
				if err := uc.videoRepo.ChangeKey(ctx, change.OldKey, change.NewKey); err != nil {
					l.Error("Failed to change video key", err, zap.String("video_key", change.OldKey.String()))
					report.Failed[change.OldKey.String()] = err
					continue
				}
			}
			l.Info("Video key synced", zap.String("old_key", change.OldKey.String()), zap.String("new_key", change.NewKey.String()), zap.Bool("dry_run", in.DryRun))
			report.Changed = append(report.Changed, change)
		}
	}
	return report, nil
}

func (uc *PublishUseCase) resyncEndpoints(ctx context.Context, name string) ([]*courseware.Endpoint, error) {
	if name == "" {
		return uc.endpointRepo.ListAll(ctx)
	}
	ep, err := uc.endpointRepo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return []*courseware.Endpoint{ep}, nil
}

func (uc *PublishUseCase) listCourseVideos(ctx context.Context, ep *courseware.Endpoint, courseID string) ([]service.CoursewareVideo, error) {
	if ep.NeedsRefresh(uc.now(), refreshMargin) {
		if err := uc.refresh(ctx, ep); err != nil {
			uc.logger.Warn("Token refresh failed, listing with stored token", zap.String("endpoint", ep.Name), zap.Error(err))
		}
	}
	videos, err := uc.client.ListCourseVideos(ctx, ep, courseID)
	if err == nil || !errors.Is(err, apperror.ErrCoursewareAuth) {
		return videos, err
	}
	if rerr := uc.refresh(ctx, ep); rerr != nil {
		return nil, rerr
	}
	return uc.client.ListCourseVideos(ctx, ep, courseID)
}

func (uc *PublishUseCase) match(ctx context.Context, rv service.CoursewareVideo, inCourse map[uuid.UUID]bool) (KeyChange, bool) {
	newKey, err := uuid.Parse(rv.EdxVideoID)
	if err != nil {
		return KeyChange{}, false
	}
	for _, ev := range rv.EncodedVideos {
		if ev.Profile != profileHLS {
			continue
		}
		subKey, ok := subKeyFromURL(ev.URL)
		if !ok {
			continue
		}
		v, err := uc.videoRepo.FindBySubKey(ctx, subKey)
		if err != nil {
			continue
		}
		if !inCourse[v.CollectionKey] || v.Title != rv.ClientVideoID || v.Key == newKey {
			return KeyChange{}, false
		}
		return KeyChange{OldKey: v.Key, NewKey: newKey, Title: v.Title}, true
	}
	return KeyChange{}, false
}

// subKeyFromURL reads the directory holding the playlist, which is the video sub-key.
func subKeyFromURL(raw string) (uuid.UUID, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return uuid.Nil, false
	}
	key, err := uuid.Parse(parts[len(parts)-2])
	if err != nil {
		return uuid.Nil, false
	}
	return key, true
}
