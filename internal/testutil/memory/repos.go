// Package memory holds in-memory implementations of the repository and
// collaborator ports for use-case tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/courseware"
	"github.com/khoahotran/lecture-video/internal/domain/externalhost"
	"github.com/khoahotran/lecture-video/internal/domain/notification"
	"github.com/khoahotran/lecture-video/internal/domain/user"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
)

func notFound(resource, id string, domainErr error) error {
	return apperror.NewAppError(apperror.ErrNotFound, resource+" not found", id, domainErr)
}

type Users struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*user.User
}

func NewUsers(users ...*user.User) *Users {
	r := &Users{byID: make(map[int64]*user.User)}
	for _, u := range users {
		_ = r.Save(context.Background(), u)
	}
	return r
}

func (r *Users) FindByID(_ context.Context, id int64) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, notFound("user", strconv.FormatInt(id, 10), user.ErrUserNotFound)
}

func (r *Users) find(match func(*user.User) bool, id string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, notFound("user", id, user.ErrUserNotFound)
}

func (r *Users) FindByUsername(_ context.Context, username string) (*user.User, error) {
	return r.find(func(u *user.User) bool { return u.Username == username }, username)
}

func (r *Users) FindByEmail(_ context.Context, email string) (*user.User, error) {
	return r.find(func(u *user.User) bool { return strings.EqualFold(u.Email, email) }, email)
}

func (r *Users) Save(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == 0 {
		r.nextID++
		u.ID = r.nextID
	} else if u.ID > r.nextID {
		r.nextID = u.ID
	}
	c := *u
	r.byID[u.ID] = &c
	return nil
}

type Collections struct {
	mu    sync.Mutex
	byKey map[uuid.UUID]*collection.Collection
}

func NewCollections(cs ...*collection.Collection) *Collections {
	r := &Collections{byKey: make(map[uuid.UUID]*collection.Collection)}
	for _, c := range cs {
		_ = r.Save(context.Background(), c)
	}
	return r
}

func cloneCollection(c *collection.Collection) *collection.Collection {
	out := *c
	out.ViewLists = slices.Clone(c.ViewLists)
	out.AdminLists = slices.Clone(c.AdminLists)
	return &out
}

func (r *Collections) Save(_ context.Context, c *collection.Collection) error {
	if err := c.Validate(); err != nil {
		return apperror.NewInvalidInput(err.Error(), err)
	}
	if c.StreamSource == "" {
		c.StreamSource = collection.StreamCDN
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[c.Key]; ok {
		return apperror.NewConflict("collection", "key", c.Key.String())
	}
	r.byKey[c.Key] = cloneCollection(c)
	return nil
}

func (r *Collections) Update(_ context.Context, c *collection.Collection) error {
	if err := c.Validate(); err != nil {
		return apperror.NewInvalidInput(err.Error(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[c.Key]; !ok {
		return notFound("collection", c.Key.String(), collection.ErrCollectionNotFound)
	}
	r.byKey[c.Key] = cloneCollection(c)
	return nil
}

func (r *Collections) Delete(_ context.Context, key uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[key]; !ok {
		return notFound("collection", key.String(), collection.ErrCollectionNotFound)
	}
	delete(r.byKey, key)
	return nil
}

func (r *Collections) FindByKey(_ context.Context, key uuid.UUID) (*collection.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byKey[key]; ok {
		return cloneCollection(c), nil
	}
	return nil, notFound("collection", key.String(), collection.ErrCollectionNotFound)
}

func (r *Collections) list(match func(*collection.Collection) bool) []*collection.Collection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*collection.Collection, 0)
	for _, c := range r.byKey {
		if match(c) {
			out = append(out, cloneCollection(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Collections) FindBySlug(_ context.Context, ownerID int64, slug string) (*collection.Collection, error) {
	found := r.list(func(c *collection.Collection) bool { return c.OwnerID == ownerID && c.Slug == slug })
	if len(found) == 0 {
		return nil, notFound("collection", slug, collection.ErrCollectionNotFound)
	}
	return found[0], nil
}

func (r *Collections) ListByCourseID(_ context.Context, courseID string) ([]*collection.Collection, error) {
	return r.list(func(c *collection.Collection) bool { return c.EdxCourseID == courseID }), nil
}

func (r *Collections) ListRetranscodeScheduled(_ context.Context) ([]*collection.Collection, error) {
	return r.list(func(c *collection.Collection) bool { return c.RetranscodeScheduled }), nil
}

// Videos also tracks original files created through CreateWithFile.
type Videos struct {
	mu    sync.Mutex
	byKey map[uuid.UUID]*video.Video
	files *Files
	// Collections and Users back owner/course filters in Find when set.
	Collections *Collections
	Users       *Users
}

func NewVideos(files *Files) *Videos {
	return &Videos{byKey: make(map[uuid.UUID]*video.Video), files: files}
}

func cloneVideo(v *video.Video) *video.Video {
	out := *v
	out.ViewLists = slices.Clone(v.ViewLists)
	return &out
}

func (r *Videos) Put(vs ...*video.Video) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range vs {
		r.byKey[v.Key] = cloneVideo(v)
	}
}

func (r *Videos) CreateWithFile(ctx context.Context, v *video.Video, f *video.File) error {
	if err := r.Save(ctx, v); err != nil {
		return err
	}
	f.VideoKey = v.Key
	if err := r.files.Save(ctx, f); err != nil {
		_ = r.Delete(ctx, v.Key)
		return err
	}
	return nil
}

func (r *Videos) Save(_ context.Context, v *video.Video) error {
	if err := v.Validate(); err != nil {
		return apperror.NewInvalidInput(err.Error(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[v.Key]; ok {
		return apperror.NewConflict("video", "key", v.Key.String())
	}
	r.byKey[v.Key] = cloneVideo(v)
	return nil
}

func (r *Videos) Update(_ context.Context, v *video.Video) error {
	if err := v.Validate(); err != nil {
		return apperror.NewInvalidInput(err.Error(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[v.Key]; !ok {
		return notFound("video", v.Key.String(), video.ErrVideoNotFound)
	}
	v.UpdatedAt = time.Now().UTC()
	r.byKey[v.Key] = cloneVideo(v)
	return nil
}

func (r *Videos) UpdateStatus(_ context.Context, key uuid.UUID, from, to video.VideoStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byKey[key]
	if !ok || v.Status != from {
		return false, nil
	}
	v.Status = to
	v.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *Videos) ChangeKey(_ context.Context, oldKey, newKey uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byKey[oldKey]
	if !ok {
		return notFound("video", oldKey.String(), video.ErrVideoNotFound)
	}
	if _, taken := r.byKey[newKey]; taken {
		return apperror.NewConflict("video", "key", newKey.String())
	}
	delete(r.byKey, oldKey)
	v.Key = newKey
	r.byKey[newKey] = v
	if r.files != nil {
		r.files.rekey(oldKey, newKey)
	}
	return nil
}

func (r *Videos) Delete(_ context.Context, key uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[key]; !ok {
		return notFound("video", key.String(), video.ErrVideoNotFound)
	}
	delete(r.byKey, key)
	if r.files != nil {
		r.files.dropVideo(key)
	}
	return nil
}

func (r *Videos) FindByKey(_ context.Context, key uuid.UUID) (*video.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.byKey[key]; ok {
		return cloneVideo(v), nil
	}
	return nil, notFound("video", key.String(), video.ErrVideoNotFound)
}

func (r *Videos) list(match func(*video.Video) bool) []*video.Video {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*video.Video, 0)
	for _, v := range r.byKey {
		if match(v) {
			out = append(out, cloneVideo(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Videos) FindBySubKey(_ context.Context, subKey uuid.UUID) (*video.Video, error) {
	found := r.list(func(v *video.Video) bool { return v.SubKey == subKey })
	if len(found) == 0 {
		return nil, notFound("video", subKey.String(), video.ErrVideoNotFound)
	}
	return found[0], nil
}

func (r *Videos) ListByStatus(_ context.Context, statuses ...video.VideoStatus) ([]*video.Video, error) {
	return r.list(func(v *video.Video) bool { return slices.Contains(statuses, v.Status) }), nil
}

func (r *Videos) ListByCollection(_ context.Context, collectionKey uuid.UUID) ([]*video.Video, error) {
	return r.list(func(v *video.Video) bool { return v.CollectionKey == collectionKey }), nil
}

func (r *Videos) ListRetranscodeScheduled(_ context.Context) ([]*video.Video, error) {
	return r.list(func(v *video.Video) bool { return v.RetranscodeScheduled }), nil
}

func (r *Videos) Find(ctx context.Context, f video.Filter) ([]*video.Video, error) {
	var owner *user.User
	if f.OwnerUsername != "" && r.Users != nil {
		owner, _ = r.Users.FindByUsername(ctx, f.OwnerUsername)
	}
	return r.list(func(v *video.Video) bool {
		if len(f.VideoKeys) > 0 && !slices.Contains(f.VideoKeys, v.Key) {
			return false
		}
		if len(f.CollectionKeys) > 0 && !slices.Contains(f.CollectionKeys, v.CollectionKey) {
			return false
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, v.Status) {
			return false
		}
		if f.CreatedAfter != nil && v.CreatedAt.Before(*f.CreatedAfter) {
			return false
		}
		if f.CreatedBefore != nil && !v.CreatedAt.Before(*f.CreatedBefore) {
			return false
		}
		if f.Title != "" && v.Title != f.Title {
			return false
		}
		if (f.CourseID != "" || f.OwnerUsername != "") && r.Collections != nil {
			c, err := r.Collections.FindByKey(ctx, v.CollectionKey)
			if err != nil {
				return false
			}
			if f.CourseID != "" && c.EdxCourseID != f.CourseID {
				return false
			}
			if f.OwnerUsername != "" && (owner == nil || c.OwnerID != owner.ID) {
				return false
			}
		}
		return true
	}), nil
}

type Files struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*video.File
}

func NewFiles() *Files {
	return &Files{byID: make(map[int64]*video.File)}
}

func (r *Files) rekey(oldKey, newKey uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.byID {
		if f.VideoKey == oldKey {
			f.VideoKey = newKey
		}
	}
}

func (r *Files) dropVideo(key uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, f := range r.byID {
		if f.VideoKey == key {
			delete(r.byID, id)
		}
	}
}

func (r *Files) Save(_ context.Context, f *video.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.ObjectKey == f.ObjectKey {
			return apperror.NewConflict("video file", "object_key", f.ObjectKey)
		}
	}
	r.nextID++
	now := time.Now().UTC().Add(time.Duration(r.nextID) * time.Microsecond)
	f.ID, f.CreatedAt, f.UpdatedAt = r.nextID, now, now
	c := *f
	r.byID[f.ID] = &c
	return nil
}

func (r *Files) Upsert(ctx context.Context, f *video.File) error {
	r.mu.Lock()
	for _, existing := range r.byID {
		if existing.ObjectKey == f.ObjectKey {
			r.nextID++
			existing.Bucket, existing.VideoKey, existing.Encoding, existing.PresetID = f.Bucket, f.VideoKey, f.Encoding, f.PresetID
			existing.UpdatedAt = time.Now().UTC().Add(time.Duration(r.nextID) * time.Microsecond)
			*f = *existing
			r.mu.Unlock()
			return nil
		}
	}
	r.mu.Unlock()
	return r.Save(ctx, f)
}

func (r *Files) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return notFound("video file", strconv.FormatInt(id, 10), video.ErrVideoFileNotFound)
	}
	delete(r.byID, id)
	return nil
}

func (r *Files) FindByID(_ context.Context, id int64) (*video.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.byID[id]; ok {
		c := *f
		return &c, nil
	}
	return nil, notFound("video file", strconv.FormatInt(id, 10), video.ErrVideoFileNotFound)
}

func (r *Files) list(match func(*video.File) bool) []*video.File {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*video.File, 0)
	for _, f := range r.byID {
		if match(f) {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Files) All() []*video.File {
	return r.list(func(*video.File) bool { return true })
}

func (r *Files) ListByVideo(_ context.Context, videoKey uuid.UUID) ([]*video.File, error) {
	return r.list(func(f *video.File) bool { return f.VideoKey == videoKey }), nil
}

func (r *Files) FindByVideoAndEncoding(_ context.Context, videoKey uuid.UUID, enc video.Encoding) (*video.File, error) {
	found := r.list(func(f *video.File) bool { return f.VideoKey == videoKey && f.Encoding == enc })
	if len(found) == 0 {
		return nil, notFound("video file", videoKey.String()+"/"+string(enc), video.ErrVideoFileNotFound)
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].UpdatedAt.After(found[j].UpdatedAt) })
	return found[0], nil
}

func (r *Files) ListDuplicates(_ context.Context) ([]*video.File, error) {
	type group struct {
		key uuid.UUID
		enc video.Encoding
	}
	counts := map[group]int{}
	for _, f := range r.list(func(*video.File) bool { return true }) {
		counts[group{f.VideoKey, f.Encoding}]++
	}
	out := r.list(func(f *video.File) bool { return counts[group{f.VideoKey, f.Encoding}] > 1 })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].VideoKey != out[j].VideoKey {
			return out[i].VideoKey.String() < out[j].VideoKey.String()
		}
		if out[i].Encoding != out[j].Encoding {
			return out[i].Encoding < out[j].Encoding
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *Files) List(_ context.Context, encoding video.Encoding, videoKeys []uuid.UUID) ([]*video.File, error) {
	return r.list(func(f *video.File) bool {
		return f.Encoding == encoding && (len(videoKeys) == 0 || slices.Contains(videoKeys, f.VideoKey))
	}), nil
}

type Thumbnails struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*video.Thumbnail
}

func NewThumbnails() *Thumbnails {
	return &Thumbnails{byID: make(map[int64]*video.Thumbnail)}
}

func (r *Thumbnails) Upsert(_ context.Context, t *video.Thumbnail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.ObjectKey == t.ObjectKey {
			t.ID = existing.ID
			c := *t
			r.byID[t.ID] = &c
			return nil
		}
	}
	r.nextID++
	t.ID = r.nextID
	c := *t
	r.byID[t.ID] = &c
	return nil
}

func (r *Thumbnails) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return notFound("video thumbnail", strconv.FormatInt(id, 10), video.ErrThumbnailNotFound)
	}
	delete(r.byID, id)
	return nil
}

func (r *Thumbnails) ListByVideo(_ context.Context, videoKey uuid.UUID) ([]*video.Thumbnail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*video.Thumbnail, 0)
	for _, t := range r.byID {
		if t.VideoKey == videoKey {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectKey < out[j].ObjectKey })
	return out, nil
}

type Subtitles struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*video.Subtitle
}

func NewSubtitles() *Subtitles {
	return &Subtitles{byID: make(map[int64]*video.Subtitle)}
}

func (r *Subtitles) Save(_ context.Context, s *video.Subtitle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.ObjectKey == s.ObjectKey {
			return apperror.NewConflict("video subtitle", "object_key", s.ObjectKey)
		}
	}
	r.nextID++
	s.ID = r.nextID
	c := *s
	r.byID[s.ID] = &c
	return nil
}

func (r *Subtitles) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return notFound("video subtitle", strconv.FormatInt(id, 10), video.ErrSubtitleNotFound)
	}
	delete(r.byID, id)
	return nil
}

func (r *Subtitles) FindByID(_ context.Context, id int64) (*video.Subtitle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, notFound("video subtitle", strconv.FormatInt(id, 10), video.ErrSubtitleNotFound)
}

func (r *Subtitles) ListByVideo(_ context.Context, videoKey uuid.UUID) ([]*video.Subtitle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*video.Subtitle, 0)
	for _, s := range r.byID {
		if s.VideoKey == videoKey {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type TranscodeJobs struct {
	mu   sync.Mutex
	jobs []*video.TranscodeJob
}

func NewTranscodeJobs() *TranscodeJobs {
	return &TranscodeJobs{}
}

func (r *TranscodeJobs) Save(_ context.Context, j *video.TranscodeJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.jobs {
		if existing.ID == j.ID {
			return apperror.NewConflict("transcode job", "id", j.ID)
		}
	}
	j.CreatedAt = time.Now().UTC().Add(time.Duration(len(r.jobs)) * time.Microsecond)
	j.UpdatedAt = j.CreatedAt
	c := *j
	r.jobs = append(r.jobs, &c)
	return nil
}

func (r *TranscodeJobs) Update(_ context.Context, j *video.TranscodeJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.jobs {
		if existing.ID == j.ID {
			c := *j
			r.jobs[i] = &c
			return nil
		}
	}
	return notFound("transcode job", j.ID, video.ErrTranscodeJobMissing)
}

func (r *TranscodeJobs) LatestForVideo(_ context.Context, videoKey uuid.UUID) (*video.TranscodeJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.jobs) - 1; i >= 0; i-- {
		if r.jobs[i].VideoKey == videoKey {
			c := *r.jobs[i]
			return &c, nil
		}
	}
	return nil, notFound("transcode job", videoKey.String(), video.ErrTranscodeJobMissing)
}

type ExternalHostVideos struct {
	mu    sync.Mutex
	byKey map[uuid.UUID]*externalhost.Video
}

func NewExternalHostVideos() *ExternalHostVideos {
	return &ExternalHostVideos{byKey: make(map[uuid.UUID]*externalhost.Video)}
}

func (r *ExternalHostVideos) Save(_ context.Context, v *externalhost.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[v.VideoKey]; ok {
		return apperror.NewConflict("external host video", "video_key", v.VideoKey.String())
	}
	c := *v
	r.byKey[v.VideoKey] = &c
	return nil
}

func (r *ExternalHostVideos) Update(_ context.Context, v *externalhost.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[v.VideoKey]; !ok {
		return notFound("external host video", v.VideoKey.String(), externalhost.ErrNotFound)
	}
	c := *v
	r.byKey[v.VideoKey] = &c
	return nil
}

func (r *ExternalHostVideos) Delete(_ context.Context, videoKey uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[videoKey]; !ok {
		return notFound("external host video", videoKey.String(), externalhost.ErrNotFound)
	}
	delete(r.byKey, videoKey)
	return nil
}

func (r *ExternalHostVideos) FindByVideo(_ context.Context, videoKey uuid.UUID) (*externalhost.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.byKey[videoKey]; ok {
		c := *v
		return &c, nil
	}
	return nil, notFound("external host video", videoKey.String(), externalhost.ErrNotFound)
}

func (r *ExternalHostVideos) ListNonTerminal(_ context.Context) ([]*externalhost.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*externalhost.Video, 0)
	for _, v := range r.byKey {
		if !v.Status.Terminal() {
			c := *v
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VideoKey.String() < out[j].VideoKey.String() })
	return out, nil
}

type Courseware struct {
	mu           sync.Mutex
	endpoints    []*courseware.Endpoint
	associations map[uuid.UUID][]int64
}

func NewCourseware(eps ...*courseware.Endpoint) *Courseware {
	r := &Courseware{associations: make(map[uuid.UUID][]int64)}
	for i, e := range eps {
		if e.ID == 0 {
			e.ID = int64(i + 1)
		}
		c := *e
		r.endpoints = append(r.endpoints, &c)
	}
	return r
}

func (r *Courseware) UpdateCredentials(_ context.Context, e *courseware.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.endpoints {
		if existing.ID == e.ID {
			existing.AccessToken, existing.RefreshToken = e.AccessToken, e.RefreshToken
			existing.ExpiresIn, existing.UpdatedAt = e.ExpiresIn, e.UpdatedAt
			return nil
		}
	}
	return notFound("courseware endpoint", e.Name, courseware.ErrEndpointNotFound)
}

func (r *Courseware) FindByName(_ context.Context, name string) (*courseware.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.endpoints {
		if e.Name == name {
			c := *e
			return &c, nil
		}
	}
	return nil, notFound("courseware endpoint", name, courseware.ErrEndpointNotFound)
}

func (r *Courseware) ListForCollection(_ context.Context, collectionKey uuid.UUID) ([]*courseware.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*courseware.Endpoint, 0)
	ids := r.associations[collectionKey]
	for _, e := range r.endpoints {
		if slices.Contains(ids, e.ID) {
			c := *e
			out = append(out, &c)
		}
	}
	if len(out) > 0 {
		return out, nil
	}
	for _, e := range r.endpoints {
		if e.IsGlobalDefault {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *Courseware) ListAll(_ context.Context) ([]*courseware.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*courseware.Endpoint, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (r *Courseware) Associate(_ context.Context, collectionKey uuid.UUID, endpointID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.associations[collectionKey], endpointID) {
		r.associations[collectionKey] = append(r.associations[collectionKey], endpointID)
	}
	return nil
}

type Templates struct {
	mu     sync.Mutex
	byType map[notification.Type]*notification.Template
}

func NewTemplates(ts ...*notification.Template) *Templates {
	r := &Templates{byType: make(map[notification.Type]*notification.Template)}
	for _, t := range ts {
		_ = r.Upsert(context.Background(), t)
	}
	return r
}

func (r *Templates) FindByType(_ context.Context, t notification.Type) (*notification.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.byType[t]; ok {
		c := *tpl
		return &c, nil
	}
	return nil, notFound("notification template", string(t), notification.ErrTemplateNotFound)
}

func (r *Templates) Upsert(_ context.Context, t *notification.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *t
	r.byType[t.Type] = &c
	return nil
}
