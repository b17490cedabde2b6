package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/khoahotran/lecture-video/internal/application/events"
	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/courseware"
	"github.com/khoahotran/lecture-video/internal/domain/externalhost"
	"github.com/khoahotran/lecture-video/internal/domain/user"
	"github.com/khoahotran/lecture-video/pkg/apperror"
)

// ObjectStore keeps objects in nested maps. FailCopy / FailDelete force
// errors for keys they match.
type ObjectStore struct {
	mu       sync.Mutex
	buckets  map[string]map[string][]byte
	modified map[string]time.Time

	FailCopy   func(srcKey string) error
	FailDelete func(key string) error
	Deleted    []string
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		buckets:  make(map[string]map[string][]byte),
		modified: make(map[string]time.Time),
	}
}

func (s *ObjectStore) Put(bucket, key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[bucket] == nil {
		s.buckets[bucket] = make(map[string][]byte)
	}
	s.buckets[bucket][key] = body
	s.modified[bucket+"/"+key] = time.Now()
}

// Age moves the modification time of every object under prefix d into the past.
func (s *ObjectStore) Age(bucket, prefix string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.buckets[bucket] {
		if strings.HasPrefix(k, prefix) {
			s.modified[bucket+"/"+k] = s.modified[bucket+"/"+k].Add(-d)
		}
	}
}

func (s *ObjectStore) Get(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket][key]
	return b, ok
}

// Keys returns every key of bucket under prefix, sorted.
func (s *ObjectStore) Keys(bucket, prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.buckets[bucket] {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (s *ObjectStore) List(_ context.Context, bucket, prefix string) iter.Seq2[service.ObjectInfo, error] {
	keys := s.Keys(bucket, prefix)
	return func(yield func(service.ObjectInfo, error) bool) {
		for _, k := range keys {
			b, _ := s.Get(bucket, k)
			s.mu.Lock()
			mod := s.modified[bucket+"/"+k]
			s.mu.Unlock()
			if !yield(service.ObjectInfo{Key: k, Size: int64(len(b)), LastModified: mod}, nil) {
				return
			}
		}
	}
}

func (s *ObjectStore) Copy(_ context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	if s.FailCopy != nil {
		if err := s.FailCopy(srcKey); err != nil {
			return err
		}
	}
	b, ok := s.Get(srcBucket, srcKey)
	if !ok {
		return apperror.NewStorage(false, "no such key "+srcKey, nil)
	}
	s.Put(dstBucket, dstKey, slices.Clone(b))
	return nil
}

func (s *ObjectStore) Move(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	if _, ok := s.Get(srcBucket, srcKey); !ok {
		return nil
	}
	if err := s.Copy(ctx, srcBucket, srcKey, dstBucket, dstKey); err != nil {
		return err
	}
	return s.Delete(ctx, srcBucket, srcKey)
}

func (s *ObjectStore) MovePrefix(ctx context.Context, bucket, srcPrefix, dstPrefix string) error {
	for _, k := range s.Keys(bucket, srcPrefix) {
		if err := s.Move(ctx, bucket, k, bucket, dstPrefix+strings.TrimPrefix(k, srcPrefix)); err != nil {
			return err
		}
	}
	return nil
}

func (s *ObjectStore) Delete(_ context.Context, bucket, key string) error {
	if s.FailDelete != nil {
		if err := s.FailDelete(key); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], key)
	delete(s.modified, bucket+"/"+key)
	s.Deleted = append(s.Deleted, bucket+"/"+key)
	return nil
}

func (s *ObjectStore) DeletePrefix(ctx context.Context, bucket, prefix string) error {
	if prefix == "" {
		return apperror.NewInvalidInput("refusing to delete an empty prefix", nil)
	}
	for _, k := range s.Keys(bucket, prefix) {
		if err := s.Delete(ctx, bucket, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *ObjectStore) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	b, ok := s.Get(bucket, key)
	if !ok {
		return nil, apperror.NewStorage(false, "no such key "+key, nil)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *ObjectStore) StreamUpload(_ context.Context, bucket, key string, r io.Reader, _ string, progress service.ProgressFunc) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return apperror.NewStorage(true, "failed reading upload body", err)
	}
	s.Put(bucket, key, b)
	if progress != nil {
		progress(int64(len(b)))
	}
	return nil
}

func (s *ObjectStore) SignedURL(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://%s.s3.test/%s?ttl=%d", bucket, key, int(ttl.Seconds())), nil
}

type CDNSigner struct{}

func (CDNSigner) SignedURL(key string, expires time.Time) (string, error) {
	return fmt.Sprintf("https://cdn.test/%s?Expires=%d", key, expires.Unix()), nil
}

// Transcoder records submissions and serves job statuses from Jobs.
type Transcoder struct {
	mu        sync.Mutex
	Submitted []service.TranscodeRequest
	Jobs      map[string]*service.JobStatus
	Presets   map[string]*service.Preset
	SubmitErr error
	ReadErr   error
	nextID    int
}

func NewTranscoder() *Transcoder {
	return &Transcoder{Jobs: make(map[string]*service.JobStatus), Presets: make(map[string]*service.Preset)}
}

func (t *Transcoder) Submit(_ context.Context, req service.TranscodeRequest) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SubmitErr != nil {
		return "", t.SubmitErr
	}
	t.nextID++
	id := fmt.Sprintf("job-%d", t.nextID)
	t.Submitted = append(t.Submitted, req)
	t.Jobs[id] = &service.JobStatus{ID: id, State: service.JobSubmitted}
	return id, nil
}

func (t *Transcoder) ReadJob(_ context.Context, jobID string) (*service.JobStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ReadErr != nil {
		return nil, t.ReadErr
	}
	j, ok := t.Jobs[jobID]
	if !ok {
		return nil, apperror.NewNotFound("transcode job", jobID)
	}
	c := *j
	return &c, nil
}

func (t *Transcoder) ReadPreset(_ context.Context, presetID string) (*service.Preset, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.Presets[presetID]; ok {
		c := *p
		return &c, nil
	}
	return &service.Preset{ID: presetID, Container: "ts", ThumbMaxWidth: 640, ThumbMaxHeight: 360}, nil
}

// Complete marks a job COMPLETE echoing the submitted outputs and playlists.
func (t *Transcoder) Complete(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := 0
	fmt.Sscanf(jobID, "job-%d", &idx)
	req := t.Submitted[idx-1]
	st := &service.JobStatus{ID: jobID, State: service.JobComplete}
	for _, o := range req.Outputs {
		st.Outputs = append(st.Outputs, service.JobOutput{Key: o.Key, PresetID: o.PresetID, ThumbnailPattern: o.ThumbnailPattern, Status: "Complete"})
	}
	for _, p := range req.Playlists {
		st.Playlists = append(st.Playlists, service.JobPlaylist{Name: p.Name, Format: p.Format, OutputKeys: p.OutputKeys, Status: "Complete"})
	}
	t.Jobs[jobID] = st
}

func (t *Transcoder) Fail(jobID string, detail *string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Jobs[jobID] = &service.JobStatus{ID: jobID, State: service.JobError, StatusDetail: detail}
}

// Cancel marks jobID as canceled by an operator of the transcoder.
func (t *Transcoder) Cancel(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Jobs[jobID] = &service.JobStatus{ID: jobID, State: service.JobCanceled}
}

type HostCaption struct {
	ID       string
	Language string
	Body     string
}

// ExternalHost simulates the hosting platform.
type ExternalHost struct {
	mu        sync.Mutex
	Uploads   []service.HostedVideo
	Captions  map[string][]HostCaption
	Statuses  map[string]externalhost.Status
	Deleted   []string
	UploadErr error
	nextID    int
}

func NewExternalHost() *ExternalHost {
	return &ExternalHost{Captions: make(map[string][]HostCaption), Statuses: make(map[string]externalhost.Status)}
}

func (h *ExternalHost) UploadVideo(_ context.Context, v service.HostedVideo) (*service.HostedUpload, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.UploadErr != nil {
		return nil, h.UploadErr
	}
	h.nextID++
	id := fmt.Sprintf("yt%09d", h.nextID)
	h.Uploads = append(h.Uploads, v)
	h.Statuses[id] = externalhost.StatusUploaded
	return &service.HostedUpload{ExternalID: id, Status: externalhost.StatusUploaded}, nil
}

func (h *ExternalHost) UploadCaption(_ context.Context, externalID, language, _ string, body io.Reader) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, c := range h.Captions[externalID] {
		if c.Language == language {
			h.Captions[externalID][i].Body = string(b)
			return nil
		}
	}
	h.nextID++
	h.Captions[externalID] = append(h.Captions[externalID], HostCaption{ID: fmt.Sprintf("cap-%d", h.nextID), Language: language, Body: string(b)})
	return nil
}

func (h *ExternalHost) ListCaptions(_ context.Context, externalID string) (map[string]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string)
	for _, c := range h.Captions[externalID] {
		out[c.Language] = c.ID
	}
	return out, nil
}

func (h *ExternalHost) UpdateCaption(_ context.Context, captionID string, body io.Reader) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, caps := range h.Captions {
		for i, c := range caps {
			if c.ID == captionID {
				h.Captions[id][i].Body = string(b)
				return nil
			}
		}
	}
	return apperror.NewNotFound("caption", captionID)
}

func (h *ExternalHost) DeleteCaption(_ context.Context, captionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, caps := range h.Captions {
		h.Captions[id] = slices.DeleteFunc(caps, func(c HostCaption) bool { return c.ID == captionID })
	}
	return nil
}

func (h *ExternalHost) DeleteVideo(_ context.Context, externalID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Deleted = append(h.Deleted, externalID)
	delete(h.Statuses, externalID)
	return nil
}

func (h *ExternalHost) VideoStatus(_ context.Context, externalID string) (externalhost.Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.Statuses[externalID]; ok {
		return s, nil
	}
	return externalhost.StatusDeleted, nil
}

// CoursewareClient answers posts per endpoint name from Responses.
type CoursewareClient struct {
	mu        sync.Mutex
	Posts     map[string][]service.CoursewareVideo
	Responses map[string][]int
	Course    map[string][]service.CoursewareVideo
	Refreshed []string
	ListErr   map[string]error
}

func NewCoursewareClient() *CoursewareClient {
	return &CoursewareClient{
		Posts:     make(map[string][]service.CoursewareVideo),
		Responses: make(map[string][]int),
		Course:    make(map[string][]service.CoursewareVideo),
		ListErr:   make(map[string]error),
	}
}

func (c *CoursewareClient) PostVideo(_ context.Context, ep *courseware.Endpoint, payload service.CoursewareVideo) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Posts[ep.Name] = append(c.Posts[ep.Name], payload)
	codes := c.Responses[ep.Name]
	if len(codes) == 0 {
		return 200, nil
	}
	code := codes[0]
	if len(codes) > 1 {
		c.Responses[ep.Name] = codes[1:]
	}
	return code, nil
}

func (c *CoursewareClient) ListCourseVideos(_ context.Context, ep *courseware.Endpoint, courseID string) ([]service.CoursewareVideo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ListErr[ep.Name]; err != nil {
		delete(c.ListErr, ep.Name)
		return nil, err
	}
	return slices.Clone(c.Course[courseID]), nil
}

func (c *CoursewareClient) RefreshToken(_ context.Context, ep *courseware.Endpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Refreshed = append(c.Refreshed, ep.Name)
	ep.AccessToken = "refreshed-" + ep.Name
	ep.ExpiresIn = 3600
	ep.UpdatedAt = time.Now().UTC()
	return nil
}

// Directory answers from static maps and counts calls.
type Directory struct {
	mu          sync.Mutex
	Lists       map[string][]string
	Members     map[string][]string
	Attributes  map[string]*service.ListAttributes
	Err         error
	ListCalls   int
	MemberCalls int
}

func NewDirectory() *Directory {
	return &Directory{
		Lists:      make(map[string][]string),
		Members:    make(map[string][]string),
		Attributes: make(map[string]*service.ListAttributes),
	}
}

func (d *Directory) UserLists(_ context.Context, identifier string, _ user.IdentityType) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ListCalls++
	if d.Err != nil {
		return nil, d.Err
	}
	lists, ok := d.Lists[identifier]
	if !ok {
		return nil, service.ErrDirectoryNullResult
	}
	return slices.Clone(lists), nil
}

func (d *Directory) ListMembers(_ context.Context, list string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.MemberCalls++
	if d.Err != nil {
		return nil, d.Err
	}
	members, ok := d.Members[list]
	if !ok {
		return nil, service.ErrDirectoryNullResult
	}
	return slices.Clone(members), nil
}

func (d *Directory) ListAttributes(_ context.Context, list string) (*service.ListAttributes, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	if a, ok := d.Attributes[list]; ok {
		c := *a
		return &c, nil
	}
	return nil, service.ErrDirectoryNullResult
}

type MembershipCache struct {
	mu      sync.Mutex
	Entries map[string]service.UserMembership
	Sets    int
}

func NewMembershipCache() *MembershipCache {
	return &MembershipCache{Entries: make(map[string]service.UserMembership)}
}

func (c *MembershipCache) Get(_ context.Context, userKey string) (*service.UserMembership, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.Entries[userKey]
	if !ok {
		return nil, false, nil
	}
	out := service.UserMembership{MemberOf: slices.Clone(m.MemberOf), NotMemberOf: slices.Clone(m.NotMemberOf)}
	return &out, true, nil
}

func (c *MembershipCache) Set(_ context.Context, userKey string, m *service.UserMembership) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sets++
	c.Entries[userKey] = service.UserMembership{MemberOf: slices.Clone(m.MemberOf), NotMemberOf: slices.Clone(m.NotMemberOf)}
	return nil
}

func (c *MembershipCache) Delete(_ context.Context, userKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Entries, userKey)
	return nil
}

type Mailer struct {
	mu   sync.Mutex
	Sent []service.Message
	Err  error
}

func (m *Mailer) Send(_ context.Context, msg service.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

// Locker is a process-local advisory lock table.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]bool)}
}

// Hold takes key without a release, simulating another process.
func (l *Locker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = true
}

func (l *Locker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, true, nil
}

type TaskQueue struct {
	mu    sync.Mutex
	Tasks []service.Task
	Err   error
}

func (q *TaskQueue) Enqueue(_ context.Context, tasks ...service.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.Tasks = append(q.Tasks, tasks...)
	return nil
}

// Drain returns and forgets the queued tasks.
func (q *TaskQueue) Drain() []service.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.Tasks
	q.Tasks = nil
	return out
}

func (q *TaskQueue) Types() []service.TaskType {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]service.TaskType, len(q.Tasks))
	for i, t := range q.Tasks {
		out[i] = t.Type
	}
	return out
}

// Publisher records events. While Err is set it records nothing and fails.
type Publisher struct {
	mu     sync.Mutex
	Events []events.Event
	Err    error
}

func (p *Publisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, e)
	return nil
}

func (p *Publisher) Names() []events.Name {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Name, len(p.Events))
	for i, e := range p.Events {
		out[i] = e.EventName()
	}
	return out
}

// RemoteSource serves bodies keyed by URL.
type RemoteSource struct {
	Bodies map[string]string
	Err    error
}

func (r *RemoteSource) Open(_ context.Context, url string) (*service.RemoteObject, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	body, ok := r.Bodies[url]
	if !ok {
		return nil, apperror.NewStorage(false, "no such url "+url, nil)
	}
	return &service.RemoteObject{Body: io.NopCloser(strings.NewReader(body)), ContentType: "video/mp4", Size: int64(len(body))}, nil
}
