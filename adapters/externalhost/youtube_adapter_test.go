package externalhost

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/externalhost"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type scriptedInserter struct {
	results []insertResult
	calls   int
	bodies  []string
}

type insertResult struct {
	video *youtube.Video
	err   error
}

func (s *scriptedInserter) Insert(_ context.Context, _ *youtube.Video, media io.Reader) (*youtube.Video, error) {
	b, _ := io.ReadAll(media)
	s.bodies = append(s.bodies, string(b))
	r := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	return r.video, r.err
}

func sourceFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, os.WriteFile(p, []byte("video-bytes"), 0o600))
	return p
}

func newTestAdapter(ins videoInserter) (*youTubeAdapter, *[]time.Duration) {
	a := newYouTubeAdapter(nil, ins, 0, logger.NewNop())
	var waits []time.Duration
	a.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return a, &waits
}

func TestUploadVideo_SessionFailureIsTransientWithoutNewSession(t *testing.T) {
	ins := &scriptedInserter{results: []insertResult{
		{err: &googleapi.Error{Code: 503}},
		{video: &youtube.Video{Id: "never-reached"}},
	}}
	a, waits := newTestAdapter(ins)

	_, err := a.UploadVideo(context.Background(), service.HostedVideo{Title: "t", Privacy: externalhost.PrivacyPublic, Path: sourceFile(t)})
	assert.ErrorIs(t, err, apperror.ErrExternalHostTransient)
	assert.Equal(t, 1, ins.calls)
	assert.Empty(t, *waits)
}

func TestUploadVideo_SucceedsWithStatus(t *testing.T) {
	ins := &scriptedInserter{results: []insertResult{
		{video: &youtube.Video{Id: "dQw4w9WgXcQ", Status: &youtube.VideoStatus{UploadStatus: "uploaded"}}},
	}}
	a, waits := newTestAdapter(ins)

	out, err := a.UploadVideo(context.Background(), service.HostedVideo{Title: "t", Privacy: externalhost.PrivacyPublic, Path: sourceFile(t)})
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", out.ExternalID)
	assert.Equal(t, externalhost.StatusUploaded, out.Status)
	assert.Empty(t, *waits)
	assert.Equal(t, []string{"video-bytes"}, ins.bodies)
}

// resumableServer plays the upload side of the videos endpoint: the middle
// chunk fails once with 503 and every chunk's start offset is recorded.
type resumableServer struct {
	mu       sync.Mutex
	sessions int
	offsets  []int64
	failed   bool
}

func (rs *resumableServer) handler(t *testing.T, sessionURL *string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/videos"):
			assert.Equal(t, "resumable", r.URL.Query().Get("uploadType"))
			_, _ = io.Copy(io.Discard, r.Body)
			rs.sessions++
			w.Header().Set("Location", *sessionURL)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/session":
			_, _ = io.Copy(io.Discard, r.Body)
			rng := strings.TrimPrefix(r.Header.Get("Content-Range"), "bytes ")
			start, err := strconv.ParseInt(rng[:max(strings.Index(rng, "-"), 0)], 10, 64)
			if !assert.NoError(t, err, "content range %q", rng) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			rs.offsets = append(rs.offsets, start)
			if start == googleapi.MinUploadChunkSize && !rs.failed {
				rs.failed = true
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			if strings.HasSuffix(rng, "/*") {
				w.Header().Set("X-Http-Status-Code-Override", "308")
				w.WriteHeader(http.StatusOK)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"yt-resumed","status":{"uploadStatus":"uploaded"}}`)
		default:
			http.NotFound(w, r)
		}
	}
}

func TestUploadVideo_ChunkFailureRetriedInsideSession(t *testing.T) {
	rs := &resumableServer{}
	var sessionURL string
	srv := httptest.NewServer(rs.handler(t, &sessionURL))
	defer srv.Close()
	sessionURL = srv.URL + "/session"

	ctx := context.Background()
	svc, err := youtube.NewService(ctx, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	ins := serviceInserter{svc: svc, chunkSize: googleapi.MinUploadChunkSize, retryDeadline: time.Minute}
	a, waits := newTestAdapter(ins)

	p := filepath.Join(t.TempDir(), "lecture.mp4")
	require.NoError(t, os.WriteFile(p, make([]byte, 2*googleapi.MinUploadChunkSize+googleapi.MinUploadChunkSize/2), 0o600))

	out, err := a.UploadVideo(ctx, service.HostedVideo{Title: "t", Privacy: externalhost.PrivacyPrivate, Path: p})
	require.NoError(t, err)
	assert.Equal(t, "yt-resumed", out.ExternalID)
	assert.Empty(t, *waits)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	assert.Equal(t, 1, rs.sessions)
	assert.Equal(t, []int64{0, googleapi.MinUploadChunkSize, googleapi.MinUploadChunkSize, 2 * googleapi.MinUploadChunkSize}, rs.offsets)
}

func TestBackoffBudget(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoffBudget(1))
	assert.Equal(t, 2046*time.Second, backoffBudget(defaultMaxRetries))
}

func TestUploadVideo_ClientErrorSurfacesImmediately(t *testing.T) {
	ins := &scriptedInserter{results: []insertResult{{err: &googleapi.Error{Code: 403}}}}
	a, waits := newTestAdapter(ins)

	_, err := a.UploadVideo(context.Background(), service.HostedVideo{Path: sourceFile(t)})
	assert.ErrorIs(t, err, apperror.ErrExternalHostPermanent)
	assert.Equal(t, 1, ins.calls)
	assert.Empty(t, *waits)
}

func TestUploadVideo_MissingIDFailsAfterFullRetryBudget(t *testing.T) {
	ins := &scriptedInserter{results: []insertResult{{video: &youtube.Video{}}}}
	a, waits := newTestAdapter(ins)

	_, err := a.UploadVideo(context.Background(), service.HostedVideo{Path: sourceFile(t)})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrExternalHostPermanent)
	assert.ErrorIs(t, err, errMissingID)
	assert.Equal(t, defaultMaxRetries+1, ins.calls)
	require.Len(t, *waits, defaultMaxRetries)
	assert.Equal(t, 1024*time.Second, (*waits)[defaultMaxRetries-1])
}

func TestUploadVideo_MissingSourceFile(t *testing.T) {
	a, _ := newTestAdapter(&scriptedInserter{})
	_, err := a.UploadVideo(context.Background(), service.HostedVideo{Path: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, apperror.ErrInternal)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(&googleapi.Error{Code: 500}, "x"), apperror.ErrExternalHostTransient)
	assert.ErrorIs(t, classify(&googleapi.Error{Code: 429}, "x"), apperror.ErrExternalHostTransient)
	assert.ErrorIs(t, classify(&googleapi.Error{Code: 400}, "x"), apperror.ErrExternalHostPermanent)
	assert.ErrorIs(t, classify(errors.New("dial tcp: timeout"), "x"), apperror.ErrExternalHostTransient)
	assert.Equal(t, context.Canceled, classify(context.Canceled, "x"))
}
