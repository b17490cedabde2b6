package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
	"github.com/khoahotran/lecture-video/pkg/retry"
)

func newTestSource() *httpSource {
	s := NewHTTPSource(time.Second, logger.NewNop()).(*httpSource)
	s.retry = retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, Multiplier: 1}
	return s
}

func TestOpen_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	obj, err := newTestSource().Open(context.Background(), srv.URL+"/lecture.mp4")
	require.NoError(t, err)
	defer obj.Body.Close()

	body, _ := io.ReadAll(obj.Body)
	assert.Equal(t, "bytes", string(body))
	assert.Equal(t, "video/mp4", obj.ContentType)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpen_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestSource().Open(context.Background(), srv.URL)
	assert.ErrorIs(t, err, apperror.ErrPermanentStorage)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpen_RejectsNonHTTP(t *testing.T) {
	_, err := newTestSource().Open(context.Background(), "file:///etc/passwd")
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}
