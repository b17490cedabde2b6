package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
	"github.com/khoahotran/lecture-video/pkg/retry"
)

type httpSource struct {
	client *http.Client
	retry  retry.Config
	logger logger.Logger
}

// NewHTTPSource streams shared links. Only the response headers are bounded
// by timeout; the body streams for as long as the caller reads.
func NewHTTPSource(headerTimeout time.Duration, log logger.Logger) service.RemoteSource {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &httpSource{
		client: &http.Client{Transport: transport},
		retry:  retry.DefaultConfig(),
		logger: log,
	}
}

func (s *httpSource) Open(ctx context.Context, rawURL string) (*service.RemoteObject, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, apperror.NewInvalidInput(fmt.Sprintf("unsupported source url %q", rawURL), err)
	}
	if strings.HasSuffix(u.Host, "dropbox.com") {
		// shared links render a preview page unless dl=1
		q := u.Query()
		q.Set("dl", "1")
		u.RawQuery = q.Encode()
	}

	var obj *service.RemoteObject
	err = retry.Do(ctx, s.retry, apperror.IsRetriable, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return apperror.NewInvalidInput("failed to build source request", err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return apperror.NewStorage(true, "failed to reach source url", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			retriable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
			return apperror.NewStorage(retriable, fmt.Sprintf("source url returned %d", resp.StatusCode), nil)
		}
		obj = &service.RemoteObject{
			Body:        resp.Body,
			ContentType: resp.Header.Get("Content-Type"),
			Size:        resp.ContentLength,
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("Failed to open remote source", zap.String("host", u.Host), zap.Error(err))
		return nil, err
	}
	return obj, nil
}
