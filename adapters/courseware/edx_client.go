package courseware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/internal/domain/courseware"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type edxClient struct {
	http      *http.Client
	limiter   *rate.Limiter
	apiPath   string
	tokenPath string
	now       func() time.Time
	logger    logger.Logger
}

func NewEdxClient(cfg config.Config, log logger.Logger) service.CoursewareClient {
	limit := rate.Inf
	if cfg.Edx.RPS > 0 {
		limit = rate.Limit(cfg.Edx.RPS)
	}
	return &edxClient{
		http:      &http.Client{Timeout: cfg.Edx.Timeout},
		limiter:   rate.NewLimiter(limit, 1),
		apiPath:   cfg.Edx.HLSAPIPath,
		tokenPath: cfg.Edx.TokenPath,
		now:       time.Now,
		logger:    log,
	}
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

func (c *edxClient) videosURL(ep *courseware.Endpoint) string {
	p := ep.HLSAPIPath
	if p == "" {
		p = c.apiPath
	}
	return joinURL(ep.BaseURL, p)
}

func (c *edxClient) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// PostVideo sends one payload; the response status is returned as-is so the
// caller can record per-endpoint outcomes.
func (c *edxClient) PostVideo(ctx context.Context, ep *courseware.Endpoint, payload service.CoursewareVideo) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, apperror.NewInternal("marshal courseware payload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.videosURL(ep), bytes.NewReader(body))
	if err != nil {
		return 0, apperror.NewCoursewareRequest("build request for "+ep.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ep.AccessToken)

	resp, err := c.do(ctx, req)
	if err != nil {
		return 0, apperror.NewCoursewareRequest("post video to "+ep.Name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		c.logger.Warn("Courseware endpoint rejected video",
			zap.String("endpoint", ep.Name), zap.Int("status", resp.StatusCode), zap.String("client_video_id", payload.ClientVideoID))
	}
	return resp.StatusCode, nil
}

type videoPage struct {
	Results []service.CoursewareVideo `json:"results"`
	Next    *string                   `json:"next"`
}

// ListCourseVideos follows pagination; the endpoint answers either a bare list
// or a {"results", "next"} page.
func (c *edxClient) ListCourseVideos(ctx context.Context, ep *courseware.Endpoint, courseID string) ([]service.CoursewareVideo, error) {
	u, err := url.Parse(c.videosURL(ep))
	if err != nil {
		return nil, apperror.NewCoursewareRequest("parse endpoint url "+ep.Name, err)
	}
	q := u.Query()
	q.Set("course", courseID)
	u.RawQuery = q.Encode()
	next := u.String()

	var videos []service.CoursewareVideo
	for next != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, apperror.NewCoursewareRequest("build request for "+ep.Name, err)
		}
		req.Header.Set("Authorization", "Bearer "+ep.AccessToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.do(ctx, req)
		if err != nil {
			return nil, apperror.NewCoursewareRequest("list videos on "+ep.Name, err)
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, apperror.NewCoursewareRequest("read video list from "+ep.Name, err)
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, apperror.NewCoursewareAuth(fmt.Sprintf("%s answered %d", ep.Name, resp.StatusCode), nil)
		case resp.StatusCode >= 300:
			return nil, apperror.NewCoursewareRequest(fmt.Sprintf("%s answered %d", ep.Name, resp.StatusCode), nil)
		}

		next = ""
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var list []service.CoursewareVideo
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, apperror.NewCoursewareRequest("decode video list from "+ep.Name, err)
			}
			videos = append(videos, list...)
			continue
		}
		var page videoPage
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, apperror.NewCoursewareRequest("decode video page from "+ep.Name, err)
		}
		videos = append(videos, page.Results...)
		if page.Next != nil {
			next = *page.Next
		}
	}
	return videos, nil
}

// RefreshToken exchanges the stored refresh token and writes the new
// credentials back onto ep.
func (c *edxClient) RefreshToken(ctx context.Context, ep *courseware.Endpoint) error {
	conf := &oauth2.Config{
		ClientID:     ep.ClientID,
		ClientSecret: ep.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  joinURL(ep.BaseURL, c.tokenPath),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{
		RefreshToken: ep.RefreshToken,
		Expiry:       c.now().Add(-time.Minute),
	}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return apperror.NewCoursewareAuth(fmt.Sprintf("refresh for %s answered %d", ep.Name, rerr.Response.StatusCode), err)
		}
		return apperror.NewCoursewareRequest("refresh token for "+ep.Name, err)
	}

	now := c.now()
	ep.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		ep.RefreshToken = tok.RefreshToken
	}
	ep.ExpiresIn = 0
	if !tok.Expiry.IsZero() {
		ep.ExpiresIn = int(tok.Expiry.Sub(now).Seconds())
	}
	ep.UpdatedAt = now
	c.logger.Info("Refreshed courseware credentials", zap.String("endpoint", ep.Name), zap.Int("expires_in", ep.ExpiresIn))
	return nil
}
