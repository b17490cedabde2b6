package directory

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/internal/domain/user"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

const defaultRPS = 10

type moiraClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  logger.Logger
}

// NewMoiraClient authenticates to the list directory with the configured client certificate.
func NewMoiraClient(cfg config.Config, log logger.Logger) (service.Directory, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Directory.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Directory.CertFile, cfg.Directory.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load directory client certificate: %w", err)
		}
		transport.TLSClientConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}
	return newMoiraClient(cfg.Directory.BaseURL, &http.Client{Transport: transport, Timeout: cfg.Directory.Timeout}, log), nil
}

func newMoiraClient(baseURL string, client *http.Client, log logger.Logger) *moiraClient {
	return &moiraClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    client,
		limiter: rate.NewLimiter(defaultRPS, defaultRPS),
		logger:  log,
	}
}

func (c *moiraClient) UserLists(ctx context.Context, identifier string, kind user.IdentityType) ([]string, error) {
	var lists []string
	path := fmt.Sprintf("/users/%s/lists?type=%s", url.PathEscape(identifier), url.QueryEscape(string(kind)))
	if err := c.get(ctx, path, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

func (c *moiraClient) ListMembers(ctx context.Context, list string) ([]string, error) {
	var members []string
	if err := c.get(ctx, "/lists/"+url.PathEscape(list)+"/members", &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *moiraClient) ListAttributes(ctx context.Context, list string) (*service.ListAttributes, error) {
	var attrs struct {
		Name        string `json:"name"`
		MailList    bool   `json:"mailList"`
		Description string `json:"description"`
	}
	if err := c.get(ctx, "/lists/"+url.PathEscape(list), &attrs); err != nil {
		return nil, err
	}
	return &service.ListAttributes{Name: attrs.Name, MailList: attrs.MailList, Description: attrs.Description}, nil
}

// get maps 404 to ErrDirectoryNullResult and every other failure to DirectoryUnavailable.
func (c *moiraClient) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperror.NewDirectoryUnavailable("rate limiter", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return apperror.NewDirectoryUnavailable("build request "+path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.NewDirectoryUnavailable("request "+path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return service.ErrDirectoryNullResult
	case resp.StatusCode >= 300:
		c.logger.Warn("Directory request failed", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return apperror.NewDirectoryUnavailable(fmt.Sprintf("%s answered %d", path, resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.NewDirectoryUnavailable("decode "+path, err)
	}
	return nil
}
