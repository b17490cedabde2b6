package externalhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/internal/domain/externalhost"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

const (
	defaultMaxRetries = 10
	defaultChunkSize  = 16 * 1024 * 1024
)

var errMissingID = errors.New("upload response carried no video id")

// videoInserter performs one complete resumable upload session.
type videoInserter interface {
	Insert(ctx context.Context, v *youtube.Video, media io.Reader) (*youtube.Video, error)
}

// serviceInserter lets the client library re-send a failed chunk inside the
// session on 5xx and transport errors until retryDeadline runs out.
type serviceInserter struct {
	svc           *youtube.Service
	chunkSize     int
	retryDeadline time.Duration
}

func (s serviceInserter) Insert(ctx context.Context, v *youtube.Video, media io.Reader) (*youtube.Video, error) {
	return s.svc.Videos.Insert([]string{"snippet", "status"}, v).
		Media(media, googleapi.ChunkSize(s.chunkSize), googleapi.ChunkRetryDeadline(s.retryDeadline)).
		Context(ctx).
		Do()
}

// backoffBudget is the total wait of retries sleeping 2^retry seconds each.
func backoffBudget(retries int) time.Duration {
	return time.Duration(1<<(retries+1)-2) * time.Second
}

type youTubeAdapter struct {
	svc        *youtube.Service
	inserter   videoInserter
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
	logger     logger.Logger
}

// NewYouTubeAdapter authorises with the channel's stored refresh token.
func NewYouTubeAdapter(ctx context.Context, cfg config.Config, log logger.Logger) (service.ExternalHost, error) {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.YouTube.ClientID,
		ClientSecret: cfg.YouTube.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeForceSslScope},
	}
	httpClient := oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: cfg.YouTube.RefreshToken})
	if cfg.YouTube.Timeout > 0 {
		httpClient.Timeout = cfg.YouTube.Timeout
	}
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	chunk := cfg.YouTube.ChunkSizeMB * 1024 * 1024
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	retries := cfg.YouTube.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	ins := serviceInserter{svc: svc, chunkSize: chunk, retryDeadline: backoffBudget(retries)}
	return newYouTubeAdapter(svc, ins, retries, log), nil
}

func newYouTubeAdapter(svc *youtube.Service, ins videoInserter, maxRetries int, log logger.Logger) *youTubeAdapter {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &youTubeAdapter{svc: svc, inserter: ins, maxRetries: maxRetries, sleep: sleepCtx, logger: log}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// UploadVideo streams the file through one resumable session; failed chunks
// are retried inside it. A session that completes without a video id is
// started again after 2^retry seconds, up to maxRetries times.
func (a *youTubeAdapter) UploadVideo(ctx context.Context, v service.HostedVideo) (*service.HostedUpload, error) {
	f, err := os.Open(v.Path)
	if err != nil {
		return nil, apperror.NewInternal("open upload source", err)
	}
	defer f.Close()

	body := &youtube.Video{
		Snippet: &youtube.VideoSnippet{Title: v.Title, Description: v.Description},
		Status:  &youtube.VideoStatus{PrivacyStatus: string(v.Privacy)},
	}

	l := a.logger.With(zap.String("title", v.Title))
	for retry := 0; ; {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, apperror.NewInternal("rewind upload source", err)
		}
		resp, err := a.inserter.Insert(ctx, body, f)
		if err != nil {
			return nil, classify(err, "upload video")
		}
		if resp != nil && resp.Id != "" {
			l.Info("Uploaded video to external host", zap.String("external_id", resp.Id), zap.Int("retries", retry))
			return &service.HostedUpload{ExternalID: resp.Id, Status: uploadStatus(resp)}, nil
		}

		retry++
		if retry > a.maxRetries {
			return nil, apperror.NewExternalHost(false, fmt.Sprintf("upload video: gave up after %d retries", a.maxRetries), errMissingID)
		}
		wait := time.Duration(1<<retry) * time.Second
		l.Warn("Upload finished without a video id, retrying", zap.Int("retry", retry), zap.Duration("wait", wait))
		if err := a.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func uploadStatus(v *youtube.Video) externalhost.Status {
	if v.Status != nil && v.Status.UploadStatus != "" {
		return externalhost.Status(v.Status.UploadStatus)
	}
	return externalhost.StatusUploaded
}

// UploadCaption updates the caption track in language if one exists and inserts it otherwise.
func (a *youTubeAdapter) UploadCaption(ctx context.Context, externalID, language, name string, body io.Reader) error {
	existing, err := a.ListCaptions(ctx, externalID)
	if err != nil {
		return err
	}
	if id, ok := existing[language]; ok {
		return a.UpdateCaption(ctx, id, body)
	}
	_, err = a.svc.Captions.Insert([]string{"snippet"}, &youtube.Caption{
		Snippet: &youtube.CaptionSnippet{VideoId: externalID, Language: language, Name: name},
	}).Media(body).Context(ctx).Do()
	if err != nil {
		return classify(err, "insert caption for "+externalID)
	}
	return nil
}

func (a *youTubeAdapter) ListCaptions(ctx context.Context, externalID string) (map[string]string, error) {
	resp, err := a.svc.Captions.List([]string{"snippet"}, externalID).Context(ctx).Do()
	if err != nil {
		return nil, classify(err, "list captions for "+externalID)
	}
	captions := make(map[string]string, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet != nil {
			captions[item.Snippet.Language] = item.Id
		}
	}
	return captions, nil
}

func (a *youTubeAdapter) UpdateCaption(ctx context.Context, captionID string, body io.Reader) error {
	_, err := a.svc.Captions.Update([]string{"snippet"}, &youtube.Caption{Id: captionID}).Media(body).Context(ctx).Do()
	if err != nil {
		return classify(err, "update caption "+captionID)
	}
	return nil
}

func (a *youTubeAdapter) DeleteCaption(ctx context.Context, captionID string) error {
	if err := a.svc.Captions.Delete(captionID).Context(ctx).Do(); err != nil {
		return classify(err, "delete caption "+captionID)
	}
	return nil
}

func (a *youTubeAdapter) DeleteVideo(ctx context.Context, externalID string) error {
	if err := a.svc.Videos.Delete(externalID).Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify(err, "delete video "+externalID)
	}
	return nil
}

func (a *youTubeAdapter) VideoStatus(ctx context.Context, externalID string) (externalhost.Status, error) {
	resp, err := a.svc.Videos.List([]string{"status"}).Id(externalID).Context(ctx).Do()
	if err != nil {
		return "", classify(err, "video status "+externalID)
	}
	if len(resp.Items) == 0 {
		return externalhost.StatusDeleted, nil
	}
	return uploadStatus(resp.Items[0]), nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func classify(err error, details string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		transient := gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
		return apperror.NewExternalHost(transient, details, err)
	}
	return apperror.NewExternalHost(true, details, err)
}
