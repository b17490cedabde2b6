package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

const defaultBatchChunk = 1000

type mailgunMailer struct {
	endpoint  string
	apiKey    string
	from      string
	chunkSize int
	http      *http.Client
	limiter   *rate.Limiter
	logger    logger.Logger
}

// NewMailgunMailer posts batches of at most cfg.Mail.BatchChunkSize recipients,
// letting the provider substitute %recipient.<var>% per address.
func NewMailgunMailer(cfg config.Config, log logger.Logger) service.Mailer {
	return newMailgunMailer(cfg.Mail.MailgunURL, cfg.Mail.MailgunKey, cfg.Mail.From, cfg.Mail.BatchChunkSize,
		&http.Client{Timeout: cfg.Mail.Timeout}, log)
}

func newMailgunMailer(endpoint, key, from string, chunk int, client *http.Client, log logger.Logger) *mailgunMailer {
	if chunk <= 0 {
		chunk = defaultBatchChunk
	}
	return &mailgunMailer{
		endpoint:  strings.TrimSuffix(endpoint, "/") + "/messages",
		apiKey:    key,
		from:      from,
		chunkSize: chunk,
		http:      client,
		limiter:   rate.NewLimiter(rate.Limit(5), 5),
		logger:    log,
	}
}

func (m *mailgunMailer) Send(ctx context.Context, msg service.Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	for start := 0; start < len(msg.To); start += m.chunkSize {
		end := min(start+m.chunkSize, len(msg.To))
		if err := m.sendBatch(ctx, msg, msg.To[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (m *mailgunMailer) sendBatch(ctx context.Context, msg service.Message, to []string) error {
	vars := make(map[string]map[string]string, len(to))
	for _, addr := range to {
		v := msg.Vars[addr]
		if v == nil {
			v = map[string]string{}
		}
		vars[addr] = v
	}
	varsJSON, err := json.Marshal(vars)
	if err != nil {
		return apperror.NewNotificationSend("encode recipient variables", err)
	}

	form := url.Values{}
	form.Set("from", m.from)
	for _, addr := range to {
		form.Add("to", addr)
	}
	form.Set("subject", msg.Subject)
	form.Set("text", msg.Body)
	form.Set("recipient-variables", string(varsJSON))

	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return apperror.NewNotificationSend("build mailgun request", err)
	}
	req.SetBasicAuth("api", m.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return apperror.NewNotificationSend("post to mailgun", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return apperror.NewNotificationSend(fmt.Sprintf("mailgun answered %d: %s", resp.StatusCode, body), nil)
	}
	m.logger.Info("Sent notification batch", zap.Int("recipients", len(to)), zap.String("subject", msg.Subject))
	return nil
}
