package mail

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type smtpMailer struct {
	from   string
	send   func(msgs ...*gomail.Message) error
	logger logger.Logger
}

func NewSMTPMailer(cfg config.Config, log logger.Logger) service.Mailer {
	dialer := gomail.NewDialer(cfg.Mail.SMTPHost, cfg.Mail.SMTPPort, cfg.Mail.SMTPUsername, cfg.Mail.SMTPPassword)
	return &smtpMailer{from: cfg.Mail.From, send: dialer.DialAndSend, logger: log}
}

// Send renders one message per recipient so %recipient.<var>% placeholders
// behave as they do with the batch provider.
func (m *smtpMailer) Send(ctx context.Context, msg service.Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	msgs := make([]*gomail.Message, 0, len(msg.To))
	for _, addr := range msg.To {
		gm := gomail.NewMessage()
		gm.SetHeader("From", m.from)
		gm.SetHeader("To", addr)
		gm.SetHeader("Subject", Substitute(msg.Subject, msg.Vars[addr]))
		gm.SetBody("text/plain", Substitute(msg.Body, msg.Vars[addr]))
		msgs = append(msgs, gm)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.send(msgs...); err != nil {
		return apperror.NewNotificationSend("smtp delivery", err)
	}
	m.logger.Info("Sent notification over SMTP", zap.Int("recipients", len(msgs)))
	return nil
}

// Substitute replaces %recipient.<name>% placeholders with vars[name].
func Substitute(s string, vars map[string]string) string {
	if len(vars) == 0 {
		return s
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "%recipient."+k+"%", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
