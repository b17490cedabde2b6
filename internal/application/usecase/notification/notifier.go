// Package notification mails collection admins when a video reaches a terminal status.
package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/notification"
	"github.com/khoahotran/lecture-video/internal/domain/user"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

var tracer = otel.Tracer("notification_usecase")

// TypeFor selects the template of a terminal status.
func TypeFor(s video.VideoStatus) notification.Type {
	switch s {
	case video.StatusComplete:
		return notification.TypeSuccess
	case video.StatusTranscodeFailedVideo:
		return notification.TypeInvalidInput
	default:
		return notification.TypeOtherError
	}
}

// debugCopy lists the statuses whose rendered mail is also sent to support.
func debugCopy(s video.VideoStatus) bool {
	return s == video.StatusTranscodeFailedInternal || s == video.StatusUploadFailed
}

type Settings struct {
	BaseURL      string
	StaticURL    string
	SupportEmail string
	MailDomain   string
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		BaseURL:      strings.TrimSuffix(cfg.App.BaseURL, "/"),
		StaticURL:    cfg.App.StaticURL,
		SupportEmail: cfg.App.SupportEmail,
		MailDomain:   cfg.Directory.MailDomain,
	}
}

// MembershipChecker is the part of the membership resolver the notifier needs.
type MembershipChecker interface {
	HasCommonLists(ctx context.Context, u *user.User, candidates []string) (bool, error)
}

type NotifyUseCase struct {
	videoRepo      video.Repository
	collectionRepo collection.Repository
	userRepo       user.Repository
	templateRepo   notification.Repository
	directory      service.Directory
	membership     MembershipChecker
	mailer         service.Mailer
	settings       Settings
	logger         logger.Logger
}

func NewNotifyUseCase(
	videos video.Repository,
	collections collection.Repository,
	users user.Repository,
	templates notification.Repository,
	dir service.Directory,
	membership MembershipChecker,
	mailer service.Mailer,
	settings Settings,
	log logger.Logger,
) *NotifyUseCase {
	return &NotifyUseCase{
		videoRepo:      videos,
		collectionRepo: collections,
		userRepo:       users,
		templateRepo:   templates,
		directory:      dir,
		membership:     membership,
		mailer:         mailer,
		settings:       settings,
		logger:         log,
	}
}

// Notify renders the template selected by status and mails it to the
// collection's admins. A video deleted in the meantime is skipped.
func (uc *NotifyUseCase) Notify(ctx context.Context, videoKey uuid.UUID, status video.VideoStatus) error {
	ctx, span := tracer.Start(ctx, "Notify")
	defer span.End()
	span.SetAttributes(attribute.String("video_key", videoKey.String()), attribute.String("status", string(status)))

	l := uc.logger.With(zap.String("video_key", videoKey.String()), zap.String("status", string(status)))

	v, err := uc.videoRepo.FindByKey(ctx, videoKey)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			l.Warn("Video gone, notification skipped")
			return nil
		}
		return err
	}
	if status == "" {
		status = v.Status
	}
	c, err := uc.collectionRepo.FindByKey(ctx, v.CollectionKey)
	if err != nil {
		return err
	}

	tmpl, err := uc.template(ctx, TypeFor(status))
	if err != nil {
		return err
	}
	subject, body, err := render(tmpl, uc.vars(v, c))
	if err != nil {
		span.RecordError(err)
		return apperror.NewNotificationSend("render template", err)
	}

	to := uc.recipients(ctx, l, c)
	if len(to) == 0 {
		l.Warn("No recipients for notification")
	} else if err := uc.mailer.Send(ctx, service.Message{To: to, Subject: subject, Body: body}); err != nil {
		span.RecordError(err)
		l.Error("Failed to send notification", err, zap.Strings("to", to))
		return wrapSend(err)
	}

	if debugCopy(status) && uc.settings.SupportEmail != "" {
		msg := service.Message{
			To:      []string{uc.settings.SupportEmail},
			Subject: "DEBUG: " + subject,
			Body:    fmt.Sprintf("Recipients: %s\n\n%s", strings.Join(to, ", "), body),
		}
		if err := uc.mailer.Send(ctx, msg); err != nil {
			l.Error("Failed to send debug copy", err)
			return wrapSend(err)
		}
	}
	l.Info("Notification sent", zap.Int("recipients", len(to)))
	return nil
}

func wrapSend(err error) error {
	if errors.Is(err, apperror.ErrNotificationSend) {
		return err
	}
	return apperror.NewNotificationSend("send mail", err)
}

func (uc *NotifyUseCase) template(ctx context.Context, t notification.Type) (*notification.Template, error) {
	tmpl, err := uc.templateRepo.FindByType(ctx, t)
	if err == nil {
		return tmpl, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	def, ok := defaults[t]
	if !ok {
		return nil, apperror.NewNotFound("notification template", string(t))
	}
	return &def, nil
}

func (uc *NotifyUseCase) vars(v *video.Video, c *collection.Collection) map[string]string {
	return map[string]string{
		"video_title":      v.Title,
		"collection_title": c.Title,
		"video_url":        fmt.Sprintf("%s/videos/%s/", uc.settings.BaseURL, v.Key),
		"collection_url":   fmt.Sprintf("%s/collections/%s/", uc.settings.BaseURL, c.Key),
		"support_email":    uc.settings.SupportEmail,
		"static_url":       uc.settings.StaticURL,
	}
}

// recipients returns the mail-enabled admin list addresses, plus the owner's
// email when the owner belongs to none of those lists. Directory failures
// narrow the list instead of failing the notification.
func (uc *NotifyUseCase) recipients(ctx context.Context, l logger.Logger, c *collection.Collection) []string {
	var (
		mailLists []string
		to        []string
	)
	for _, list := range c.AdminLists {
		attrs, err := uc.directory.ListAttributes(ctx, list)
		if err != nil {
			if !errors.Is(err, service.ErrDirectoryNullResult) {
				l.Warn("List attributes unavailable", zap.String("list", list), zap.Error(err))
			}
			continue
		}
		if !attrs.MailList {
			continue
		}
		mailLists = append(mailLists, list)
		to = append(to, fmt.Sprintf("%s@%s", list, uc.settings.MailDomain))
	}

	owner, err := uc.userRepo.FindByID(ctx, c.OwnerID)
	if err != nil {
		l.Warn("Collection owner not found", zap.Int64("owner_id", c.OwnerID), zap.Error(err))
		return to
	}
	if owner.Email == "" {
		return to
	}
	member, err := uc.membership.HasCommonLists(ctx, owner, mailLists)
	if err != nil {
		l.Warn("Owner membership unknown, mailing owner directly", zap.Error(err))
	}
	if !member && !slices.Contains(to, owner.Email) {
		to = append(to, owner.Email)
	}
	return to
}

func render(t *notification.Template, vars map[string]string) (string, string, error) {
	subject, err := execute("subject", t.Subject, vars)
	if err != nil {
		return "", "", err
	}
	body, err := execute("body", t.Body, vars)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func execute(name, text string, vars map[string]string) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}
