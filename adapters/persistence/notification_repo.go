package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khoahotran/lecture-video/internal/domain/notification"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type postgresNotificationRepo struct {
	db     *pgxpool.Pool
	logger logger.Logger
}

func NewPostgresNotificationRepo(db *pgxpool.Pool, log logger.Logger) notification.Repository {
	return &postgresNotificationRepo{db: db, logger: log}
}

func (r *postgresNotificationRepo) FindByType(ctx context.Context, t notification.Type) (*notification.Template, error) {
	tpl := &notification.Template{}
	err := r.db.QueryRow(ctx,
		`SELECT notification_type, email_subject, text_body FROM notification_templates WHERE notification_type = $1`, t).
		Scan(&tpl.Type, &tpl.Subject, &tpl.Body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("notification template", string(t), notification.ErrTemplateNotFound)
		}
		return nil, apperror.NewInternal("failed to scan notification template row", err)
	}
	return tpl, nil
}

func (r *postgresNotificationRepo) Upsert(ctx context.Context, t *notification.Template) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notification_templates (notification_type, email_subject, text_body)
		VALUES ($1, $2, $3)
		ON CONFLICT (notification_type) DO UPDATE SET
			email_subject = EXCLUDED.email_subject, text_body = EXCLUDED.text_body, updated_at = NOW()`,
		t.Type, t.Subject, t.Body)
	if err != nil {
		return apperror.NewInternal("failed to upsert notification template", err)
	}
	return nil
}
