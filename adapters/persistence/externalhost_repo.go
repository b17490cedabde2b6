package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khoahotran/lecture-video/internal/domain/externalhost"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type postgresExternalHostRepo struct {
	db     *pgxpool.Pool
	logger logger.Logger
}

func NewPostgresExternalHostRepo(db *pgxpool.Pool, log logger.Logger) externalhost.Repository {
	return &postgresExternalHostRepo{db: db, logger: log}
}

const externalHostColumns = "video_key, external_id, status, created_at, updated_at"

func scanExternalHostVideo(row pgx.Row) (*externalhost.Video, error) {
	v := &externalhost.Video{}
	var externalID sql.NullString
	if err := row.Scan(&v.VideoKey, &externalID, &v.Status, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.ExternalID = externalID.String
	return v, nil
}

func (r *postgresExternalHostRepo) Save(ctx context.Context, v *externalhost.Video) error {
	query := `
		INSERT INTO external_host_videos (video_key, external_id, status)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`
	if err := r.db.QueryRow(ctx, query, v.VideoKey, nullable(v.ExternalID), v.Status).Scan(&v.CreatedAt, &v.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewConflict("external host video", "video_key", v.VideoKey.String())
		}
		return apperror.NewInternal("failed to save external host video", err)
	}
	return nil
}

func (r *postgresExternalHostRepo) Update(ctx context.Context, v *externalhost.Video) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE external_host_videos SET external_id = $2, status = $3, updated_at = NOW() WHERE video_key = $1`,
		v.VideoKey, nullable(v.ExternalID), v.Status)
	if err != nil {
		return apperror.NewInternal("failed to update external host video", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("external host video", v.VideoKey.String(), externalhost.ErrNotFound)
	}
	return nil
}

func (r *postgresExternalHostRepo) Delete(ctx context.Context, videoKey uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM external_host_videos WHERE video_key = $1`, videoKey)
	if err != nil {
		return apperror.NewInternal("failed to delete external host video", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("external host video", videoKey.String(), externalhost.ErrNotFound)
	}
	return nil
}

func (r *postgresExternalHostRepo) FindByVideo(ctx context.Context, videoKey uuid.UUID) (*externalhost.Video, error) {
	v, err := scanExternalHostVideo(r.db.QueryRow(ctx,
		`SELECT `+externalHostColumns+` FROM external_host_videos WHERE video_key = $1`, videoKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("external host video", videoKey.String(), externalhost.ErrNotFound)
		}
		return nil, apperror.NewInternal("failed to scan external host video row", err)
	}
	return v, nil
}

func (r *postgresExternalHostRepo) ListNonTerminal(ctx context.Context) ([]*externalhost.Video, error) {
	terminal := []string{
		string(externalhost.StatusProcessed), string(externalhost.StatusFailed),
		string(externalhost.StatusRejected), string(externalhost.StatusDeleted),
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+externalHostColumns+` FROM external_host_videos WHERE NOT (status = ANY($1)) ORDER BY updated_at`, terminal)
	if err != nil {
		return nil, apperror.NewInternal("failed to query external host videos", err)
	}
	defer rows.Close()
	out := make([]*externalhost.Video, 0)
	for rows.Next() {
		v, err := scanExternalHostVideo(rows)
		if err != nil {
			return nil, apperror.NewInternal("failed to scan external host video row", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal("error iterating external host video rows", err)
	}
	return out, nil
}
