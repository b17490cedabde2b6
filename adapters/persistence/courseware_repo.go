package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khoahotran/lecture-video/internal/domain/courseware"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type postgresCoursewareRepo struct {
	db     *pgxpool.Pool
	logger logger.Logger
}

func NewPostgresCoursewareRepo(db *pgxpool.Pool, log logger.Logger) courseware.Repository {
	return &postgresCoursewareRepo{db: db, logger: log}
}

const endpointColumns = `e.id, e.name, e.base_url, e.hls_api_path, e.access_token, e.refresh_token,
	e.client_id, e.client_secret, e.expires_in, e.is_global_default, e.created_at, e.updated_at`

func scanEndpoint(row pgx.Row) (*courseware.Endpoint, error) {
	e := &courseware.Endpoint{}
	err := row.Scan(&e.ID, &e.Name, &e.BaseURL, &e.HLSAPIPath, &e.AccessToken, &e.RefreshToken,
		&e.ClientID, &e.ClientSecret, &e.ExpiresIn, &e.IsGlobalDefault, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func scanEndpoints(rows pgx.Rows) ([]*courseware.Endpoint, error) {
	defer rows.Close()
	out := make([]*courseware.Endpoint, 0)
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, apperror.NewInternal("failed to scan courseware endpoint row", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal("error iterating courseware endpoint rows", err)
	}
	return out, nil
}

func (r *postgresCoursewareRepo) UpdateCredentials(ctx context.Context, e *courseware.Endpoint) error {
	query := `
		UPDATE courseware_endpoints SET access_token = $2, refresh_token = $3, expires_in = $4, updated_at = $5
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, e.ID, e.AccessToken, e.RefreshToken, e.ExpiresIn, e.UpdatedAt)
	if err != nil {
		return apperror.NewInternal("failed to update courseware credentials", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("courseware endpoint", e.Name, courseware.ErrEndpointNotFound)
	}
	return nil
}

func (r *postgresCoursewareRepo) FindByName(ctx context.Context, name string) (*courseware.Endpoint, error) {
	e, err := scanEndpoint(r.db.QueryRow(ctx, `SELECT `+endpointColumns+` FROM courseware_endpoints e WHERE e.name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("courseware endpoint", name, courseware.ErrEndpointNotFound)
		}
		return nil, apperror.NewInternal("failed to scan courseware endpoint row", err)
	}
	return e, nil
}

func (r *postgresCoursewareRepo) ListForCollection(ctx context.Context, collectionKey uuid.UUID) ([]*courseware.Endpoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+endpointColumns+`
		FROM courseware_endpoints e
		JOIN collection_courseware_endpoints ce ON ce.endpoint_id = e.id
		WHERE ce.collection_key = $1
		ORDER BY e.id`, collectionKey)
	if err != nil {
		return nil, apperror.NewInternal("failed to query collection endpoints", err)
	}
	endpoints, err := scanEndpoints(rows)
	if err != nil || len(endpoints) > 0 {
		return endpoints, err
	}

	rows, err = r.db.Query(ctx, `SELECT `+endpointColumns+` FROM courseware_endpoints e WHERE e.is_global_default ORDER BY e.id`)
	if err != nil {
		return nil, apperror.NewInternal("failed to query default endpoints", err)
	}
	return scanEndpoints(rows)
}

func (r *postgresCoursewareRepo) ListAll(ctx context.Context) ([]*courseware.Endpoint, error) {
	rows, err := r.db.Query(ctx, `SELECT `+endpointColumns+` FROM courseware_endpoints e ORDER BY e.id`)
	if err != nil {
		return nil, apperror.NewInternal("failed to query courseware endpoints", err)
	}
	return scanEndpoints(rows)
}

func (r *postgresCoursewareRepo) Associate(ctx context.Context, collectionKey uuid.UUID, endpointID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO collection_courseware_endpoints (collection_key, endpoint_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`, collectionKey, endpointID)
	if err != nil {
		return apperror.NewInternal("failed to associate courseware endpoint", err)
	}
	return nil
}
