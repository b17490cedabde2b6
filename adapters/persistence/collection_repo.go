package persistence

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type postgresCollectionRepo struct {
	db     *pgxpool.Pool
	logger logger.Logger
}

func NewPostgresCollectionRepo(db *pgxpool.Pool, log logger.Logger) collection.Repository {
	return &postgresCollectionRepo{db: db, logger: log}
}

var collectionColumns = []string{
	"key", "title", "slug", "description", "owner_id", "view_lists", "admin_lists",
	"stream_source", "edx_course_id", "retranscode_scheduled", "is_logged_in_only",
	"created_at", "updated_at",
}

func scanCollection(row pgx.Row) (*collection.Collection, error) {
	c := &collection.Collection{}
	var courseID sql.NullString
	err := row.Scan(
		&c.Key, &c.Title, &c.Slug, &c.Description, &c.OwnerID, &c.ViewLists, &c.AdminLists,
		&c.StreamSource, &courseID, &c.RetranscodeScheduled, &c.IsLoggedInOnly,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.EdxCourseID = courseID.String
	return c, nil
}

func scanCollections(rows pgx.Rows) ([]*collection.Collection, error) {
	defer rows.Close()
	out := make([]*collection.Collection, 0)
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, apperror.NewInternal("failed to scan collection row", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal("error iterating collection rows", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *postgresCollectionRepo) Save(ctx context.Context, c *collection.Collection) error {
	if err := c.Validate(); err != nil {
		return apperror.NewInvalidInput(err.Error(), err)
	}
	if c.StreamSource == "" {
		c.StreamSource = collection.StreamCDN
	}
	sqlStr, args, err := psql.Insert("collections").
		Columns(collectionColumns...).
		Values(c.Key, c.Title, c.Slug, c.Description, c.OwnerID, c.ViewLists, c.AdminLists,
			c.StreamSource, nullable(c.EdxCourseID), c.RetranscodeScheduled, c.IsLoggedInOnly,
			c.CreatedAt, c.UpdatedAt).
		ToSql()
	if err != nil {
		return apperror.NewInternal("failed to build collection insert", err)
	}
	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewConflict("collection", "key", c.Key.String())
		}
		return apperror.NewInternal("failed to save collection", err)
	}
	return nil
}

func (r *postgresCollectionRepo) Update(ctx context.Context, c *collection.Collection) error {
	if err := c.Validate(); err != nil {
		return apperror.NewInvalidInput(err.Error(), err)
	}
	query := `
		UPDATE collections SET
			title = $2, slug = $3, description = $4, owner_id = $5, view_lists = $6, admin_lists = $7,
			stream_source = $8, edx_course_id = $9, retranscode_scheduled = $10, is_logged_in_only = $11,
			updated_at = NOW()
		WHERE key = $1
	`
	tag, err := r.db.Exec(ctx, query, c.Key, c.Title, c.Slug, c.Description, c.OwnerID, c.ViewLists, c.AdminLists,
		c.StreamSource, nullable(c.EdxCourseID), c.RetranscodeScheduled, c.IsLoggedInOnly)
	if err != nil {
		return apperror.NewInternal("failed to update collection", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("collection", c.Key.String(), collection.ErrCollectionNotFound)
	}
	return nil
}

func (r *postgresCollectionRepo) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM collections WHERE key = $1`, key)
	if err != nil {
		return apperror.NewInternal("failed to delete collection", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("collection", key.String(), collection.ErrCollectionNotFound)
	}
	return nil
}

func (r *postgresCollectionRepo) findOne(ctx context.Context, id string, where sq.Sqlizer) (*collection.Collection, error) {
	sqlStr, args, err := psql.Select(collectionColumns...).From("collections").Where(where).
		OrderBy("created_at").Limit(1).ToSql()
	if err != nil {
		return nil, apperror.NewInternal("failed to build collection query", err)
	}
	c, err := scanCollection(r.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("collection", id, collection.ErrCollectionNotFound)
		}
		return nil, apperror.NewInternal("failed to scan collection row", err)
	}
	return c, nil
}

func (r *postgresCollectionRepo) FindByKey(ctx context.Context, key uuid.UUID) (*collection.Collection, error) {
	return r.findOne(ctx, key.String(), sq.Eq{"key": key})
}

func (r *postgresCollectionRepo) FindBySlug(ctx context.Context, ownerID int64, slug string) (*collection.Collection, error) {
	return r.findOne(ctx, slug, sq.Eq{"owner_id": ownerID, "slug": slug})
}

func (r *postgresCollectionRepo) list(ctx context.Context, where sq.Sqlizer) ([]*collection.Collection, error) {
	sqlStr, args, err := psql.Select(collectionColumns...).From("collections").Where(where).
		OrderBy("created_at").ToSql()
	if err != nil {
		return nil, apperror.NewInternal("failed to build collection query", err)
	}
	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, apperror.NewInternal("failed to query collections", err)
	}
	return scanCollections(rows)
}

func (r *postgresCollectionRepo) ListByCourseID(ctx context.Context, courseID string) ([]*collection.Collection, error) {
	return r.list(ctx, sq.Eq{"edx_course_id": courseID})
}

func (r *postgresCollectionRepo) ListRetranscodeScheduled(ctx context.Context) ([]*collection.Collection, error) {
	return r.list(ctx, sq.Eq{"retranscode_scheduled": true})
}
