package persistence

import (
	"context"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type postgresVideoRepo struct {
	db     *pgxpool.Pool
	logger logger.Logger
}

func NewPostgresVideoRepo(db *pgxpool.Pool, log logger.Logger) video.Repository {
	return &postgresVideoRepo{db: db, logger: log}
}

var videoColumns = []string{
	"key", "sub_key", "collection_key", "title", "description", "source_url", "status",
	"is_public", "is_private", "is_logged_in_only", "multiangle", "view_lists",
	"retranscode_scheduled", "created_at", "updated_at",
}

func qualified(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}

func scanVideo(row pgx.Row) (*video.Video, error) {
	v := &video.Video{}
	err := row.Scan(
		&v.Key, &v.SubKey, &v.CollectionKey, &v.Title, &v.Description, &v.SourceURL, &v.Status,
		&v.IsPublic, &v.IsPrivate, &v.IsLoggedInOnly, &v.Multiangle, &v.ViewLists,
		&v.RetranscodeScheduled, &v.CreatedAt, &v.UpdatedAt,
	)
	return v, err
}

func scanVideos(rows pgx.Rows) ([]*video.Video, error) {
	defer rows.Close()
	out := make([]*video.Video, 0)
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, apperror.NewInternal("failed to scan video row", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal("error iterating video rows", err)
	}
	return out, nil
}

func insertVideo(v *video.Video) (string, []any, error) {
	if v.ViewLists == nil {
		v.ViewLists = []string{}
	}
	return psql.Insert("videos").
		Columns(videoColumns...).
		Values(v.Key, v.SubKey, v.CollectionKey, v.Title, v.Description, v.SourceURL, v.Status,
			v.IsPublic, v.IsPrivate, v.IsLoggedInOnly, v.Multiangle, v.ViewLists,
			v.RetranscodeScheduled, v.CreatedAt, v.UpdatedAt).
		ToSql()
}

func (r *postgresVideoRepo) Save(ctx context.Context, v *video.Video) error {
	if err := v.Validate(); err != nil {
		return apperror.NewInvalidInput(err.Error(), err)
	}
	sqlStr, args, err := insertVideo(v)
	if err != nil {
		return apperror.NewInternal("failed to build video insert", err)
	}
	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewConflict("video", "key", v.Key.String())
		}
		return apperror.NewInternal("failed to save video", err)
	}
	return nil
}

// CreateWithFile inserts the video and its original file in one transaction.
func (r *postgresVideoRepo) CreateWithFile(ctx context.Context, v *video.Video, f *video.File) error {
	if err := v.Validate(); err != nil {
		return apperror.NewInvalidInput(err.Error(), err)
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return apperror.NewInternal("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	sqlStr, args, err := insertVideo(v)
	if err != nil {
		return apperror.NewInternal("failed to build video insert", err)
	}
	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewConflict("video", "key", v.Key.String())
		}
		return apperror.NewInternal("failed to save video", err)
	}

	f.VideoKey = v.Key
	if err := insertFile(ctx, tx, f); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.NewInternal("failed to commit video creation", err)
	}
	return nil
}

func (r *postgresVideoRepo) Update(ctx context.Context, v *video.Video) error {
	if err := v.Validate(); err != nil {
		return apperror.NewInvalidInput(err.Error(), err)
	}
	query := `
		UPDATE videos SET
			collection_key = $2, title = $3, description = $4, source_url = $5, status = $6,
			is_public = $7, is_private = $8, is_logged_in_only = $9, multiangle = $10, view_lists = $11,
			retranscode_scheduled = $12, updated_at = NOW()
		WHERE key = $1
	`
	tag, err := r.db.Exec(ctx, query, v.Key, v.CollectionKey, v.Title, v.Description, v.SourceURL, v.Status,
		v.IsPublic, v.IsPrivate, v.IsLoggedInOnly, v.Multiangle, v.ViewLists, v.RetranscodeScheduled)
	if err != nil {
		return apperror.NewInternal("failed to update video", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("video", v.Key.String(), video.ErrVideoNotFound)
	}
	return nil
}

// UpdateStatus is a compare-and-set on the status column.
func (r *postgresVideoRepo) UpdateStatus(ctx context.Context, key uuid.UUID, from, to video.VideoStatus) (bool, error) {
	query := `UPDATE videos SET status = $3, updated_at = NOW() WHERE key = $1 AND status = $2`
	tag, err := r.db.Exec(ctx, query, key, from, to)
	if err != nil {
		return false, apperror.NewInternal("failed to update video status", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ChangeKey relies on ON UPDATE CASCADE to carry dependent rows along.
func (r *postgresVideoRepo) ChangeKey(ctx context.Context, oldKey, newKey uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE videos SET key = $2, updated_at = NOW() WHERE key = $1`, oldKey, newKey)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.NewConflict("video", "key", newKey.String())
		}
		return apperror.NewInternal("failed to change video key", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("video", oldKey.String(), video.ErrVideoNotFound)
	}
	return nil
}

func (r *postgresVideoRepo) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM videos WHERE key = $1`, key)
	if err != nil {
		return apperror.NewInternal("failed to delete video", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("video", key.String(), video.ErrVideoNotFound)
	}
	return nil
}

func (r *postgresVideoRepo) findOne(ctx context.Context, id string, where sq.Sqlizer) (*video.Video, error) {
	sqlStr, args, err := psql.Select(videoColumns...).From("videos").Where(where).ToSql()
	if err != nil {
		return nil, apperror.NewInternal("failed to build video query", err)
	}
	v, err := scanVideo(r.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("video", id, video.ErrVideoNotFound)
		}
		return nil, apperror.NewInternal("failed to scan video row", err)
	}
	return v, nil
}

func (r *postgresVideoRepo) FindByKey(ctx context.Context, key uuid.UUID) (*video.Video, error) {
	return r.findOne(ctx, key.String(), sq.Eq{"key": key})
}

func (r *postgresVideoRepo) FindBySubKey(ctx context.Context, subKey uuid.UUID) (*video.Video, error) {
	return r.findOne(ctx, subKey.String(), sq.Eq{"sub_key": subKey})
}

func (r *postgresVideoRepo) query(ctx context.Context, b sq.SelectBuilder) ([]*video.Video, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, apperror.NewInternal("failed to build video query", err)
	}
	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, apperror.NewInternal("failed to query videos", err)
	}
	return scanVideos(rows)
}

func (r *postgresVideoRepo) ListByStatus(ctx context.Context, statuses ...video.VideoStatus) ([]*video.Video, error) {
	return r.query(ctx, psql.Select(videoColumns...).From("videos").
		Where(sq.Eq{"status": statusStrings(statuses)}).OrderBy("updated_at"))
}

func (r *postgresVideoRepo) ListByCollection(ctx context.Context, collectionKey uuid.UUID) ([]*video.Video, error) {
	return r.query(ctx, psql.Select(videoColumns...).From("videos").
		Where(sq.Eq{"collection_key": collectionKey}).OrderBy("created_at"))
}

func (r *postgresVideoRepo) ListRetranscodeScheduled(ctx context.Context) ([]*video.Video, error) {
	return r.query(ctx, psql.Select(videoColumns...).From("videos").
		Where(sq.Eq{"retranscode_scheduled": true}).OrderBy("updated_at"))
}

// Find selects videos for the control interface; every set filter narrows the result.
func (r *postgresVideoRepo) Find(ctx context.Context, f video.Filter) ([]*video.Video, error) {
	b := psql.Select(qualified("v", videoColumns)...).
		From("videos v").
		Join("collections c ON c.key = v.collection_key")

	if len(f.VideoKeys) > 0 {
		b = b.Where(sq.Eq{"v.key": f.VideoKeys})
	}
	if len(f.CollectionKeys) > 0 {
		b = b.Where(sq.Eq{"v.collection_key": f.CollectionKeys})
	}
	if f.CourseID != "" {
		b = b.Where(sq.Eq{"c.edx_course_id": f.CourseID})
	}
	if f.EndpointName != "" {
		b = b.Where(`c.key IN (
			SELECT ce.collection_key FROM collection_courseware_endpoints ce
			JOIN courseware_endpoints e ON e.id = ce.endpoint_id
			WHERE e.name = ?)`, f.EndpointName)
	}
	if f.OwnerUsername != "" {
		b = b.Where("c.owner_id = (SELECT id FROM users WHERE username = ?)", f.OwnerUsername)
	}
	if len(f.Statuses) > 0 {
		b = b.Where(sq.Eq{"v.status": statusStrings(f.Statuses)})
	}
	if f.CreatedAfter != nil {
		b = b.Where(sq.GtOrEq{"v.created_at": *f.CreatedAfter})
	}
	if f.CreatedBefore != nil {
		b = b.Where(sq.Lt{"v.created_at": *f.CreatedBefore})
	}
	if t := strings.TrimSpace(f.Title); t != "" {
		b = b.Where(sq.Eq{"v.title": t})
	}
	return r.query(ctx, b.OrderBy("v.created_at"))
}

func statusStrings(statuses []video.VideoStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
