package persistence

import (
	"context"
	"errors"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Files

type postgresFileRepo struct {
	db     *pgxpool.Pool
	logger logger.Logger
}

func NewPostgresFileRepo(db *pgxpool.Pool, log logger.Logger) video.FileRepository {
	return &postgresFileRepo{db: db, logger: log}
}

var fileColumns = []string{"id", "object_key", "bucket", "video_key", "encoding", "preset_id", "created_at", "updated_at"}

func scanFile(row pgx.Row) (*video.File, error) {
	f := &video.File{}
	err := row.Scan(&f.ID, &f.ObjectKey, &f.Bucket, &f.VideoKey, &f.Encoding, &f.PresetID, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func scanFiles(rows pgx.Rows) ([]*video.File, error) {
	defer rows.Close()
	out := make([]*video.File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, apperror.NewInternal("failed to scan video file row", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal("error iterating video file rows", err)
	}
	return out, nil
}

func insertFile(ctx context.Context, q querier, f *video.File) error {
	query := `
		INSERT INTO video_files (object_key, bucket, video_key, encoding, preset_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := q.QueryRow(ctx, query, f.ObjectKey, f.Bucket, f.VideoKey, f.Encoding, f.PresetID).
		Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.NewConflict("video file", "object_key", f.ObjectKey)
		}
		return apperror.NewInternal("failed to save video file", err)
	}
	return nil
}

func (r *postgresFileRepo) Save(ctx context.Context, f *video.File) error {
	return insertFile(ctx, r.db, f)
}

func (r *postgresFileRepo) Upsert(ctx context.Context, f *video.File) error {
	query := `
		INSERT INTO video_files (object_key, bucket, video_key, encoding, preset_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (object_key) DO UPDATE SET
			bucket = EXCLUDED.bucket, video_key = EXCLUDED.video_key, encoding = EXCLUDED.encoding,
			preset_id = EXCLUDED.preset_id, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, f.ObjectKey, f.Bucket, f.VideoKey, f.Encoding, f.PresetID).
		Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return apperror.NewInternal("failed to upsert video file", err)
	}
	return nil
}

func (r *postgresFileRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM video_files WHERE id = $1`, id)
	if err != nil {
		return apperror.NewInternal("failed to delete video file", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("video file", strconv.FormatInt(id, 10), video.ErrVideoFileNotFound)
	}
	return nil
}

func (r *postgresFileRepo) findOne(ctx context.Context, id string, where sq.Sqlizer) (*video.File, error) {
	sqlStr, args, err := psql.Select(fileColumns...).From("video_files").Where(where).
		OrderBy("updated_at DESC").Limit(1).ToSql()
	if err != nil {
		return nil, apperror.NewInternal("failed to build video file query", err)
	}
	f, err := scanFile(r.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("video file", id, video.ErrVideoFileNotFound)
		}
		return nil, apperror.NewInternal("failed to scan video file row", err)
	}
	return f, nil
}

func (r *postgresFileRepo) FindByID(ctx context.Context, id int64) (*video.File, error) {
	return r.findOne(ctx, strconv.FormatInt(id, 10), sq.Eq{"id": id})
}

func (r *postgresFileRepo) FindByVideoAndEncoding(ctx context.Context, videoKey uuid.UUID, enc video.Encoding) (*video.File, error) {
	return r.findOne(ctx, videoKey.String()+"/"+string(enc), sq.Eq{"video_key": videoKey, "encoding": string(enc)})
}

func (r *postgresFileRepo) list(ctx context.Context, b sq.SelectBuilder) ([]*video.File, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, apperror.NewInternal("failed to build video file query", err)
	}
	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, apperror.NewInternal("failed to query video files", err)
	}
	return scanFiles(rows)
}

func (r *postgresFileRepo) ListByVideo(ctx context.Context, videoKey uuid.UUID) ([]*video.File, error) {
	return r.list(ctx, psql.Select(fileColumns...).From("video_files").
		Where(sq.Eq{"video_key": videoKey}).OrderBy("id"))
}

func (r *postgresFileRepo) ListDuplicates(ctx context.Context) ([]*video.File, error) {
	return r.list(ctx, psql.Select(fileColumns...).From("video_files").
		Where(`(video_key, encoding) IN (
			SELECT video_key, encoding FROM video_files GROUP BY video_key, encoding HAVING COUNT(*) > 1)`).
		OrderBy("video_key", "encoding", "updated_at DESC"))
}

func (r *postgresFileRepo) List(ctx context.Context, encoding video.Encoding, videoKeys []uuid.UUID) ([]*video.File, error) {
	b := psql.Select(fileColumns...).From("video_files").Where(sq.Eq{"encoding": string(encoding)})
	if len(videoKeys) > 0 {
		b = b.Where(sq.Eq{"video_key": videoKeys})
	}
	return r.list(ctx, b.OrderBy("id"))
}

// Thumbnails

type postgresThumbnailRepo struct {
	db     *pgxpool.Pool
	logger logger.Logger
}

func NewPostgresThumbnailRepo(db *pgxpool.Pool, log logger.Logger) video.ThumbnailRepository {
	return &postgresThumbnailRepo{db: db, logger: log}
}

func (r *postgresThumbnailRepo) Upsert(ctx context.Context, t *video.Thumbnail) error {
	query := `
		INSERT INTO video_thumbnails (object_key, bucket, video_key, max_width, max_height)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (object_key) DO UPDATE SET
			bucket = EXCLUDED.bucket, video_key = EXCLUDED.video_key,
			max_width = EXCLUDED.max_width, max_height = EXCLUDED.max_height, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, t.ObjectKey, t.Bucket, t.VideoKey, t.MaxWidth, t.MaxHeight).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return apperror.NewInternal("failed to upsert video thumbnail", err)
	}
	return nil
}

func (r *postgresThumbnailRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM video_thumbnails WHERE id = $1`, id)
	if err != nil {
		return apperror.NewInternal("failed to delete video thumbnail", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("video thumbnail", strconv.FormatInt(id, 10), video.ErrThumbnailNotFound)
	}
	return nil
}

func (r *postgresThumbnailRepo) ListByVideo(ctx context.Context, videoKey uuid.UUID) ([]*video.Thumbnail, error) {
	query := `
		SELECT id, object_key, bucket, video_key, max_width, max_height, created_at, updated_at
		FROM video_thumbnails WHERE video_key = $1 ORDER BY object_key
	`
	rows, err := r.db.Query(ctx, query, videoKey)
	if err != nil {
		return nil, apperror.NewInternal("failed to query video thumbnails", err)
	}
	defer rows.Close()
	out := make([]*video.Thumbnail, 0)
	for rows.Next() {
		t := &video.Thumbnail{}
		if err := rows.Scan(&t.ID, &t.ObjectKey, &t.Bucket, &t.VideoKey, &t.MaxWidth, &t.MaxHeight, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, apperror.NewInternal("failed to scan video thumbnail row", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal("error iterating video thumbnail rows", err)
	}
	return out, nil
}

// Subtitles

type postgresSubtitleRepo struct {
	db     *pgxpool.Pool
	logger logger.Logger
}

func NewPostgresSubtitleRepo(db *pgxpool.Pool, log logger.Logger) video.SubtitleRepository {
	return &postgresSubtitleRepo{db: db, logger: log}
}

const subtitleColumns = "id, object_key, bucket, video_key, language, filename, created_at, updated_at"

func scanSubtitle(row pgx.Row) (*video.Subtitle, error) {
	s := &video.Subtitle{}
	err := row.Scan(&s.ID, &s.ObjectKey, &s.Bucket, &s.VideoKey, &s.Language, &s.Filename, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *postgresSubtitleRepo) Save(ctx context.Context, s *video.Subtitle) error {
	query := `
		INSERT INTO video_subtitles (object_key, bucket, video_key, language, filename)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, s.ObjectKey, s.Bucket, s.VideoKey, s.Language, s.Filename).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.NewConflict("video subtitle", "object_key", s.ObjectKey)
		}
		return apperror.NewInternal("failed to save video subtitle", err)
	}
	return nil
}

func (r *postgresSubtitleRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM video_subtitles WHERE id = $1`, id)
	if err != nil {
		return apperror.NewInternal("failed to delete video subtitle", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("video subtitle", strconv.FormatInt(id, 10), video.ErrSubtitleNotFound)
	}
	return nil
}

func (r *postgresSubtitleRepo) FindByID(ctx context.Context, id int64) (*video.Subtitle, error) {
	s, err := scanSubtitle(r.db.QueryRow(ctx, `SELECT `+subtitleColumns+` FROM video_subtitles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("video subtitle", strconv.FormatInt(id, 10), video.ErrSubtitleNotFound)
		}
		return nil, apperror.NewInternal("failed to scan video subtitle row", err)
	}
	return s, nil
}

func (r *postgresSubtitleRepo) ListByVideo(ctx context.Context, videoKey uuid.UUID) ([]*video.Subtitle, error) {
	rows, err := r.db.Query(ctx, `SELECT `+subtitleColumns+` FROM video_subtitles WHERE video_key = $1 ORDER BY created_at`, videoKey)
	if err != nil {
		return nil, apperror.NewInternal("failed to query video subtitles", err)
	}
	defer rows.Close()
	out := make([]*video.Subtitle, 0)
	for rows.Next() {
		s, err := scanSubtitle(rows)
		if err != nil {
			return nil, apperror.NewInternal("failed to scan video subtitle row", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal("error iterating video subtitle rows", err)
	}
	return out, nil
}
