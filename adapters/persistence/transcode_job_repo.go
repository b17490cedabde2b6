package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type postgresTranscodeJobRepo struct {
	db     *pgxpool.Pool
	logger logger.Logger
}

func NewPostgresTranscodeJobRepo(db *pgxpool.Pool, log logger.Logger) video.TranscodeJobRepository {
	return &postgresTranscodeJobRepo{db: db, logger: log}
}

func (r *postgresTranscodeJobRepo) Save(ctx context.Context, j *video.TranscodeJob) error {
	msg, err := json.Marshal(j.LastMessage)
	if err != nil {
		return apperror.NewInternal("failed to marshal transcode job message", err)
	}
	query := `
		INSERT INTO transcode_jobs (id, video_key, state, last_message)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	if err := r.db.QueryRow(ctx, query, j.ID, j.VideoKey, j.State, msg).Scan(&j.CreatedAt, &j.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewConflict("transcode job", "id", j.ID)
		}
		return apperror.NewInternal("failed to save transcode job", err)
	}
	return nil
}

func (r *postgresTranscodeJobRepo) Update(ctx context.Context, j *video.TranscodeJob) error {
	msg, err := json.Marshal(j.LastMessage)
	if err != nil {
		return apperror.NewInternal("failed to marshal transcode job message", err)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE transcode_jobs SET state = $2, last_message = $3, updated_at = NOW() WHERE id = $1`,
		j.ID, j.State, msg)
	if err != nil {
		return apperror.NewInternal("failed to update transcode job", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("transcode job", j.ID, video.ErrTranscodeJobMissing)
	}
	return nil
}

func (r *postgresTranscodeJobRepo) LatestForVideo(ctx context.Context, videoKey uuid.UUID) (*video.TranscodeJob, error) {
	query := `
		SELECT id, video_key, state, last_message, created_at, updated_at
		FROM transcode_jobs WHERE video_key = $1
		ORDER BY created_at DESC LIMIT 1
	`
	j := &video.TranscodeJob{}
	var msg []byte
	err := r.db.QueryRow(ctx, query, videoKey).Scan(&j.ID, &j.VideoKey, &j.State, &msg, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("transcode job", videoKey.String(), video.ErrTranscodeJobMissing)
		}
		return nil, apperror.NewInternal("failed to scan transcode job row", err)
	}
	if err := json.Unmarshal(msg, &j.LastMessage); err != nil {
		j.LastMessage = map[string]any{}
	}
	return j, nil
}
