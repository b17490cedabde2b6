package persistence

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khoahotran/lecture-video/internal/domain/user"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type postgresUserRepo struct {
	db     *pgxpool.Pool
	logger logger.Logger
}

func NewPostgresUserRepo(db *pgxpool.Pool, log logger.Logger) user.Repository {
	return &postgresUserRepo{db: db, logger: log}
}

const userColumns = "id, username, email, is_superuser"

func scanUser(row pgx.Row, id string) (*user.User, error) {
	u := &user.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.IsSuperuser); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("user", id, user.ErrUserNotFound)
		}
		return nil, apperror.NewInternal("failed to scan user row", err)
	}
	return u, nil
}

func (r *postgresUserRepo) FindByID(ctx context.Context, id int64) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id), strconv.FormatInt(id, 10))
}

func (r *postgresUserRepo) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.db.QueryRow(ctx, query, username), username)
}

func (r *postgresUserRepo) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) ORDER BY id LIMIT 1`
	return scanUser(r.db.QueryRow(ctx, query, email), email)
}

func (r *postgresUserRepo) Save(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (username, email, is_superuser)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if err := r.db.QueryRow(ctx, query, u.Username, u.Email, u.IsSuperuser).Scan(&u.ID); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewConflict("user", "username", u.Username)
		}
		return apperror.NewInternal("failed to save user", err)
	}
	return nil
}
