package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/contactly/accounts/internal/domain/entity"
	"github.com/contactly/accounts/internal/domain/repository"
)

// DB is the subset of pgxpool.Pool the repository needs. Tests substitute
// a pgxmock pool through the same interface.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, avatar, confirmed, refresh_token, password_reset_token, created_at, updated_at`

func scanUser(row pgx.Row) (*entity.User, error) {
	u := &entity.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Avatar, &u.Confirmed,
		&u.RefreshToken, &u.PasswordResetToken, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, email)
	return scanUser(row)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, avatar)
		VALUES ($1, $2, $3)
		RETURNING id, confirmed, created_at, updated_at
	`, u.Email, u.Password, u.Avatar)

	return row.Scan(&u.ID, &u.Confirmed, &u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepository) UpdateRefreshToken(ctx context.Context, u *entity.User, token *string) error {
	res, err := r.db.Exec(ctx, `
		UPDATE users
		SET refresh_token = $1, updated_at = now()
		WHERE id = $2
	`, token, u.ID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	u.RefreshToken = token
	return nil
}

func (r *UserRepository) ConfirmEmail(ctx context.Context, email string) error {
	res, err := r.db.Exec(ctx, `
		UPDATE users
		SET confirmed = TRUE, updated_at = now()
		WHERE email = $1
	`, email)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, email string, url *string) (*entity.User, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE users
		SET avatar = $1, updated_at = now()
		WHERE email = $2
		RETURNING `+userColumns+`
	`, url, email)
	return scanUser(row)
}

func (r *UserRepository) SetPassword(ctx context.Context, email, password string) (*entity.User, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE users
		SET password_hash = $1, updated_at = now()
		WHERE email = $2
		RETURNING `+userColumns+`
	`, password, email)
	return scanUser(row)
}

func (r *UserRepository) UpdateResetToken(ctx context.Context, u *entity.User, token *string) error {
	res, err := r.db.Exec(ctx, `
		UPDATE users
		SET password_reset_token = $1, updated_at = now()
		WHERE id = $2
	`, token, u.ID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	u.PasswordResetToken = token
	return nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
