package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactly/accounts/internal/domain/entity"
	"github.com/contactly/accounts/internal/domain/repository"
	"github.com/contactly/accounts/internal/infrastructure/postgres"
)

var userCols = []string{"id", "email", "password_hash", "avatar", "confirmed", "refresh_token", "password_reset_token", "created_at", "updated_at"}

func strptr(s string) *string { return &s }

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *postgres.UserRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, postgres.NewUserRepository(mock)
}

func TestGetByEmail(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		rows := pgxmock.NewRows(userCols).
			AddRow("u-1", "jane@example.com", "hash", strptr("https://img.example/a.png"), true, nil, nil, now, now)
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE email = \$1`).
			WithArgs("jane@example.com").
			WillReturnRows(rows)

		u, err := repo.GetByEmail(context.Background(), "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u-1", u.ID)
		assert.Equal(t, "jane@example.com", u.Email)
		assert.True(t, u.Confirmed)
		require.NotNil(t, u.Avatar)
		assert.Equal(t, "https://img.example/a.png", *u.Avatar)
		assert.Nil(t, u.RefreshToken)
		assert.Nil(t, u.PasswordResetToken)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE email = \$1`).
			WithArgs("ghost@example.com").
			WillReturnError(pgx.ErrNoRows)

		u, err := repo.GetByEmail(context.Background(), "ghost@example.com")
		require.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, u)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreate(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Now()

	avatar := strptr("https://www.gravatar.com/avatar/abc?s=256")
	u := &entity.User{Email: "jane@example.com", Password: "hash", Avatar: avatar}

	mock.ExpectQuery(`INSERT INTO users \(email, password_hash, avatar\)`).
		WithArgs("jane@example.com", "hash", avatar).
		WillReturnRows(pgxmock.NewRows([]string{"id", "confirmed", "created_at", "updated_at"}).
			AddRow("u-1", false, now, now))

	require.NoError(t, repo.Create(context.Background(), u))
	assert.Equal(t, "u-1", u.ID)
	assert.False(t, u.Confirmed)
	assert.Equal(t, now, u.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRefreshToken(t *testing.T) {
	mock, repo := newMock(t)
	u := &entity.User{ID: "u-1", Email: "jane@example.com"}

	t.Run("set", func(t *testing.T) {
		token := strptr("abc")
		mock.ExpectExec(`UPDATE users SET refresh_token = \$1`).
			WithArgs(token, "u-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.UpdateRefreshToken(context.Background(), u, token))
		require.NotNil(t, u.RefreshToken)
		assert.Equal(t, "abc", *u.RefreshToken)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("clear", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users SET refresh_token = \$1`).
			WithArgs((*string)(nil), "u-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.UpdateRefreshToken(context.Background(), u, nil))
		assert.Nil(t, u.RefreshToken)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row gone", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users SET refresh_token = \$1`).
			WithArgs((*string)(nil), "u-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdateRefreshToken(context.Background(), u, nil)
		require.ErrorIs(t, err, repository.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConfirmEmail(t *testing.T) {
	mock, repo := newMock(t)

	t.Run("existing user", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users SET confirmed = TRUE`).
			WithArgs("jane@example.com").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.ConfirmEmail(context.Background(), "jane@example.com"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown email", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users SET confirmed = TRUE`).
			WithArgs("ghost@example.com").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.ConfirmEmail(context.Background(), "ghost@example.com")
		require.ErrorIs(t, err, repository.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateAvatar(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Now()

	t.Run("set url", func(t *testing.T) {
		url := strptr("https://img.example/new.png")
		rows := pgxmock.NewRows(userCols).
			AddRow("u-1", "jane@example.com", "hash", url, true, nil, nil, now, now)
		mock.ExpectQuery(`UPDATE users SET avatar = \$1`).
			WithArgs(url, "jane@example.com").
			WillReturnRows(rows)

		u, err := repo.UpdateAvatar(context.Background(), "jane@example.com", url)
		require.NoError(t, err)
		require.NotNil(t, u.Avatar)
		assert.Equal(t, "https://img.example/new.png", *u.Avatar)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("clear", func(t *testing.T) {
		rows := pgxmock.NewRows(userCols).
			AddRow("u-1", "jane@example.com", "hash", nil, true, nil, nil, now, now)
		mock.ExpectQuery(`UPDATE users SET avatar = \$1`).
			WithArgs((*string)(nil), "jane@example.com").
			WillReturnRows(rows)

		u, err := repo.UpdateAvatar(context.Background(), "jane@example.com", nil)
		require.NoError(t, err)
		assert.Nil(t, u.Avatar)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown email", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE users SET avatar = \$1`).
			WithArgs((*string)(nil), "ghost@example.com").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.UpdateAvatar(context.Background(), "ghost@example.com", nil)
		require.ErrorIs(t, err, repository.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSetPassword(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Now()

	t.Run("existing user", func(t *testing.T) {
		rows := pgxmock.NewRows(userCols).
			AddRow("u-1", "jane@example.com", "newhash", nil, true, nil, nil, now, now)
		mock.ExpectQuery(`UPDATE users SET password_hash = \$1`).
			WithArgs("newhash", "jane@example.com").
			WillReturnRows(rows)

		u, err := repo.SetPassword(context.Background(), "jane@example.com", "newhash")
		require.NoError(t, err)
		assert.Equal(t, "newhash", u.Password)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown email", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE users SET password_hash = \$1`).
			WithArgs("newhash", "ghost@example.com").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.SetPassword(context.Background(), "ghost@example.com", "newhash")
		require.ErrorIs(t, err, repository.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateResetToken(t *testing.T) {
	mock, repo := newMock(t)
	u := &entity.User{ID: "u-1", Email: "jane@example.com"}

	token := strptr("reset-token")
	mock.ExpectExec(`UPDATE users SET password_reset_token = \$1`).
		WithArgs(token, "u-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdateResetToken(context.Background(), u, token))
	require.NotNil(t, u.PasswordResetToken)
	assert.Equal(t, "reset-token", *u.PasswordResetToken)
	require.NoError(t, mock.ExpectationsWereMet())
}
