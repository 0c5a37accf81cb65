package application_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactly/accounts/internal/application"
	"github.com/contactly/accounts/internal/domain/entity"
	"github.com/contactly/accounts/internal/domain/repository"
	"github.com/contactly/accounts/pkg/gravatar"
	"github.com/contactly/accounts/pkg/helpers"
)

// fakeRepo is an in-memory UserRepository keyed by email.
type fakeRepo struct {
	byEmail map[string]*entity.User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byEmail: map[string]*entity.User{}}
}

func (f *fakeRepo) find(email string) (*entity.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func copyUser(u *entity.User) *entity.User {
	c := *u
	return &c
}

func (f *fakeRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	u, err := f.find(email)
	if err != nil {
		return nil, err
	}
	return copyUser(u), nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) Create(_ context.Context, u *entity.User) error {
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	f.byEmail[u.Email] = copyUser(u)
	return nil
}

func (f *fakeRepo) UpdateRefreshToken(_ context.Context, u *entity.User, token *string) error {
	stored, err := f.find(u.Email)
	if err != nil {
		return err
	}
	stored.RefreshToken = token
	u.RefreshToken = token
	return nil
}

func (f *fakeRepo) ConfirmEmail(_ context.Context, email string) error {
	stored, err := f.find(email)
	if err != nil {
		return err
	}
	stored.Confirmed = true
	return nil
}

func (f *fakeRepo) UpdateAvatar(_ context.Context, email string, url *string) (*entity.User, error) {
	stored, err := f.find(email)
	if err != nil {
		return nil, err
	}
	stored.Avatar = url
	return copyUser(stored), nil
}

func (f *fakeRepo) SetPassword(_ context.Context, email, password string) (*entity.User, error) {
	stored, err := f.find(email)
	if err != nil {
		return nil, err
	}
	stored.Password = password
	return copyUser(stored), nil
}

func (f *fakeRepo) UpdateResetToken(_ context.Context, u *entity.User, token *string) error {
	stored, err := f.find(u.Email)
	if err != nil {
		return err
	}
	stored.PasswordResetToken = token
	u.PasswordResetToken = token
	return nil
}

var _ repository.UserRepository = (*fakeRepo)(nil)

func newService(repo repository.UserRepository, grav *gravatar.Client) *application.Service {
	jwt := helpers.NewJWTManager("access-secret", "refresh-secret", time.Hour, 24*time.Hour)
	logger := helpers.NewLogger("accounts-test", "development")
	return application.NewService(repo, jwt, grav, nil, "", nil, logger, nil, "")
}

func gravatarServer(t *testing.T, status int) *gravatar.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	c := gravatar.NewClient()
	c.BaseURL = srv.URL
	return c
}

func TestRegister(t *testing.T) {
	t.Run("avatar service reachable", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newService(repo, gravatarServer(t, http.StatusOK))

		u, err := svc.Register(context.Background(), "jane@example.com", "supersecret")
		require.NoError(t, err)
		assert.NotEmpty(t, u.ID)
		require.NotNil(t, u.Avatar)
		assert.Contains(t, *u.Avatar, gravatar.Hash("jane@example.com"))
		assert.False(t, u.Confirmed)
		// password stored hashed, never plain
		assert.NotEqual(t, "supersecret", u.Password)
		assert.True(t, helpers.CompareHashAndPassword(u.Password, "supersecret"))
	})

	t.Run("avatar service unreachable", func(t *testing.T) {
		repo := newFakeRepo()
		grav := gravatar.NewClient()
		grav.BaseURL = "http://127.0.0.1:1" // nothing listens here
		svc := newService(repo, grav)

		u, err := svc.Register(context.Background(), "jane@example.com", "supersecret")
		require.NoError(t, err)
		assert.Nil(t, u.Avatar)
	})

	t.Run("no registered gravatar", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newService(repo, gravatarServer(t, http.StatusNotFound))

		u, err := svc.Register(context.Background(), "jane@example.com", "supersecret")
		require.NoError(t, err)
		assert.Nil(t, u.Avatar)
	})

	t.Run("duplicate email", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newService(repo, gravatarServer(t, http.StatusOK))

		_, err := svc.Register(context.Background(), "jane@example.com", "supersecret")
		require.NoError(t, err)
		_, err = svc.Register(context.Background(), "jane@example.com", "othersecret")
		require.ErrorIs(t, err, application.ErrEmailTaken)
	})
}

func TestAuthenticate(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, gravatarServer(t, http.StatusOK))
	_, err := svc.Register(context.Background(), "jane@example.com", "supersecret")
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		u, err := svc.Authenticate(context.Background(), "jane@example.com", "supersecret")
		require.NoError(t, err)
		assert.Equal(t, "jane@example.com", u.Email)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(context.Background(), "jane@example.com", "wrong")
		require.ErrorIs(t, err, application.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Authenticate(context.Background(), "ghost@example.com", "supersecret")
		require.ErrorIs(t, err, application.ErrInvalidCredentials)
	})
}

func TestTokenLifecycle(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, gravatarServer(t, http.StatusOK))
	u, err := svc.Register(context.Background(), "jane@example.com", "supersecret")
	require.NoError(t, err)

	pair, err := svc.IssueTokens(context.Background(), u)
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)

	// fresh lookup reflects the stored refresh token
	fresh, err := svc.GetUserByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, fresh.RefreshToken)
	assert.Equal(t, pair.RefreshToken, *fresh.RefreshToken)

	// rotation: the old pair's refresh token is replaced
	rotated, _, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, "")
	fresh, err = svc.GetUserByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, rotated.RefreshToken, *fresh.RefreshToken)

	// logout clears the stored token; refresh no longer possible
	require.NoError(t, svc.Logout(context.Background(), u.ID))
	fresh, err = svc.GetUserByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Nil(t, fresh.RefreshToken)
	_, _, err = svc.Refresh(context.Background(), rotated.RefreshToken)
	require.ErrorIs(t, err, application.ErrInvalidCredentials)
}

func TestConfirmEmail(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, gravatarServer(t, http.StatusOK))
	_, err := svc.Register(context.Background(), "jane@example.com", "supersecret")
	require.NoError(t, err)

	t.Run("existing user", func(t *testing.T) {
		require.NoError(t, svc.ConfirmEmail(context.Background(), "jane@example.com"))
		u, err := svc.GetUserByEmail(context.Background(), "jane@example.com")
		require.NoError(t, err)
		assert.True(t, u.Confirmed)
	})

	t.Run("unknown email", func(t *testing.T) {
		err := svc.ConfirmEmail(context.Background(), "ghost@example.com")
		require.ErrorIs(t, err, application.ErrUserNotFound)
	})
}

func TestUpdateAvatar(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, gravatarServer(t, http.StatusOK))
	_, err := svc.Register(context.Background(), "jane@example.com", "supersecret")
	require.NoError(t, err)

	t.Run("set url", func(t *testing.T) {
		url := "https://img.example/new.png"
		u, err := svc.UpdateAvatar(context.Background(), "jane@example.com", &url)
		require.NoError(t, err)
		require.NotNil(t, u.Avatar)
		assert.Equal(t, url, *u.Avatar)

		fresh, err := svc.GetUserByEmail(context.Background(), "jane@example.com")
		require.NoError(t, err)
		require.NotNil(t, fresh.Avatar)
		assert.Equal(t, url, *fresh.Avatar)
	})

	t.Run("clear", func(t *testing.T) {
		u, err := svc.UpdateAvatar(context.Background(), "jane@example.com", nil)
		require.NoError(t, err)
		assert.Nil(t, u.Avatar)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.UpdateAvatar(context.Background(), "ghost@example.com", nil)
		require.ErrorIs(t, err, application.ErrUserNotFound)
	})
}

func TestPasswordReset(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, gravatarServer(t, http.StatusOK))
	_, err := svc.Register(context.Background(), "jane@example.com", "supersecret")
	require.NoError(t, err)

	t.Run("init records token", func(t *testing.T) {
		u, err := svc.InitPasswordReset(context.Background(), "jane@example.com", "reset-token")
		require.NoError(t, err)
		require.NotNil(t, u.PasswordResetToken)
		assert.Equal(t, "reset-token", *u.PasswordResetToken)
	})

	t.Run("init unknown email", func(t *testing.T) {
		_, err := svc.InitPasswordReset(context.Background(), "ghost@example.com", "reset-token")
		require.ErrorIs(t, err, application.ErrUserNotFound)
	})

	t.Run("set new password clears tokens", func(t *testing.T) {
		u, err := svc.SetNewPassword(context.Background(), "jane@example.com", "newsecret1")
		require.NoError(t, err)
		assert.True(t, helpers.CompareHashAndPassword(u.Password, "newsecret1"))

		fresh, err := svc.GetUserByEmail(context.Background(), "jane@example.com")
		require.NoError(t, err)
		assert.Nil(t, fresh.PasswordResetToken)
		assert.Nil(t, fresh.RefreshToken)
		_, err = svc.Authenticate(context.Background(), "jane@example.com", "newsecret1")
		require.NoError(t, err)
	})

	t.Run("set new password unknown email", func(t *testing.T) {
		_, err := svc.SetNewPassword(context.Background(), "ghost@example.com", "newsecret1")
		require.ErrorIs(t, err, application.ErrUserNotFound)
	})
}
