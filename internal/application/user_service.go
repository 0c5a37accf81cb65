package application

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/contactly/accounts/internal/domain/entity"
	repo "github.com/contactly/accounts/internal/domain/repository"
	"github.com/contactly/accounts/pkg/gravatar"
	"github.com/contactly/accounts/pkg/helpers"
	"github.com/contactly/accounts/pkg/mailer"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
)

type Service struct {
	Repo         repo.UserRepository
	JWT          *helpers.JWTManager
	Gravatar     *gravatar.Client
	GCS          *storage.Client
	GCSBucket    string
	Redis        *redis.Client
	Logger       *logrus.Logger
	ES           *elasticsearch.Client
	ESUsersIndex string

	// Mail wiring is optional; Register and SendConfirmation degrade to
	// no-ops for whatever pieces are missing.
	Pub             *helpers.RabbitPublisher
	ConfirmEmailURL string
	MailEnabled     bool
}

func NewService(r repo.UserRepository, jwt *helpers.JWTManager, grav *gravatar.Client, gcs *storage.Client, gcsBucket string, rdb *redis.Client, logger *logrus.Logger, es *elasticsearch.Client, esUsersIndex string) *Service {
	return &Service{
		Repo:         r,
		JWT:          jwt,
		Gravatar:     grav,
		GCS:          gcs,
		GCSBucket:    gcsBucket,
		Redis:        rdb,
		Logger:       logger,
		ES:           es,
		ESUsersIndex: esUsersIndex,
	}
}

type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

func sessionKey(userID string) string {
	return "user:session:" + userID
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Register creates a new account. The gravatar lookup is best-effort: any
// failure is logged and the account is created without an avatar.
func (s *Service) Register(ctx context.Context, email, password string) (*entity.User, error) {
	if _, err := s.Repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	hash, err := helpers.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &entity.User{
		Email:    email,
		Password: hash,
		Avatar:   s.lookupAvatar(ctx, email),
	}
	if err := s.Repo.Create(ctx, u); err != nil {
		return nil, err
	}

	_ = s.indexUser(ctx, u)
	if _, err := s.SendConfirmation(ctx, u.Email); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("email", u.Email).Warn("failed to queue confirmation email")
	}
	return u, nil
}

// SendConfirmation issues an email-confirmation token and queues the
// confirmation email. Returns the token; steps whose backing pieces are
// not configured are skipped.
func (s *Service) SendConfirmation(ctx context.Context, email string) (string, error) {
	if s.Redis == nil {
		return "", nil
	}
	tok, err := helpers.GenOpaqueToken(32)
	if err != nil {
		return "", err
	}
	if err := s.Redis.Set(ctx, helpers.KeyConfirmToken(tok), email, 24*time.Hour).Err(); err != nil {
		return "", err
	}
	if s.Pub != nil && s.MailEnabled {
		job := mailer.EmailJob{
			To:       email,
			Template: "confirm_email",
			Data:     map[string]any{"Email": email, "Link": s.ConfirmEmailURL + "?token=" + tok},
		}
		if err := s.Pub.PublishJSON(ctx, job); err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithField("to", email).Warn("failed to enqueue confirmation email")
		}
	}
	return tok, nil
}

// lookupAvatar returns a gravatar URL for email, or nil when the lookup
// fails for any reason. Failure never propagates to the caller.
func (s *Service) lookupAvatar(ctx context.Context, email string) *string {
	if s.Gravatar == nil {
		return nil
	}
	url, err := s.Gravatar.AvatarURL(ctx, email)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("email", email).Warn("gravatar lookup failed, creating user without avatar")
		}
		return nil
	}
	return &url
}

// Authenticate validates email/password and returns the user without issuing tokens.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*entity.User, error) {
	u, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !helpers.CompareHashAndPassword(u.Password, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// IssueTokens generates an access/refresh pair, persists the refresh token
// on the user row and records a session hash in Redis.
func (s *Service) IssueTokens(ctx context.Context, u *entity.User) (TokenPair, error) {
	access, aexp, err := s.JWT.GenerateAccessToken(u.ID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, rexp, err := s.JWT.GenerateRefreshToken(u.ID)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.Repo.UpdateRefreshToken(ctx, u, &refresh); err != nil {
		return TokenPair{}, err
	}

	if s.Redis != nil {
		fields := map[string]any{
			"user_id":    u.ID,
			"email":      u.Email,
			"confirmed":  u.Confirmed,
			"created_at": nowRFC3339(),
		}
		key := sessionKey(u.ID)
		pipe := s.Redis.Pipeline()
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, 24*time.Hour)
		if _, rErr := pipe.Exec(ctx); rErr != nil && s.Logger != nil {
			s.Logger.WithError(rErr).WithField("key", key).Warn("redis pipeline failed")
		}
	}

	return TokenPair{AccessToken: access, AccessTokenExpiry: aexp, RefreshToken: refresh, RefreshTokenExpiry: rexp}, nil
}

type LoginResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Confirmed bool   `json:"confirmed"`
}

func (s *Service) Login(ctx context.Context, email, password string) (*LoginResponse, TokenPair, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.IssueTokens(ctx, u)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return &LoginResponse{UserID: u.ID, Email: u.Email, Confirmed: u.Confirmed}, pair, nil
}

// Refresh rotates the token pair. The presented refresh token must match
// the one stored on the user row; a cleared token means the session is
// not refreshable.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, string, error) {
	claims, err := s.JWT.ParseRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, "", ErrInvalidCredentials
	}
	u, err := s.Repo.GetByID(ctx, claims.UserID)
	if err != nil {
		return TokenPair{}, "", ErrInvalidCredentials
	}
	if u.RefreshToken == nil || *u.RefreshToken != refreshToken {
		return TokenPair{}, "", ErrInvalidCredentials
	}
	pair, err := s.IssueTokens(ctx, u)
	if err != nil {
		return TokenPair{}, "", err
	}
	return pair, u.ID, nil
}

// Logout clears the stored refresh token and drops the Redis session.
func (s *Service) Logout(ctx context.Context, userID string) error {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := s.Repo.UpdateRefreshToken(ctx, u, nil); err != nil {
		return err
	}
	if s.Redis != nil {
		_ = s.Redis.Del(ctx, sessionKey(userID)).Err()
	}
	return nil
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*entity.User, error) {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	u, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// ConfirmEmail marks the account confirmed. Confirming an unknown email
// returns ErrUserNotFound.
func (s *Service) ConfirmEmail(ctx context.Context, email string) error {
	if err := s.Repo.ConfirmEmail(ctx, email); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// UpdateAvatar sets or clears the avatar URL for the given email.
func (s *Service) UpdateAvatar(ctx context.Context, email string, url *string) (*entity.User, error) {
	u, err := s.Repo.UpdateAvatar(ctx, email, url)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	_ = s.indexUser(ctx, u)
	return u, nil
}

// UploadAvatar streams an image to GCS and points the user's avatar at it.
func (s *Service) UploadAvatar(ctx context.Context, userID string, r io.Reader, filename, contentType string) (*entity.User, error) {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if s.GCS == nil || s.GCSBucket == "" {
		return nil, errors.New("gcs not configured")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	objectPath := filepath.ToSlash(filepath.Join("avatars", userID, uuid.NewString()+ext))
	url, err := helpers.UploadObject(ctx, s.GCS, s.GCSBucket, objectPath, contentType, r)
	if err != nil {
		return nil, err
	}
	return s.UpdateAvatar(ctx, u.Email, &url)
}

// SetNewPassword hashes the new credential, stores it and invalidates the
// outstanding reset token and refresh token.
func (s *Service) SetNewPassword(ctx context.Context, email, plain string) (*entity.User, error) {
	hash, err := helpers.HashPassword(plain)
	if err != nil {
		return nil, err
	}
	u, err := s.Repo.SetPassword(ctx, email, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if err := s.Repo.UpdateResetToken(ctx, u, nil); err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateRefreshToken(ctx, u, nil); err != nil {
		return nil, err
	}
	return u, nil
}

// InitPasswordReset records an opaque reset token on the user row and
// returns the user it belongs to. Unknown emails yield ErrUserNotFound so
// the handler can decide how much to reveal.
func (s *Service) InitPasswordReset(ctx context.Context, email, token string) (*entity.User, error) {
	u, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if err := s.Repo.UpdateResetToken(ctx, u, &token); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) indexUser(ctx context.Context, u *entity.User) error {
	if s.ES == nil || s.ESUsersIndex == "" {
		return nil
	}
	avatar := ""
	if u.Avatar != nil {
		avatar = *u.Avatar
	}
	doc := map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"avatar":     avatar,
		"confirmed":  u.Confirmed,
		"created_at": u.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": u.UpdatedAt.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{Index: s.ESUsersIndex, DocumentID: u.ID, Body: strings.NewReader(string(b)), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", u.ID).Warn("es index failed")
		}
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && s.Logger != nil {
		s.Logger.WithField("status", res.Status()).WithField("user_id", u.ID).Warn("es index response error")
	}
	return nil
}

// SearchUsers performs a simple match search on email.
func (s *Service) SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"match": map[string]any{
				"email": q,
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.ES.Search(s.ES.Search.WithContext(c), s.ES.Search.WithIndex(s.ESUsersIndex), s.ES.Search.WithBody(strings.NewReader(string(b))))
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
