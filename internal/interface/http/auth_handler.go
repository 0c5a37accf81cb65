package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/contactly/accounts/config"
	userapp "github.com/contactly/accounts/internal/application"
	"github.com/contactly/accounts/internal/interface/middleware"
	"github.com/contactly/accounts/pkg/helpers"
	"github.com/contactly/accounts/pkg/mailer"
	"github.com/contactly/accounts/pkg/response"
	"github.com/contactly/accounts/pkg/validation"
)

// AuthHandler drives the email-confirmation and password-reset flows.
// Opaque tokens live in Redis with a TTL; the reset token is additionally
// persisted on the user row so an outstanding request is visible there.
type AuthHandler struct {
	Svc    *userapp.Service
	RDB    *redis.Client
	Logger *logrus.Logger
	Cfg    *config.Config
	Pub    *helpers.RabbitPublisher
}

func NewAuthHandler(svc *userapp.Service, rdb *redis.Client, logger *logrus.Logger, cfg *config.Config, pub *helpers.RabbitPublisher) *AuthHandler {
	return &AuthHandler{Svc: svc, RDB: rdb, Logger: logger, Cfg: cfg, Pub: pub}
}

func (h *AuthHandler) enqueueEmail(c *gin.Context, job mailer.EmailJob) {
	if h.Pub == nil || h.Cfg == nil || !h.Cfg.MailSendEnabled {
		return
	}
	if err := h.Pub.PublishJSON(c.Request.Context(), job); err != nil {
		h.Logger.WithError(err).WithField("to", job.To).Warn("failed to enqueue email")
	}
}

// ConfirmInit POST /auth/confirm/init (auth required)
// Issues a confirmation token and emails the confirmation link.
func (h *AuthHandler) ConfirmInit(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	u, err := h.Svc.GetProfile(c.Request.Context(), uid)
	if err != nil {
		response.Error[any](c, http.StatusNotFound, "user not found", nil)
		return
	}
	if u.Confirmed {
		response.Success(c, http.StatusOK, gin.H{"already_confirmed": true}, "email already confirmed", nil)
		return
	}

	if _, err := h.Svc.SendConfirmation(c.Request.Context(), u.Email); err != nil {
		response.Error[any](c, http.StatusInternalServerError, "failed to issue confirmation token", nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sent": true}, "confirmation email queued", nil)
}

type confirmRequest struct {
	Token string `json:"token" binding:"required"`
}

// Confirm POST /auth/confirm
// Exchanges a confirmation token for the confirmed flag.
func (h *AuthHandler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	email, err := h.RDB.Get(c.Request.Context(), helpers.KeyConfirmToken(req.Token)).Result()
	if err != nil || email == "" {
		response.Error[any](c, http.StatusBadRequest, "invalid or expired token", nil)
		return
	}
	if err := h.Svc.ConfirmEmail(c.Request.Context(), email); err != nil {
		if errors.Is(err, userapp.ErrUserNotFound) {
			response.Error[any](c, http.StatusNotFound, "user not found", nil)
			return
		}
		h.Logger.WithError(err).WithField("email", email).Error("confirm email failed")
		response.Error[any](c, http.StatusInternalServerError, "failed to confirm email", nil)
		return
	}
	_ = h.RDB.Del(c.Request.Context(), helpers.KeyConfirmToken(req.Token)).Err()
	response.Success(c, http.StatusOK, gin.H{"confirmed": true}, "email confirmed", nil)
}

type resetInitRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetInit POST /auth/reset/init
// Issues a reset token and emails the reset link. Responds identically for
// unknown emails so the endpoint cannot be used to enumerate accounts.
func (h *AuthHandler) ResetInit(c *gin.Context) {
	var req resetInitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	tok, err := helpers.GenOpaqueToken(32)
	if err != nil {
		response.Error[any](c, http.StatusInternalServerError, "token generation failed", nil)
		return
	}

	u, err := h.Svc.InitPasswordReset(c.Request.Context(), req.Email, tok)
	if err != nil {
		if !errors.Is(err, userapp.ErrUserNotFound) {
			h.Logger.WithError(err).WithField("email", req.Email).Error("reset init failed")
		}
		response.Success(c, http.StatusOK, gin.H{"sent": true}, "reset email queued", nil)
		return
	}

	if err := h.RDB.Set(c.Request.Context(), helpers.KeyResetToken(tok), u.Email, time.Hour).Err(); err != nil {
		response.Error[any](c, http.StatusInternalServerError, "failed to store token", nil)
		return
	}

	link := h.Cfg.ResetPasswordURL + "?token=" + tok
	h.enqueueEmail(c, mailer.EmailJob{
		To:       u.Email,
		Template: "reset_password",
		Data:     map[string]any{"Email": u.Email, "Link": link},
	})
	response.Success(c, http.StatusOK, gin.H{"sent": true}, "reset email queued", nil)
}

type resetConfirmRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,pwd"`
}

// ResetConfirm POST /auth/reset/confirm
// Exchanges a reset token for a new password.
func (h *AuthHandler) ResetConfirm(c *gin.Context) {
	var req resetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	email, err := h.RDB.Get(c.Request.Context(), helpers.KeyResetToken(req.Token)).Result()
	if err != nil || email == "" {
		response.Error[any](c, http.StatusBadRequest, "invalid or expired token", nil)
		return
	}

	// The token must still be the one recorded on the user row.
	u, err := h.Svc.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		response.Error[any](c, http.StatusNotFound, "user not found", nil)
		return
	}
	if u.PasswordResetToken == nil || *u.PasswordResetToken != req.Token {
		response.Error[any](c, http.StatusBadRequest, "invalid or expired token", nil)
		return
	}

	if _, err := h.Svc.SetNewPassword(c.Request.Context(), email, req.Password); err != nil {
		h.Logger.WithError(err).WithField("email", email).Error("password reset failed")
		response.Error[any](c, http.StatusInternalServerError, "failed to reset password", nil)
		return
	}
	_ = h.RDB.Del(c.Request.Context(), helpers.KeyResetToken(req.Token)).Err()
	response.Success(c, http.StatusOK, gin.H{"reset": true}, "password updated", nil)
}
