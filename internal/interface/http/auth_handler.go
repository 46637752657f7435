package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/tourauth/internal/application"
	"github.com/oksasatya/tourauth/internal/interface/middleware"
	"github.com/oksasatya/tourauth/pkg/apperror"
	"github.com/oksasatya/tourauth/pkg/helpers"
	"github.com/oksasatya/tourauth/pkg/response"
	"github.com/oksasatya/tourauth/pkg/validation"
)

const MsgTokenSent = "Token sent to email!"

type AuthHandler struct {
	Svc     *application.AccountService
	Logger  *logrus.Logger
	Cookies *helpers.CookieManager
}

func NewAuthHandler(svc *application.AccountService, logger *logrus.Logger, cookies *helpers.CookieManager) *AuthHandler {
	return &AuthHandler{Svc: svc, Logger: logger, Cookies: cookies}
}

type emailRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// bind decodes the JSON body; field rules are enforced by the service.
func (h *AuthHandler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Fail(c, h.Logger, apperror.Validation("Invalid input data", validation.ToDetails(err)))
		return false
	}
	return true
}

// sendSession delivers a session as the jwt cookie and in the body.
func (h *AuthHandler) sendSession(c *gin.Context, status int, sess *application.Session) {
	h.Cookies.SetSession(c, sess.Token, sess.CookieExpiresAt)
	response.Session(c, status, sess.Token, gin.H{"user": sess.User})
}

// Signup POST /api/v1/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var in application.SignupInput
	if !h.bind(c, &in) {
		return
	}
	u, err := h.Svc.Signup(c.Request.Context(), in)
	if err != nil {
		response.Fail(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"user": u.Public()}, MsgTokenSent)
}

// ResendConfirmation POST /api/v1/auth/confirm-email/resend
func (h *AuthHandler) ResendConfirmation(c *gin.Context) {
	var req emailRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.Svc.ResendConfirmation(c.Request.Context(), req.Email); err != nil {
		response.Fail(c, h.Logger, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, MsgTokenSent)
}

// ConfirmEmail PATCH /api/v1/auth/confirm-email/:token
func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	sess, err := h.Svc.ConfirmEmail(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Fail(c, h.Logger, err)
		return
	}
	h.sendSession(c, http.StatusOK, sess)
}

// Login POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, &req) {
		return
	}
	sess, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Fail(c, h.Logger, err)
		return
	}
	h.sendSession(c, http.StatusOK, sess)
}

// Logout POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	h.Cookies.Clear(c)
	response.Success[any](c, http.StatusOK, nil, "")
}

// Unlock PATCH /api/v1/auth/unlock/:token
func (h *AuthHandler) Unlock(c *gin.Context) {
	sess, err := h.Svc.Unlock(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Fail(c, h.Logger, err)
		return
	}
	h.sendSession(c, http.StatusOK, sess)
}

// ForgotPassword POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.Svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		response.Fail(c, h.Logger, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, MsgTokenSent)
}

// ResetPassword PATCH /api/v1/auth/reset-password/:token
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var in application.PasswordInput
	if !h.bind(c, &in) {
		return
	}
	sess, err := h.Svc.ResetPassword(c.Request.Context(), c.Param("token"), in)
	if err != nil {
		response.Fail(c, h.Logger, err)
		return
	}
	h.sendSession(c, http.StatusOK, sess)
}

// UpdatePassword PATCH /api/v1/auth/update-password (protected)
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	var in application.UpdatePasswordInput
	if !h.bind(c, &in) {
		return
	}
	sess, err := h.Svc.UpdatePassword(c.Request.Context(), c.GetString(middleware.CtxUserIDKey), in)
	if err != nil {
		response.Fail(c, h.Logger, err)
		return
	}
	h.sendSession(c, http.StatusOK, sess)
}
