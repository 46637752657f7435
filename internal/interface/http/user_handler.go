package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/tourauth/internal/application"
	"github.com/oksasatya/tourauth/internal/domain/entity"
	"github.com/oksasatya/tourauth/internal/interface/middleware"
	"github.com/oksasatya/tourauth/pkg/apperror"
	"github.com/oksasatya/tourauth/pkg/response"
)

const maxPhotoBytes = 5 << 20

type UserHandler struct {
	Svc    *application.UserService
	Logger *logrus.Logger
}

func NewUserHandler(svc *application.UserService, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

// Me GET /api/v1/users/me
func (h *UserHandler) Me(c *gin.Context) {
	u, err := h.Svc.GetProfile(c.Request.Context(), c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		response.Fail(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": u.Public()}, "")
}

// UploadPhoto PATCH /api/v1/users/me/photo (multipart field "photo")
func (h *UserHandler) UploadPhoto(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPhotoBytes+1<<10)
	fh, err := c.FormFile("photo")
	if err != nil {
		response.Fail(c, h.Logger, apperror.Validation("Please upload a photo", map[string]string{"photo": "is required"}))
		return
	}
	if fh.Size > maxPhotoBytes {
		response.Fail(c, h.Logger, apperror.Validation("Photo is too large", map[string]string{"photo": "must be at most 5MB"}))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.Fail(c, h.Logger, apperror.Internal(err))
		return
	}
	defer func() { _ = f.Close() }()

	u, err := h.Svc.UploadPhoto(c.Request.Context(), c.GetString(middleware.CtxUserIDKey), f, fh.Filename, fh.Header.Get("Content-Type"))
	if err != nil {
		response.Fail(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": u.Public()}, "")
}

// Search GET /api/v1/users/search?q=&role=&size= (admin)
func (h *UserHandler) Search(c *gin.Context) {
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	users, err := h.Svc.SearchUsers(c.Request.Context(), application.UserQuery{
		Text: c.Query("q"),
		Role: entity.Role(c.Query("role")),
		Size: size,
	})
	if err != nil {
		response.Fail(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": len(users), "users": users}, "")
}
