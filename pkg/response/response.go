package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/tourauth/pkg/apperror"
)

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

type APIResponse[T any] struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Token     string `json:"token,omitempty"`
	Data      T      `json:"data,omitempty"`
	Error     any    `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func Success[T any](c *gin.Context, status int, data T, message string) {
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, APIResponse[T]{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		RequestID: c.GetString("request_id"),
	})
}

// Session answers with a freshly issued session token alongside the data.
func Session[T any](c *gin.Context, status int, token string, data T) {
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, APIResponse[T]{
		Status:    StatusSuccess,
		Token:     token,
		Data:      data,
		RequestID: c.GetString("request_id"),
	})
}

// Fail renders err with the status of its kind and aborts the chain.
// Unclassified and internal errors are logged and answered generically.
func Fail(c *gin.Context, logger *logrus.Logger, err error) {
	ae := apperror.From(err)
	if ae.Kind == apperror.KindInternal || ae.Kind == apperror.KindDelivery {
		if logger != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"path":       c.FullPath(),
				"request_id": c.GetString("request_id"),
			}).Error("request failed")
		}
	}
	var details any
	if len(ae.Details) > 0 {
		details = ae.Details
	}
	c.AbortWithStatusJSON(ae.HTTPStatus(), APIResponse[any]{
		Status:    StatusFail,
		Message:   ae.Message,
		Error:     details,
		RequestID: c.GetString("request_id"),
	})
}

// Abort answers with a bare fail envelope for errors raised outside the
// application layer, such as rate limiting.
func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, APIResponse[any]{
		Status:    StatusFail,
		Message:   message,
		RequestID: c.GetString("request_id"),
	})
}
