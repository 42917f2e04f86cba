package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ByLCY/adsmith/feed"
	"github.com/ByLCY/adsmith/logger"
)

// Response is the JSON envelope of every API reply.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Meta struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

const (
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeNotFound     = "ERR_NOT_FOUND"
	ErrCodeInternal     = "ERR_INTERNAL"
	ErrCodeOrganization = "ERR_ORGANIZATION_REQUIRED"
)

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func okList(c *gin.Context, data any, meta Meta) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: &meta})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: &ErrorInfo{Code: code, Message: message}})
}

// failErr maps a service error to its status and code. Internal errors are
// logged and replaced by a generic message.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, feed.ErrTemplateNotFound),
		errors.Is(err, feed.ErrFeedNotFound),
		errors.Is(err, feed.ErrListingNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, feed.ErrInvalidInput):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		_ = c.Error(err)
		logger.FromGin(c, nil).Error("request failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// failBinding reports a request body that did not bind or validate.
func failBinding(c *gin.Context, err error) {
	fail(c, http.StatusBadRequest, ErrCodeValidation, describeBinding(err))
}

func describeBinding(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body: " + err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
