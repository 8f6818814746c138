package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/pkg/db/pagination"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate_limited")
	ErrInvalidRequest = errors.New("invalid_request")
)

const (
	msgConfirmNotConfigured = "Payment verification is not configured"
	msgConfirmBadSignature  = "Invalid payment signature"
	msgConfirmMissingFields = "Missing required fields"
	msgConfirmOrderNotFound = "Order not found"
	msgConfirmUnavailable   = "Unable to verify payment"
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// mapError renders errors for the push path and the admin API.
func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}

	if kind, ok := paymentdomain.KindOf(err); ok {
		message := paymentdomain.MessageOf(err)
		switch kind {
		case paymentdomain.KindConfiguration:
			return http.StatusBadRequest, errorPayload{Type: "configuration_error", Message: message}
		case paymentdomain.KindAuthentication:
			return http.StatusUnauthorized, errorPayload{Type: "authentication_error", Message: message}
		case paymentdomain.KindValidation:
			if errors.Is(err, paymentdomain.ErrPayloadTooLarge) {
				return http.StatusRequestEntityTooLarge, errorPayload{Type: "validation_error", Message: message}
			}
			return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: message}
		case paymentdomain.KindDuplicate:
			return http.StatusConflict, errorPayload{Type: "conflict", Message: message}
		case paymentdomain.KindNotFound:
			return http.StatusNotFound, errorPayload{Type: "not_found", Message: message}
		case paymentdomain.KindStorage:
			if isTimeout(err) {
				return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}
			}
			return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, pagination.ErrInvalidPageToken):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "invalid request"}
	case isTimeout(err):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

// confirmErrorMessage renders errors for the confirm path, which always
// answers 400 with a flat message.
func confirmErrorMessage(err error) string {
	kind, _ := paymentdomain.KindOf(err)
	switch kind {
	case paymentdomain.KindConfiguration:
		return msgConfirmNotConfigured
	case paymentdomain.KindAuthentication:
		return msgConfirmBadSignature
	case paymentdomain.KindValidation:
		return msgConfirmMissingFields
	case paymentdomain.KindNotFound:
		return msgConfirmOrderNotFound
	default:
		return msgConfirmUnavailable
	}
}

func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := "unknown"
	if kind, ok := paymentdomain.KindOf(err); ok {
		code = kind.String()
	}
	return payload.Type, code
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
