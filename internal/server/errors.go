package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	communitydomain "github.com/communityhq/billingcore/internal/community/domain"
	gatewaydomain "github.com/communityhq/billingcore/internal/gateway/domain"
	reconciledomain "github.com/communityhq/billingcore/internal/reconcile/domain"
	subscriptiondomain "github.com/communityhq/billingcore/internal/subscription/domain"
	"gorm.io/gorm"
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
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid_request")
)

// ErrorHandlingMiddleware converts domain sentinel errors collected on the
// context into JSON responses. Anything unmapped is a plain 500; internals
// never leak to the client.
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

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, gatewaydomain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "payment gateway unavailable",
		}
	case errors.Is(err, gatewaydomain.ErrGatewayRejected):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_rejected",
			Message: "payment gateway rejected the request",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, communitydomain.ErrNotCommunityAdmin),
		errors.Is(err, subscriptiondomain.ErrNotCommunityAdmin),
		errors.Is(err, reconciledomain.ErrNotCommunityAdmin):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, communitydomain.ErrCommunityNotFound),
		errors.Is(err, subscriptiondomain.ErrCommunityNotFound),
		errors.Is(err, subscriptiondomain.ErrRecordNotFound),
		errors.Is(err, subscriptiondomain.ErrNoActiveRecord),
		errors.Is(err, reconciledomain.ErrCommunityNotFound),
		errors.Is(err, gatewaydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, communitydomain.ErrTrialAlreadyUsed),
		errors.Is(err, communitydomain.ErrAlreadyHasAccess),
		errors.Is(err, communitydomain.ErrSlugTaken):
		return true
	default:
		return false
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, communitydomain.ErrInvalidName),
		errors.Is(err, subscriptiondomain.ErrInvalidRequest),
		errors.Is(err, subscriptiondomain.ErrInvalidSignature),
		errors.Is(err, reconciledomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request logger; it mirrors mapError without
// building a response.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	return payload.Type, err.Error()
}
