package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	depositdomain "github.com/smallbiznis/quoteflow/internal/deposit/domain"
	paymentdomain "github.com/smallbiznis/quoteflow/internal/payment/domain"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
	signaturedomain "github.com/smallbiznis/quoteflow/internal/signature/domain"
	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// State errors, most specific first: ErrQuoteExpired wraps
// ErrSignatureRejected which wraps ErrInvalidTransition.
var stateErrors = []error{
	quotedomain.ErrQuoteExpired,
	quotedomain.ErrSignatureRejected,
	quotedomain.ErrInvalidTransition,
	quotedomain.ErrQuoteNotEditable,
	quotedomain.ErrQuoteNotSigned,
	quotedomain.ErrAlreadySettled,
}

var domainValidationErrors = []error{
	ErrInvalidRequest,
	quotedomain.ErrInvalidID,
	quotedomain.ErrInvalidClient,
	quotedomain.ErrInvalidStatus,
	quotedomain.ErrInvalidLines,
	quotedomain.ErrInvalidQuantity,
	quotedomain.ErrInvalidUnitPrice,
	quotedomain.ErrInvalidVATRate,
	quotedomain.ErrInvalidDepositPercent,
	quotedomain.ErrInvalidDepositMethod,
	signaturedomain.ErrInvalidArtifact,
	signaturedomain.ErrInvalidSigner,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidProvider,
	pagination.ErrInvalidPageToken,
}

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

// bindError turns a gin binding failure into field-level validation errors.
func bindError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidRequestError()
	}
	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: fe.Error(),
		})
	}
	return &ValidationErrors{Errors: out}
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := matchCode(err, domainValidationErrors); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	if code, ok := matchCode(err, stateErrors); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_state",
			Message: code,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, quotedomain.ErrInvalidOwner):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, depositdomain.ErrCheckoutInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "checkout already in progress",
		}
	case errors.Is(err, depositdomain.ErrCheckoutRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many checkout requests",
		}
	case errors.Is(err, paymentdomain.ErrGatewayTimeout):
		return http.StatusGatewayTimeout, errorPayload{
			Type:    "gateway_timeout",
			Message: "payment processor did not answer in time, retry",
		}
	case errors.Is(err, paymentdomain.ErrGatewayNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "payment processor not configured",
		}
	case errors.Is(err, paymentdomain.ErrGateway):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment processor error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger with the same taxonomy the
// client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if payload.Type == "invalid_state" {
		code = payload.Message
	}
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		return "internal", code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func matchCode(err error, candidates []error) (string, bool) {
	for _, candidate := range candidates {
		if errors.Is(err, candidate) {
			return stateCode(candidate), true
		}
	}
	return "", false
}

// stateCode strips the wrapped chain from composite sentinels.
func stateCode(err error) string {
	code, _, _ := strings.Cut(err.Error(), ":")
	return code
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, quotedomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
