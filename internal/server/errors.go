package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	agingdomain "github.com/smallbiznis/bursar/internal/aging/domain"
	feedomain "github.com/smallbiznis/bursar/internal/fee/domain"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/bursar/internal/ledger/domain"
	mobilemoneydomain "github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
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
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

var validationErrs = []error{
	ErrInvalidRequest,
	studentdomain.ErrInvalidSchool,
	studentdomain.ErrInvalidID,
	studentdomain.ErrInvalidName,
	studentdomain.ErrInvalidClassLevel,
	studentdomain.ErrInvalidBoarding,
	feedomain.ErrInvalidSchool,
	feedomain.ErrInvalidStudent,
	feedomain.ErrInvalidFeeType,
	feedomain.ErrInvalidAmount,
	feedomain.ErrInvalidTerm,
	feedomain.ErrInvalidYear,
	feedomain.ErrInvalidClassLevel,
	feedomain.ErrInvalidBoarding,
	feedomain.ErrInvalidOverrideID,
	invoicedomain.ErrInvalidSchool,
	invoicedomain.ErrInvalidID,
	invoicedomain.ErrInvalidStudent,
	invoicedomain.ErrInvalidTerm,
	invoicedomain.ErrInvalidYear,
	invoicedomain.ErrInvalidStatus,
	invoicedomain.ErrInvalidDueDate,
	ledgerdomain.ErrInvalidSchool,
	ledgerdomain.ErrInvalidStudent,
	ledgerdomain.ErrInvalidTermOrYear,
	paymentdomain.ErrInvalidSchool,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidMethod,
	paymentdomain.ErrInvalidTarget,
	paymentdomain.ErrInvalidID,
	paymentdomain.ErrInvalidInstallments,
	paymentdomain.ErrInstallmentSumMismatch,
	mobilemoneydomain.ErrInvalidSchool,
	mobilemoneydomain.ErrInvalidPhoneNumber,
	mobilemoneydomain.ErrInvalidAmount,
	mobilemoneydomain.ErrUnsupportedProvider,
	mobilemoneydomain.ErrInvalidEntityType,
	mobilemoneydomain.ErrInvalidEntityID,
	mobilemoneydomain.ErrInvalidOutcome,
	mobilemoneydomain.ErrInvalidTransactionID,
	mobilemoneydomain.ErrInvalidPayload,
	agingdomain.ErrInvalidSchool,
	agingdomain.ErrInvalidTerm,
	agingdomain.ErrInvalidYear,
}

var notFoundErrs = []error{
	ErrNotFound,
	studentdomain.ErrNotFound,
	feedomain.ErrOverrideNotFound,
	invoicedomain.ErrNotFound,
	paymentdomain.ErrPlanNotFound,
	paymentdomain.ErrInstallmentNotFound,
	paymentdomain.ErrPaymentNotFound,
	mobilemoneydomain.ErrTransactionNotFound,
	gorm.ErrRecordNotFound,
}

var conflictErrs = []error{
	ErrConflict,
	studentdomain.ErrDuplicateAdmission,
	invoicedomain.ErrDuplicateInvoice,
	paymentdomain.ErrConcurrentUpdate,
	paymentdomain.ErrPlanExists,
	paymentdomain.ErrInvoiceSettled,
	paymentdomain.ErrInstallmentMismatch,
	paymentdomain.ErrPaymentNotPending,
	paymentdomain.ErrAmountMismatch,
	paymentdomain.ErrReferenceConflict,
	mobilemoneydomain.ErrStaleTransaction,
	mobilemoneydomain.ErrCallbackInProgress,
	mobilemoneydomain.ErrAmountMismatch,
	mobilemoneydomain.ErrPaymentNotReservable,
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

	if isAny(err, validationErrs) {
		code := validationErrorCode(err)
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

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, mobilemoneydomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isAny(err, notFoundErrs):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case isAny(err, conflictErrs):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, mobilemoneydomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ledgerdomain.ErrInconsistentState):
		return http.StatusInternalServerError, errorPayload{
			Type:    "inconsistent_state",
			Message: "ledger balance does not match invoice balance",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and a stable code for request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if payload.Type == "validation_error" && len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	if payload.Type == "internal_error" {
		return payload.Type, payload.Type
	}
	return payload.Type, err.Error()
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func validationErrorCode(err error) string {
	for _, target := range validationErrs {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "installment_sum_mismatch":
		return "installments"
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
	case "invalid_school":
		return "missing or unknown X-School-ID"
	case "installment_sum_mismatch":
		return "installments must add up to the invoice balance"
	default:
		return "invalid value"
	}
}
