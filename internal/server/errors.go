package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/smallbiznis/billing/internal/credit/domain"
	customerdomain "github.com/smallbiznis/billing/internal/customer/domain"
	discountdomain "github.com/smallbiznis/billing/internal/discount/domain"
	invoicedomain "github.com/smallbiznis/billing/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/billing/internal/payment/domain"
	plandomain "github.com/smallbiznis/billing/internal/plan/domain"
	quotadomain "github.com/smallbiznis/billing/internal/quota/domain"
	refunddomain "github.com/smallbiznis/billing/internal/refund/domain"
	subscriptiondomain "github.com/smallbiznis/billing/internal/subscription/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
)

// ErrorHandlingMiddleware renders the last gin error as a JSON payload
// with the status mapped from the domain sentinel.
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
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    errorCode(err),
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    errorCode(err),
			Message: "conflict",
		}
	case errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, paymentdomain.ErrStaleTimestamp):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Code:    errorCode(err),
			Message: "webhook verification failed",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    errorCode(err),
			Message: "invalid request",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Code:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, customerdomain.ErrCustomerNotFound),
		errors.Is(err, customerdomain.ErrPaymentMethodNotFound),
		errors.Is(err, discountdomain.ErrDiscountNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, refunddomain.ErrRefundNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, plandomain.ErrDuplicateCode),
		errors.Is(err, discountdomain.ErrDiscountAlreadyApplied),
		errors.Is(err, invoicedomain.ErrInvalidStatus),
		errors.Is(err, refunddomain.ErrExceedsRefundable),
		errors.Is(err, refunddomain.ErrInvalidTransition),
		errors.Is(err, subscriptiondomain.ErrInvalidTransition),
		errors.Is(err, subscriptiondomain.ErrAlreadyCanceled),
		errors.Is(err, subscriptiondomain.ErrAlreadySubscribed),
		errors.Is(err, creditdomain.ErrInsufficientCredit),
		errors.Is(err, quotadomain.ErrQuotaExceeded),
		errors.Is(err, paymentdomain.ErrEventProcessed):
		return true
	default:
		return false
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, plandomain.ErrInvalidPlan),
		errors.Is(err, plandomain.ErrInvalidName),
		errors.Is(err, plandomain.ErrInvalidPrice),
		errors.Is(err, plandomain.ErrInvalidInterval),
		errors.Is(err, customerdomain.ErrInvalidPaymentMethod),
		errors.Is(err, discountdomain.ErrInvalidDiscount),
		errors.Is(err, discountdomain.ErrDiscountExpired),
		errors.Is(err, discountdomain.ErrDiscountNotApplicable),
		errors.Is(err, creditdomain.ErrInvalidAmount),
		errors.Is(err, invoicedomain.ErrNothingToBill),
		errors.Is(err, refunddomain.ErrInvalidAmount),
		errors.Is(err, subscriptiondomain.ErrNoBasePlan),
		errors.Is(err, subscriptiondomain.ErrSamePlan),
		errors.Is(err, subscriptiondomain.ErrAddonRequiresBasePlan),
		errors.Is(err, subscriptiondomain.ErrNotOnGracePeriod),
		errors.Is(err, subscriptiondomain.ErrNoScheduledChange),
		errors.Is(err, quotadomain.ErrInvalidDelta),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload):
		return true
	default:
		return false
	}
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// classifyErrorForLog feeds the request logger with a stable error
// taxonomy without leaking internals.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "internal_error", payload.Code
	case status == http.StatusNotFound:
		return "not_found", payload.Code
	case status == http.StatusConflict:
		return "conflict", payload.Code
	case status == http.StatusUnauthorized:
		return "unauthorized", payload.Code
	default:
		return "validation_error", payload.Code
	}
}
