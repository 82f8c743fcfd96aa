package httpapp

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/ringgate/ringgate/internal/cab"
	"github.com/ringgate/ringgate/internal/evidence"
	"github.com/ringgate/ringgate/internal/faults"
	"github.com/ringgate/ringgate/internal/risk"
)

const InternalErrorCode = "INTERNAL_ERROR"

// errorCodes names the sentinel behind a classified error for API clients.
var errorCodes = []struct {
	err  error
	code string
}{
	{evidence.ErrMissingField, "MISSING_FIELD"},
	{evidence.ErrMalformedField, "MALFORMED_FIELD"},
	{evidence.ErrIntegrity, "INTEGRITY_FAILURE"},
	{risk.ErrUnknownModelVersion, "UNKNOWN_MODEL_VERSION"},
	{risk.ErrInvalidModel, "INVALID_MODEL"},
	{risk.ErrIncompleteEvidenceForScoring, "INCOMPLETE_EVIDENCE"},
	{cab.ErrDuplicatePendingRequest, "DUPLICATE_PENDING_REQUEST"},
	{cab.ErrInvalidTransition, "INVALID_TRANSITION"},
	{cab.ErrSameActorViolation, "SAME_ACTOR_VIOLATION"},
	{cab.ErrUnauthorizedActor, "UNAUTHORIZED_ACTOR"},
	{cab.ErrExceptionExists, "EXCEPTION_EXISTS"},
	{cab.ErrExceptionExpired, "EXCEPTION_EXPIRED"},
	{cab.ErrMissingActor, "MISSING_ACTOR"},
	{cab.ErrMissingReason, "MISSING_REASON"},
	{cab.ErrInvalidExpiry, "INVALID_EXPIRY"},
	{cab.ErrNoCompensatingControls, "NO_COMPENSATING_CONTROLS"},
	{cab.ErrUnknownRing, "UNKNOWN_RING"},
	{cab.ErrInvalidBreakdown, "INVALID_BREAKDOWN"},
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Class         faults.Class `json:"class"`
	Code          string       `json:"code"`
	Message       string       `json:"message"`
	Retryable     bool         `json:"retryable"`
	CorrelationID string       `json:"correlation_id,omitempty"`
}

// decodeError marks a request body that could not be read as JSON.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string            { return "decode request body: " + e.err.Error() }
func (e *decodeError) Unwrap() error            { return e.err }
func (e *decodeError) FaultClass() faults.Class { return faults.ClassValidation }

func (es *EchoServer) httpErrorHandler(c *echo.Context, err error) {
	if err == nil {
		return
	}
	correlationID := correlationIDFrom(c)

	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		// Router and middleware errors: status text only.
		status := sc.StatusCode()
		if status == http.StatusNotFound {
			_ = c.String(http.StatusNotFound, "404 page not found")
			return
		}
		if status >= http.StatusInternalServerError {
			es.logError(c, err)
		}
		_ = c.String(status, http.StatusText(status))
		return
	}

	class := faults.ClassOf(err)
	status := statusForClass(class)
	detail := errorDetail{
		Class:         class,
		Code:          codeOf(err),
		Message:       err.Error(),
		Retryable:     faults.Retryable(err),
		CorrelationID: correlationID,
	}

	switch class {
	case faults.ClassInternal:
		es.logError(c, err)
		msg := "Internal server error."
		if correlationID != "" {
			msg = fmt.Sprintf("%s Reference: %s.", msg, correlationID)
		}
		detail.Code = InternalErrorCode
		detail.Message = fmt.Sprintf("%s Code: %s.", msg, InternalErrorCode)
	case faults.ClassIntegrity, faults.ClassConfiguration:
		es.logError(c, err)
	default:
		c.Logger().Debug("http request rejected",
			"correlation_id", correlationID,
			"class", class,
			"error", err,
		)
	}
	_ = c.JSON(status, errorBody{Error: detail})
}

func (es *EchoServer) logError(c *echo.Context, err error) {
	method, path := "", ""
	if req := c.Request(); req != nil {
		method = req.Method
		if req.URL != nil {
			path = req.URL.Path
		}
	}
	c.Logger().Error("http error",
		"correlation_id", correlationIDFrom(c),
		"method", method,
		"path", path,
		"ip", c.RealIP(),
		"class", faults.ClassOf(err),
		"error", err,
	)
}

func httpStatusFromError(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return statusForClass(faults.ClassOf(err))
}

func statusForClass(class faults.Class) int {
	switch class {
	case faults.ClassValidation:
		return http.StatusBadRequest
	case faults.ClassStateConflict:
		return http.StatusConflict
	case faults.ClassNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func codeOf(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	switch faults.ClassOf(err) {
	case faults.ClassNotFound:
		return "NOT_FOUND"
	case faults.ClassValidation:
		return "INVALID_INPUT"
	case faults.ClassConfiguration:
		return "CONFIGURATION_ERROR"
	}
	return InternalErrorCode
}
