package api

import (
	"context"
	"errors"
	"net/http"

	"exchange-core/internal/engine"
	"exchange-core/internal/projection"
)

// ErrorCode represents API error codes that do not come from the engine
type ErrorCode string

const (
	ErrorCodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	ErrorCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrorCodeDuplicateRequest ErrorCode = "DUPLICATE_REQUEST"
	ErrorCodeTimeout          ErrorCode = "TIMEOUT"
	ErrorCodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

// MapResultToHTTP maps a failed engine result to an HTTP status and body
func MapResultToHTTP(res engine.CommandResult) (int, ErrorResponse) {
	body := ErrorResponse{
		Code:     string(res.Code),
		Message:  getErrorMessage(res.Message, string(res.Code)),
		Sequence: res.Sequence,
	}
	return statusForCategory(res.Code.Category()), body
}

func statusForCategory(c engine.Category) int {
	switch c {
	case engine.CategoryNone:
		return http.StatusOK
	case engine.CategoryValidation, engine.CategoryInsufficientFunds:
		return http.StatusBadRequest
	case engine.CategoryNotFound:
		return http.StatusNotFound
	case engine.CategoryDuplicate:
		return http.StatusConflict
	case engine.CategoryBackpressure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MapErrorToHTTP maps errors raised outside the engine to HTTP status codes
func MapErrorToHTTP(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, ErrorResponse{
			Code:    string(ErrorCodeTimeout),
			Message: "timed out waiting for the engine",
		}
	case errors.Is(err, projection.ErrOrderNotFound), errors.Is(err, projection.ErrTradeNotFound):
		return http.StatusNotFound, ErrorResponse{
			Code:    string(ErrorCodeNotFound),
			Message: err.Error(),
		}
	case errors.Is(err, projection.ErrInvalidArgument):
		return http.StatusBadRequest, ErrorResponse{
			Code:    string(ErrorCodeInvalidArgument),
			Message: err.Error(),
		}
	case errors.Is(err, ErrIdempotencyConflict):
		return http.StatusConflict, ErrorResponse{
			Code:    string(ErrorCodeDuplicateRequest),
			Message: "duplicate request with different payload",
		}
	case errors.Is(err, ErrIdempotencyInFlight):
		return http.StatusConflict, ErrorResponse{
			Code:    string(ErrorCodeDuplicateRequest),
			Message: "a request with this idempotency key is in progress",
		}
	}

	// Default to internal error
	return http.StatusInternalServerError, ErrorResponse{
		Code:    string(ErrorCodeInternalError),
		Message: err.Error(),
	}
}

func getErrorMessage(msg, defaultMsg string) string {
	if msg != "" {
		return msg
	}
	return defaultMsg
}
