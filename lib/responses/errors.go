package responses

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/innopay/innopay-hub/lib/service"
	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error          bool   `json:"error"`
	Code           int    `json:"code"`
	Message        string `json:"message"`
	HttpStatusCode int    `json:"-"`
	// Settlement reports the transfers that went through before a settlement failed.
	Settlement *service.SettlementResult `json:"settlement,omitempty"`
}

var GeneralServerError = ErrorResponse{
	Error:          true,
	Code:           6,
	Message:        "Something went wrong. Please try again later",
	HttpStatusCode: 500,
}

var BadArgumentsError = ErrorResponse{
	Error:          true,
	Code:           8,
	Message:        "Bad arguments",
	HttpStatusCode: 400,
}

var BadAuthError = ErrorResponse{
	Error:          true,
	Code:           1,
	Message:        "bad auth",
	HttpStatusCode: 401,
}

var SettlementFailedError = ErrorResponse{
	Error:          true,
	Code:           2,
	Message:        "restaurant could not be paid in any asset",
	HttpStatusCode: 502,
}

var InvalidTransitionError = ErrorResponse{
	Error:          true,
	Code:           3,
	Message:        "debt status transition not allowed",
	HttpStatusCode: 409,
}

var DebtNotFoundError = ErrorResponse{
	Error:          true,
	Code:           4,
	Message:        "debt not found",
	HttpStatusCode: 404,
}

// ForError maps a service error onto its response body.
// The returned flag is false for errors that should fall through to the error handler.
func ForError(err error) (ErrorResponse, bool) {
	var validationErr *service.ValidationError
	var settlementErr *service.SettlementFailedError
	switch {
	case errors.As(err, &validationErr):
		response := BadArgumentsError
		response.Message = validationErr.Error()
		return response, true
	case errors.As(err, &settlementErr):
		response := SettlementFailedError
		response.Settlement = settlementErr.Partial
		return response, true
	case errors.Is(err, service.ErrSettlementFailed):
		return SettlementFailedError, true
	case errors.Is(err, service.ErrInvalidTransition):
		response := InvalidTransitionError
		response.Message = err.Error()
		return response, true
	case errors.Is(err, service.ErrDebtNotFound):
		response := DebtNotFoundError
		response.Message = err.Error()
		return response, true
	}
	return GeneralServerError, false
}

// Respond writes the response body for a known service error and hands anything else to the error handler.
func Respond(c echo.Context, err error) error {
	response, known := ForError(err)
	if !known {
		return err
	}
	c.Logger().Errorf("%s: %v", c.Path(), err)
	return c.JSON(response.HttpStatusCode, response)
}

func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	c.Logger().Error(err)
	if hub := sentryecho.GetHubFromContext(c); hub != nil && isErrAllowedForSentry(err) {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetExtra("Path", c.Path())
			hub.CaptureException(err)
		})
	}
	if he, ok := err.(*echo.HTTPError); ok {
		c.JSON(he.Code, he.Message)
		return
	}
	if response, known := ForError(err); known {
		c.JSON(response.HttpStatusCode, response)
		return
	}
	c.JSON(http.StatusInternalServerError, GeneralServerError)
}

// isErrAllowedForSentry filters out bad auth responses, they are expected noise.
func isErrAllowedForSentry(err error) bool {
	he, ok := err.(*echo.HTTPError)
	if !ok {
		return true
	}
	if he.Code == http.StatusUnauthorized {
		return false
	}
	if body, ok := he.Message.(echo.Map); ok {
		if code, ok := body["code"].(int); ok && code == BadAuthError.Code {
			return false
		}
	}
	return true
}
