// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/repository"
	"github.com/labstack/echo/v4"
)

// ErrorHandler returns the echo error handler. It turns apperr kinds, busy
// databases and echo's own errors into the response envelope. Internal
// errors are logged and their text is only exposed when dev is set.
func ErrorHandler(dev bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		e, status := classifyError(err)
		resp := Response{
			Success:   false,
			Message:   e.Message,
			ErrorCode: e.Kind.Code(),
			Errors:    e.Fields,
			Timestamp: time.Now().UTC(),
		}
		if status >= http.StatusInternalServerError {
			slog.ErrorContext(c.Request().Context(), "request_failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"error", err,
			)
			if dev {
				resp.Detail = err.Error()
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, resp)
		}
		if err != nil {
			slog.ErrorContext(c.Request().Context(), "failed to write error response", "error", err)
		}
	}
}

// classifyError returns the apperr value that decides code and message for
// err, along with the status to answer with.
func classifyError(err error) (*apperr.Error, int) {
	if e, ok := apperr.As(err); ok && e.Kind != apperr.Internal {
		return e, e.Kind.Status()
	}
	if errors.Is(err, repository.ErrBusy) {
		return apperr.ErrBusy, apperr.ErrBusy.Kind.Status()
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return &apperr.Error{Kind: kindForStatus(he.Code), Message: httpErrorMessage(he)}, he.Code
	}

	return apperr.ErrInternal, http.StatusInternalServerError
}

func kindForStatus(status int) apperr.Kind {
	switch {
	case status == http.StatusUnauthorized:
		return apperr.Unauthorized
	case status == http.StatusForbidden:
		return apperr.Forbidden
	case status == http.StatusNotFound, status == http.StatusMethodNotAllowed:
		return apperr.NotFound
	case status == http.StatusConflict:
		return apperr.Conflict
	case status == http.StatusTooManyRequests:
		return apperr.Transient
	case status == http.StatusServiceUnavailable:
		return apperr.DependencyUnavailable
	case status >= http.StatusInternalServerError:
		return apperr.Internal
	default:
		return apperr.Validation
	}
}

func httpErrorMessage(he *echo.HTTPError) string {
	if he.Code >= http.StatusInternalServerError {
		return apperr.ErrInternal.Message
	}
	if msg, ok := he.Message.(string); ok {
		return msg
	}
	return fmt.Sprint(he.Message)
}
