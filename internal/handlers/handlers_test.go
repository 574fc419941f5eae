// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/handlers"
	"codeberg.org/oliverandrich/medivault/internal/repository"
	"codeberg.org/oliverandrich/medivault/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error {
	return errors.New("connection refused")
}

func TestHealth(t *testing.T) {
	h := handlers.New(nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Health(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealth_WithDatabase(t *testing.T) {
	db, _ := testutil.NewTestDB(t)
	h := handlers.New(db)

	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodGet, "/health", nil)

	require.NoError(t, h.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_DatabaseDown(t *testing.T) {
	h := handlers.New(failingPinger{})

	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodGet, "/health", nil)

	require.NoError(t, h.Health(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) handlers.Response {
	t.Helper()
	var resp handlers.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:    "validation",
			err:     apperr.New(apperr.Validation, "bad input"),
			status:  http.StatusBadRequest,
			code:    "VALIDATION_ERROR",
			message: "bad input",
		},
		{
			name:    "wrapped not found",
			err:     fmt.Errorf("load: %w", apperr.New(apperr.NotFound, "report not found")),
			status:  http.StatusNotFound,
			code:    "NOT_FOUND",
			message: "report not found",
		},
		{
			name:    "conflict",
			err:     apperr.New(apperr.Conflict, "already exists"),
			status:  http.StatusConflict,
			code:    "CONFLICT",
			message: "already exists",
		},
		{
			name:    "busy database",
			err:     fmt.Errorf("get user: %w", repository.ErrBusy),
			status:  http.StatusTooManyRequests,
			code:    "RATE_LIMIT",
			message: apperr.ErrBusy.Message,
		},
		{
			name:    "echo not found",
			err:     echo.ErrNotFound,
			status:  http.StatusNotFound,
			code:    "NOT_FOUND",
			message: "Not Found",
		},
		{
			name:    "echo body too large",
			err:     echo.ErrStatusRequestEntityTooLarge,
			status:  http.StatusRequestEntityTooLarge,
			code:    "VALIDATION_ERROR",
			message: "Request Entity Too Large",
		},
		{
			name:    "unknown error",
			err:     errors.New("disk on fire"),
			status:  http.StatusInternalServerError,
			code:    "INTERNAL_ERROR",
			message: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			c, rec := testutil.NewEchoContext(e, http.MethodGet, "/", nil)

			handlers.ErrorHandler(false)(tt.err, c)

			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.ErrorCode)
			assert.Equal(t, tt.message, resp.Message)
			assert.Empty(t, resp.Detail)
			assert.False(t, resp.Timestamp.IsZero())
		})
	}
}

func TestErrorHandler_FieldErrors(t *testing.T) {
	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodPost, "/", nil)

	handlers.ErrorHandler(false)(apperr.ValidationFields("weak password", map[string]string{
		"password": "too short",
	}), c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]string{"password": "too short"}, decode(t, rec).Errors)
}

func TestErrorHandler_DevDetail(t *testing.T) {
	e := echo.New()
	err := errors.New("disk on fire")

	c, rec := testutil.NewEchoContext(e, http.MethodGet, "/", nil)
	handlers.ErrorHandler(true)(err, c)
	assert.Equal(t, "disk on fire", decode(t, rec).Detail)

	c, rec = testutil.NewEchoContext(e, http.MethodGet, "/", nil)
	handlers.ErrorHandler(true)(apperr.New(apperr.Validation, "bad input"), c)
	assert.Empty(t, decode(t, rec).Detail, "client errors carry no detail")
}

func TestErrorHandler_Head(t *testing.T) {
	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodHead, "/", nil)

	handlers.ErrorHandler(false)(apperr.ErrNotFound, c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestErrorHandler_Committed(t *testing.T) {
	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodGet, "/", nil)
	require.NoError(t, c.NoContent(http.StatusAccepted))

	handlers.ErrorHandler(false)(apperr.ErrNotFound, c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}
