// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"time"

	"github.com/labstack/echo/v4"
)

// Response is the envelope of every API answer except the health check.
type Response struct { //nolint:govet // fieldalignment: readability over optimization
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Data      any               `json:"data,omitempty"`
	ErrorCode string            `json:"errorCode,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	// Detail carries the internal error text in dev mode only.
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func respond(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Response{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}
