// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ctxkeys defines typed context keys used across packages.
package ctxkeys

// Identity is the context key for the authenticated caller.
type Identity struct{}

// RequestID is the context key for the request id assigned by the server.
type RequestID struct{}
