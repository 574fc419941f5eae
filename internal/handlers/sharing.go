// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/appcontext"
	"codeberg.org/oliverandrich/medivault/internal/models"
	"codeberg.org/oliverandrich/medivault/internal/services/sharing"
	"github.com/labstack/echo/v4"
)

// SharingHandlers contains handlers for share grants and invitations.
type SharingHandlers struct {
	sharing *sharing.Service
}

// NewSharing creates a new SharingHandlers instance.
func NewSharing(svc *sharing.Service) *SharingHandlers {
	return &SharingHandlers{sharing: svc}
}

// CreateShareRequest is the request body for inviting someone to the
// caller's reports. ReportIDs is ignored for full access.
type CreateShareRequest struct {
	Email       string  `json:"email" validate:"required,email,max=254"`
	Name        string  `json:"name" validate:"max=200"`
	AccessLevel string  `json:"access_level" validate:"required,oneof=full limited view_only"`
	ReportIDs   []int64 `json:"report_ids" validate:"omitempty,dive,gt=0"`
}

// CreateShareResponse identifies a new grant.
type CreateShareResponse struct {
	ID          int64              `json:"id"`
	Status      models.ShareStatus `json:"status"`
	AccessLevel models.AccessLevel `json:"accessLevel"`
	ExpiresAt   time.Time          `json:"expiresAt"`
}

// Create creates a grant and emails the invitation.
func (h *SharingHandlers) Create(c echo.Context) error {
	var req CreateShareRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	grant, err := h.sharing.Create(c.Request().Context(), sharing.CreateParams{
		OwnerID:     appcontext.UserID(c),
		TargetEmail: req.Email,
		TargetName:  req.Name,
		AccessLevel: models.AccessLevel(req.AccessLevel),
		ReportIDs:   req.ReportIDs,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusCreated, "invitation sent", CreateShareResponse{
		ID:          grant.ID,
		Status:      grant.Status,
		AccessLevel: grant.AccessLevel,
		ExpiresAt:   grant.ExpiresAt,
	})
}

// ListOwned returns the grants the caller has created.
func (h *SharingHandlers) ListOwned(c echo.Context) error {
	grants, err := h.sharing.ListOwned(c.Request().Context(), appcontext.UserID(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", grants)
}

// ListSharedWithMe returns the grants the caller has redeemed.
func (h *SharingHandlers) ListSharedWithMe(c echo.Context) error {
	grants, err := h.sharing.ListSharedWithMe(c.Request().Context(), appcontext.UserID(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", grants)
}

// Reports returns the reports the caller can see through a grant.
func (h *SharingHandlers) Reports(c echo.Context) error {
	grantID, err := parseID(c.Param("id"))
	if err != nil {
		return err
	}

	reports, err := h.sharing.SharedReports(c.Request().Context(), appcontext.UserID(c), grantID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", reports)
}

// Invitation describes the invitation behind a token without redeeming it.
func (h *SharingHandlers) Invitation(c echo.Context) error {
	inv, err := h.sharing.ValidateToken(c.Request().Context(), c.QueryParam("token"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "invitation is valid", inv)
}

// AcceptRequest is the request body for redeeming an invitation.
type AcceptRequest struct {
	Token string `json:"token" validate:"required"`
}

// Accept redeems an invitation for the signed-in caller. Anonymous callers
// are told to log in first.
func (h *SharingHandlers) Accept(c echo.Context) error {
	var req AcceptRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	var caller *sharing.Caller
	if id := appcontext.IdentityOf(c); id != nil {
		caller = &sharing.Caller{UserID: id.UserID, Email: id.Email}
	}

	result, err := h.sharing.Redeem(c.Request().Context(), req.Token, caller)
	if err != nil {
		return err
	}

	message := "invitation accepted"
	switch {
	case result.LoginRequired:
		message = "please log in to accept the invitation"
	case !result.Activated:
		message = "this invitation was sent to a different email address"
	}
	return respond(c, http.StatusOK, message, result)
}

// Revoke deletes one of the caller's grants. The grant id is taken from the
// id query parameter.
func (h *SharingHandlers) Revoke(c echo.Context) error {
	grantID, err := parseID(c.QueryParam("id"))
	if err != nil {
		return err
	}

	if err := h.sharing.Revoke(c.Request().Context(), appcontext.UserID(c), grantID); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "access revoked", nil)
}
