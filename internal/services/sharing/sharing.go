// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package sharing manages invitations that grant another person read access
// to a user's reports.
//
// A grant is created pending for a target email and carries an opaque
// invitation token of which only the SHA-256 is stored. It becomes active
// when a signed-in user with the target email redeems the token. Owners
// revoke grants by deleting them. Any grant past its expiry is treated as
// expired whatever its stored status.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/models"
	"codeberg.org/oliverandrich/medivault/internal/repository"
	"codeberg.org/oliverandrich/medivault/internal/services/email"
	"codeberg.org/oliverandrich/medivault/internal/services/storage"
	"codeberg.org/oliverandrich/medivault/internal/tokens"
)

// InvitationValidity is the lifetime of a new grant, and of a grant from
// the moment it is redeemed.
const InvitationValidity = 7 * 24 * time.Hour

var (
	ErrDuplicateGrant     = apperr.New(apperr.Conflict, "records are already shared with this email")
	ErrSelfShare          = apperr.New(apperr.Validation, "you cannot share records with yourself")
	ErrInvalidAccessLevel = apperr.New(apperr.Validation, "invalid access level")
	ErrReportNotFound     = apperr.New(apperr.NotFound, "report not found")
	ErrGrantNotFound      = apperr.New(apperr.NotFound, "shared access not found")
	ErrTokenNotFound      = apperr.New(apperr.Validation, "invalid invitation token")
	ErrTokenExpired       = apperr.New(apperr.Validation, "invitation has expired")
	ErrTokenAlreadyUsed   = apperr.New(apperr.Validation, "invitation has already been used")
)

// Mailer sends invitation emails.
type Mailer interface {
	SendInvitation(ctx context.Context, to string, inv email.Invitation) error
}

type Service struct {
	repo   *repository.Repository
	mailer Mailer
	store  storage.Store
}

func NewService(repo *repository.Repository, mailer Mailer, store storage.Store) *Service {
	return &Service{repo: repo, mailer: mailer, store: store}
}

type CreateParams struct { //nolint:govet // fieldalignment: readability over optimization
	OwnerID     int64
	TargetEmail string
	TargetName  string
	AccessLevel models.AccessLevel
	ReportIDs   []int64
}

// Create stores a pending grant, links the selected reports and sends the
// invitation. A failed invitation email is logged and the grant is kept.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.SharedAccess, error) {
	if !p.AccessLevel.Valid() {
		return nil, ErrInvalidAccessLevel
	}

	target := strings.ToLower(strings.TrimSpace(p.TargetEmail))

	owner, err := s.repo.GetUserByID(ctx, p.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	if owner.Email == target {
		return nil, ErrSelfShare
	}

	reportIDs := slices.Clone(p.ReportIDs)
	slices.Sort(reportIDs)
	reportIDs = slices.Compact(reportIDs)

	owned, err := s.repo.CountOwnedReports(ctx, p.OwnerID, reportIDs)
	if err != nil {
		return nil, fmt.Errorf("check reports: %w", err)
	}
	if owned != len(reportIDs) {
		return nil, ErrReportNotFound
	}

	token, tokenHash, expiresAt, err := tokens.Generate(InvitationValidity)
	if err != nil {
		return nil, err
	}

	grant := &models.SharedAccess{
		OwnerID:     p.OwnerID,
		TargetEmail: target,
		TargetName:  strings.TrimSpace(p.TargetName),
		AccessLevel: p.AccessLevel,
		Status:      models.SharePending,
		TokenHash:   tokenHash,
		ExpiresAt:   expiresAt,
	}

	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		// Concurrent grants of one owner queue up behind this lock.
		if err := tx.LockUser(ctx, p.OwnerID); err != nil {
			return err
		}
		now := time.Now()
		if _, err := tx.ExpireStaleGrants(ctx, p.OwnerID, target, now); err != nil {
			return err
		}
		live, err := tx.HasLiveGrant(ctx, p.OwnerID, target, now)
		if err != nil {
			return err
		}
		if live {
			return ErrDuplicateGrant
		}
		if err := tx.CreateSharedAccess(ctx, grant); err != nil {
			return err
		}
		return tx.LinkSharedReports(ctx, grant.ID, reportIDs)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateGrant) {
			return nil, err
		}
		return nil, fmt.Errorf("create grant: %w", err)
	}

	slog.InfoContext(ctx, "share_created",
		"grant_id", grant.ID,
		"owner_id", p.OwnerID,
		"access_level", p.AccessLevel,
		"reports", len(reportIDs),
	)

	reportCount := len(reportIDs)
	if p.AccessLevel == models.AccessFull {
		if n, err := s.repo.CountReports(ctx, p.OwnerID); err == nil {
			reportCount = int(n)
		}
	}

	inv := email.Invitation{
		OwnerName:     s.displayName(ctx, owner),
		RecipientName: grant.TargetName,
		Token:         token,
		AccessLevel:   grant.AccessLevel,
		ReportCount:   reportCount,
		ExpiresAt:     grant.ExpiresAt,
	}
	if err := s.mailer.SendInvitation(ctx, target, inv); err != nil {
		slog.WarnContext(ctx, "share_invitation_email_failed", "grant_id", grant.ID, "error", err)
	}

	return grant, nil
}

// Invitation describes a grant to the person holding its token.
type Invitation struct { //nolint:govet // fieldalignment: readability over optimization
	ID          int64              `json:"id"`
	OwnerID     int64              `json:"ownerId"`
	OwnerName   string             `json:"ownerName"`
	TargetEmail string             `json:"targetEmail"`
	AccessLevel models.AccessLevel `json:"accessLevel"`
	ExpiresAt   time.Time          `json:"expiresAt"`
	ReportCount int                `json:"reportCount"`
}

// ValidateToken returns the invitation behind a token. Unknown, expired and
// redeemed tokens fail with distinct errors.
func (s *Service) ValidateToken(ctx context.Context, token string) (*Invitation, error) {
	grant, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	owner, err := s.repo.GetUserByID(ctx, grant.OwnerID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("load owner: %w", err)
	}

	count, err := s.visibleReportCount(ctx, grant)
	if err != nil {
		return nil, err
	}

	return &Invitation{
		ID:          grant.ID,
		OwnerID:     grant.OwnerID,
		OwnerName:   s.displayName(ctx, owner),
		TargetEmail: grant.TargetEmail,
		AccessLevel: grant.AccessLevel,
		ExpiresAt:   grant.ExpiresAt,
		ReportCount: count,
	}, nil
}

func (s *Service) lookup(ctx context.Context, token string) (*models.SharedAccess, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}

	grant, err := s.repo.GetSharedAccessByTokenHash(ctx, tokens.Hash(token))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("load grant: %w", err)
	}

	switch {
	case grant.RedeemedAt != nil:
		return nil, ErrTokenAlreadyUsed
	case grant.Status == models.ShareRevoked:
		return nil, ErrTokenNotFound
	case grant.Status == models.ShareExpired, grant.Expired(time.Now()):
		return nil, ErrTokenExpired
	}
	return grant, nil
}

// Caller is the signed-in user redeeming an invitation.
type Caller struct {
	UserID int64
	Email  string
}

type RedeemResult struct {
	Activated     bool `json:"activated"`
	LoginRequired bool `json:"loginRequired"`
}

// Redeem activates the grant for caller when the caller's email is the
// target email. Without a caller, or with a different email, the token is
// left untouched.
func (s *Service) Redeem(ctx context.Context, token string, caller *Caller) (*RedeemResult, error) {
	grant, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	if caller == nil {
		return &RedeemResult{LoginRequired: true}, nil
	}

	if !strings.EqualFold(strings.TrimSpace(caller.Email), grant.TargetEmail) {
		slog.InfoContext(ctx, "share_redeem_email_mismatch", "grant_id", grant.ID, "user_id", caller.UserID)
		return &RedeemResult{}, nil
	}

	now := time.Now()
	ok, err := s.repo.RedeemSharedAccess(ctx, grant.ID, caller.UserID, now, now.Add(InvitationValidity))
	if err != nil {
		return nil, fmt.Errorf("redeem grant: %w", err)
	}
	if !ok {
		return nil, ErrTokenAlreadyUsed
	}

	slog.InfoContext(ctx, "share_redeemed", "grant_id", grant.ID, "grantee_id", caller.UserID)
	return &RedeemResult{Activated: true}, nil
}

// Revoke deletes a grant owned by ownerID together with its report links.
func (s *Service) Revoke(ctx context.Context, ownerID, grantID int64) error {
	var deleted bool
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		deleted, err = tx.DeleteSharedAccess(ctx, ownerID, grantID)
		return err
	})
	if err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	if !deleted {
		return ErrGrantNotFound
	}

	slog.InfoContext(ctx, "share_revoked", "grant_id", grantID, "owner_id", ownerID)
	return nil
}

// ListOwned returns the grants created by ownerID.
func (s *Service) ListOwned(ctx context.Context, ownerID int64) ([]models.SharedAccessView, error) {
	return s.repo.ListSharedAccessByOwner(ctx, ownerID)
}

// ListSharedWithMe returns the active grants redeemed by userID.
func (s *Service) ListSharedWithMe(ctx context.Context, userID int64) ([]models.SharedAccessView, error) {
	return s.repo.ListSharedAccessByGrantee(ctx, userID, time.Now())
}

// SharedReport is a report as seen by a grantee.
type SharedReport struct {
	models.Report
	DownloadURL string `json:"download_url,omitempty"`
}

// SharedReports returns the reports visible to granteeID through an active
// grant. Full grants see every report of the owner, the other levels only
// the linked ones. View-only grants get no download links.
func (s *Service) SharedReports(ctx context.Context, granteeID, grantID int64) ([]SharedReport, error) {
	grant, err := s.repo.GetSharedAccess(ctx, grantID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrGrantNotFound
		}
		return nil, fmt.Errorf("load grant: %w", err)
	}
	if grant.GranteeID == nil || *grant.GranteeID != granteeID ||
		grant.Status != models.ShareActive || grant.Expired(time.Now()) {
		return nil, ErrGrantNotFound
	}
	if _, err := s.repo.GetUserByID(ctx, grant.OwnerID); err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrGrantNotFound
		}
		return nil, fmt.Errorf("load owner: %w", err)
	}

	var reports []models.Report
	if grant.AccessLevel == models.AccessFull {
		reports, err = s.repo.ListReports(ctx, grant.OwnerID)
	} else {
		reports, err = s.repo.ListReportsForGrant(ctx, grant.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	shared := make([]SharedReport, 0, len(reports))
	for _, r := range reports {
		sr := SharedReport{Report: r}
		if grant.AccessLevel != models.AccessViewOnly {
			url, err := s.store.PresignGet(ctx, r.StorageKey, r.FileName, storage.DownloadURLTTL)
			if err != nil {
				slog.WarnContext(ctx, "share_presign_failed", "report_id", r.ID, "error", err)
			} else {
				sr.DownloadURL = url
			}
		}
		shared = append(shared, sr)
	}
	return shared, nil
}

func (s *Service) visibleReportCount(ctx context.Context, grant *models.SharedAccess) (int, error) {
	if grant.AccessLevel == models.AccessFull {
		n, err := s.repo.CountReports(ctx, grant.OwnerID)
		return int(n), err
	}
	return s.repo.CountSharedReports(ctx, grant.ID)
}

// displayName prefers the profile name over the email address.
func (s *Service) displayName(ctx context.Context, u *models.User) string {
	ind, err := s.repo.GetIndividual(ctx, u.ID)
	if err == nil && ind.FullName != "" {
		return ind.FullName
	}
	return u.Email
}
