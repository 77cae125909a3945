package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"tours-backend/internal/engine"
	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

// Invitation statuses.
const (
	InvitePending  = "pending"
	InviteAccepted = "accepted"
	InviteRevoked  = "revoked"
	InviteExpired  = "expired"
)

const inviteColumns = "id, email, role, token, status, invited_by, expires_at, accepted_at, created_at"

type Invite struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	Token      string     `json:"token,omitempty"`
	Status     string     `json:"status"`
	InvitedBy  string     `json:"invited_by,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func inviteFromRow(row map[string]any) *Invite {
	inv := &Invite{}
	inv.ID, _ = row["id"].(string)
	inv.Email, _ = row["email"].(string)
	inv.Role, _ = row["role"].(string)
	inv.Token, _ = row["token"].(string)
	inv.Status, _ = row["status"].(string)
	inv.InvitedBy, _ = row["invited_by"].(string)
	inv.ExpiresAt, _ = row["expires_at"].(time.Time)
	inv.CreatedAt, _ = row["created_at"].(time.Time)
	if t, ok := row["accepted_at"].(time.Time); ok {
		inv.AcceptedAt = &t
	}
	return inv
}

// Invites manages user invitations. An invitation is consumed once, by the
// first successful accept before its expiry.
type Invites struct {
	store *store.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewInvites(s *store.Store, ttl time.Duration) *Invites {
	return &Invites{store: s, ttl: ttl, now: time.Now}
}

// Send creates a pending invitation. It fails with 409 if the email already
// belongs to a user or has an unexpired pending invitation.
func (iv *Invites) Send(ctx context.Context, email, role, invitedBy string) (*Invite, error) {
	email = NormalizeEmail(email)
	if !metadata.ValidRole(role) {
		return nil, engine.ValidationError([]engine.ErrorDetail{{Field: "role", Rule: "enum", Message: "role must be one of admin, manager, member"}})
	}
	now := iv.now().UTC()
	d := iv.store.Dialect

	var inv *Invite
	err := iv.store.WithTx(ctx, func(tx *sql.Tx) error {
		pb := d.NewParamBuilder()
		if _, err := store.QueryRow(ctx, tx, "SELECT id FROM _users WHERE LOWER(email) = "+pb.Add(email), pb.Params()...); err == nil {
			return engine.ConflictError("This email is already registered")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		pb = d.NewParamBuilder()
		_, err := store.QueryRow(ctx, tx, fmt.Sprintf(
			"SELECT id FROM _invites WHERE email = %s AND status = %s AND expires_at > %s",
			pb.Add(email), pb.Add(InvitePending), pb.Add(d.TimeParam(now))), pb.Params()...)
		if err == nil {
			return engine.ConflictError("An invitation has already been sent to this email")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		inv = &Invite{
			ID:        store.NewID("inv"),
			Email:     email,
			Role:      role,
			Token:     GenerateInviteToken(),
			Status:    InvitePending,
			InvitedBy: invitedBy,
			ExpiresAt: now.Add(iv.ttl),
			CreatedAt: now,
		}
		pb = d.NewParamBuilder()
		_, err = store.Exec(ctx, tx, fmt.Sprintf(
			"INSERT INTO _invites (id, email, role, token, status, invited_by, expires_at, created_at) VALUES (%s, %s, %s, %s, %s, %s, %s, %s)",
			pb.Add(inv.ID), pb.Add(inv.Email), pb.Add(inv.Role), pb.Add(inv.Token), pb.Add(inv.Status),
			pb.Add(inv.InvitedBy), pb.Add(d.TimeParam(inv.ExpiresAt)), pb.Add(d.TimeParam(now))), pb.Params()...)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Invitation %s sent to %s as %s", inv.ID, inv.Email, inv.Role)
	return inv, nil
}

// List returns invitations newest first, optionally filtered by status.
func (iv *Invites) List(ctx context.Context, status string) ([]*Invite, error) {
	pb := iv.store.Dialect.NewParamBuilder()
	q := "SELECT " + inviteColumns + " FROM _invites"
	if status != "" {
		q += " WHERE status = " + pb.Add(status)
	}
	q += " ORDER BY created_at DESC, id DESC"
	rows, err := store.QueryRows(ctx, iv.store.DB, q, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	out := make([]*Invite, 0, len(rows))
	for _, row := range rows {
		out = append(out, inviteFromRow(row))
	}
	return out, nil
}

// Revoke cancels a pending invitation.
func (iv *Invites) Revoke(ctx context.Context, id string) error {
	pb := iv.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, iv.store.DB, fmt.Sprintf(
		"UPDATE _invites SET status = %s WHERE id = %s AND status = %s",
		pb.Add(InviteRevoked), pb.Add(id), pb.Add(InvitePending)), pb.Params()...)
	if err != nil {
		return fmt.Errorf("revoke invitation: %w", err)
	}
	if n == 0 {
		return engine.NotFoundError("Invitation", id)
	}
	return nil
}

// Accept consumes a pending invitation and creates the user with the invited
// role. It returns the new user.
func (iv *Invites) Accept(ctx context.Context, token, password string) (*metadata.UserContext, error) {
	if len(password) < MinPasswordLength {
		return nil, engine.ValidationError([]engine.ErrorDetail{{
			Field: "password", Rule: "min_length",
			Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength),
		}})
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := iv.now().UTC()
	d := iv.store.Dialect

	var user *metadata.UserContext
	err = iv.store.WithTx(ctx, func(tx *sql.Tx) error {
		pb := d.NewParamBuilder()
		row, err := store.QueryRow(ctx, tx, "SELECT "+inviteColumns+" FROM _invites WHERE token = "+pb.Add(token), pb.Params()...)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return engine.NewAppError("INVALID_INVITATION", 400, "Invalid invitation token")
			}
			return err
		}
		inv := inviteFromRow(row)
		if inv.Status != InvitePending {
			return engine.NewAppError("INVALID_INVITATION", 400, "Invitation is "+inv.Status)
		}
		if !now.Before(inv.ExpiresAt) {
			return engine.NewAppError("INVALID_INVITATION", 400, "Invitation has expired")
		}

		user = &metadata.UserContext{ID: store.GenerateUUID(), Email: inv.Email, Role: inv.Role}
		pb = d.NewParamBuilder()
		_, err = store.Exec(ctx, tx, fmt.Sprintf(
			"INSERT INTO _users (id, email, password_hash, role, active, created_at, updated_at) VALUES (%s, %s, %s, %s, %s, %s, %s)",
			pb.Add(user.ID), pb.Add(user.Email), pb.Add(hash), pb.Add(user.Role), pb.Add(true),
			pb.Add(d.TimeParam(now)), pb.Add(d.TimeParam(now))), pb.Params()...)
		if err != nil {
			if errors.Is(store.MapError(d, err), store.ErrUniqueViolation) {
				return engine.ConflictError("This email is already registered")
			}
			return err
		}

		pb = d.NewParamBuilder()
		_, err = store.Exec(ctx, tx, fmt.Sprintf(
			"UPDATE _invites SET status = %s, accepted_at = %s WHERE id = %s",
			pb.Add(InviteAccepted), pb.Add(d.TimeParam(now)), pb.Add(inv.ID)), pb.Params()...)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Invitation accepted: user %s (%s) created as %s", user.ID, user.Email, user.Role)
	return user, nil
}

// ExpirePending marks pending invitations past their expiry as expired.
func (iv *Invites) ExpirePending(ctx context.Context) (int64, error) {
	d := iv.store.Dialect
	pb := d.NewParamBuilder()
	n, err := store.Exec(ctx, iv.store.DB, fmt.Sprintf(
		"UPDATE _invites SET status = %s WHERE status = %s AND expires_at <= %s",
		pb.Add(InviteExpired), pb.Add(InvitePending), pb.Add(d.TimeParam(iv.now().UTC()))), pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("expire invitations: %w", err)
	}
	return n, nil
}
