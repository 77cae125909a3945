package admin

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"tours-backend/internal/auth"
	"tours-backend/internal/engine"
	"tours-backend/internal/store"
)

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin manager member"`
}

type invitationRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Role  string `json:"role" validate:"required,oneof=admin manager member"`
}

// ListUsers handles GET /api/_admin/users
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.UserContext(), h.store.DB,
		"SELECT id, email, role, active, created_at, updated_at FROM _users ORDER BY created_at, email")
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	store.NormalizeBooleans(rows, []string{"active"})
	return c.JSON(fiber.Map{"data": rows})
}

// UpdateUserRole handles PUT /api/_admin/users/:id/role
func (h *Handler) UpdateUserRole(c *fiber.Ctx) error {
	var req roleRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	id := c.Params("id")
	d := h.store.Dialect
	pb := d.NewParamBuilder()
	n, err := store.Exec(c.UserContext(), h.store.DB, fmt.Sprintf(
		"UPDATE _users SET role = %s, updated_at = %s WHERE id = %s",
		pb.Add(req.Role), pb.Add(d.TimeParam(time.Now())), pb.Add(id)), pb.Params()...)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	if n == 0 {
		return engine.NotFoundError("User", id)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "role": req.Role}})
}

// DeleteUser handles DELETE /api/_admin/users/:id. Admins cannot delete themselves.
func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	id := c.Params("id")
	if user := auth.GetUser(c); user != nil && user.ID == id {
		return engine.NewAppError("INVALID_OPERATION", 400, "You cannot delete your own account")
	}

	pb := h.store.Dialect.NewParamBuilder()
	n, err := store.Exec(c.UserContext(), h.store.DB, "DELETE FROM _users WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n == 0 {
		return engine.NotFoundError("User", id)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

// ListInvitations handles GET /api/_admin/invitations?status=pending
func (h *Handler) ListInvitations(c *fiber.Ctx) error {
	invites, err := h.invites.List(c.UserContext(), c.Query("status"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": invites})
}

// SendInvitation handles POST /api/_admin/invitations
func (h *Handler) SendInvitation(c *fiber.Ctx) error {
	var req invitationRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	invitedBy := ""
	if user := auth.GetUser(c); user != nil {
		invitedBy = user.ID
	}
	inv, err := h.invites.Send(c.UserContext(), req.Email, req.Role, invitedBy)
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": inv})
}

// RevokeInvitation handles DELETE /api/_admin/invitations/:id
func (h *Handler) RevokeInvitation(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.invites.Revoke(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "status": auth.InviteRevoked}})
}
