package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"tours-backend/internal/engine"
	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	store     *store.Store
	invites   *Invites
	jwtSecret string
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(s *store.Store, invites *Invites, jwtSecret string) *AuthHandler {
	return &AuthHandler{store: s, invites: invites, jwtSecret: jwtSecret}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	ctx := c.UserContext()

	user, err := h.findUserByEmail(ctx, NormalizeEmail(body.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.UnauthorizedError("Invalid email or password")
		}
		return err
	}

	if !truthy(user["active"]) {
		return engine.UnauthorizedError("Account is disabled")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	pair, err := h.generateTokenPair(ctx, userFromRow(user))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. The presented token is rotated.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ctx := c.UserContext()
	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.store.DB,
		`SELECT rt.id, rt.user_id, rt.expires_at, u.email, u.role, u.active
		 FROM _refresh_tokens rt
		 JOIN _users u ON u.id = rt.user_id
		 WHERE rt.token = `+pb.Add(body.RefreshToken), pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.UnauthorizedError("Invalid refresh token")
		}
		return err
	}

	// rotation: the token is single use whatever happens next
	tokenID, _ := row["id"].(string)
	pb = h.store.Dialect.NewParamBuilder()
	if _, err := store.Exec(ctx, h.store.DB, "DELETE FROM _refresh_tokens WHERE id = "+pb.Add(tokenID), pb.Params()...); err != nil {
		return err
	}

	expiresAt, _ := row["expires_at"].(time.Time)
	if !time.Now().Before(expiresAt) {
		return engine.UnauthorizedError("Refresh token expired")
	}
	if !truthy(row["active"]) {
		return engine.UnauthorizedError("Account is disabled")
	}

	user := userFromRow(row)
	user.ID, _ = row["user_id"].(string)
	pair, err := h.generateTokenPair(ctx, user)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	pb := h.store.Dialect.NewParamBuilder()
	if _, err := store.Exec(c.UserContext(), h.store.DB,
		"DELETE FROM _refresh_tokens WHERE token = "+pb.Add(body.RefreshToken), pb.Params()...); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := GetUser(c)
	if user == nil {
		return engine.UnauthorizedError("Missing auth token")
	}
	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(c.UserContext(), h.store.DB,
		"SELECT id, email, role, active, created_at FROM _users WHERE id = "+pb.Add(user.ID), pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.UnauthorizedError("User no longer exists")
		}
		return err
	}
	row["active"] = truthy(row["active"])
	return c.JSON(fiber.Map{"data": row})
}

// AcceptInvite handles POST /api/auth/accept-invite and logs the new user in.
func (h *AuthHandler) AcceptInvite(c *fiber.Ctx) error {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	var missing []string
	if body.Token == "" {
		missing = append(missing, "token")
	}
	if body.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return engine.MissingFieldsError(missing)
	}

	ctx := c.UserContext()
	user, err := h.invites.Accept(ctx, body.Token, body.Password)
	if err != nil {
		return err
	}
	pair, err := h.generateTokenPair(ctx, user)
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": fiber.Map{"user": user, "tokens": pair}})
}

// RegisterAuthRoutes registers auth routes on the given router. /me sits
// behind the auth middleware.
func RegisterAuthRoutes(r fiber.Router, h *AuthHandler) {
	auth := r.Group("/api/auth")
	auth.Post("/login", h.Login)
	auth.Post("/refresh", h.Refresh)
	auth.Post("/logout", h.Logout)
	auth.Post("/accept-invite", h.AcceptInvite)
	auth.Get("/me", AuthMiddleware(h.jwtSecret), h.Me)
}

// --- helpers ---

func (h *AuthHandler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	return store.QueryRow(ctx, h.store.DB,
		"SELECT id, email, password_hash, role, active FROM _users WHERE LOWER(email) = "+pb.Add(email), pb.Params()...)
}

func (h *AuthHandler) generateTokenPair(ctx context.Context, user *metadata.UserContext) (*TokenPair, error) {
	accessToken, err := GenerateAccessToken(user, h.jwtSecret)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := GenerateRefreshToken()
	now := time.Now()
	d := h.store.Dialect
	pb := d.NewParamBuilder()
	_, err = store.Exec(ctx, h.store.DB, fmt.Sprintf(
		"INSERT INTO _refresh_tokens (id, user_id, token, expires_at, created_at) VALUES (%s, %s, %s, %s, %s)",
		pb.Add(store.GenerateUUID()), pb.Add(user.ID), pb.Add(refreshToken),
		pb.Add(d.TimeParam(now.Add(RefreshTokenTTL))), pb.Add(d.TimeParam(now))), pb.Params()...)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(AccessTokenTTL.Seconds()),
	}, nil
}

func userFromRow(row map[string]any) *metadata.UserContext {
	u := &metadata.UserContext{}
	u.ID, _ = row["id"].(string)
	u.Email, _ = row["email"].(string)
	u.Role, _ = row["role"].(string)
	return u
}
