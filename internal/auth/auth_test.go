package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"tours-backend/internal/config"
	"tours-backend/internal/engine"
	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

const testSecret = "test-secret"

func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "auth"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx))
	return s
}

func testApp(s *store.Store, invites *Invites) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	RegisterAuthRoutes(app, NewAuthHandler(s, invites, testSecret))
	protected := app.Group("/api/protected", AuthMiddleware(testSecret))
	protected.Get("/managers", RequireRole(metadata.RoleManager), func(c *fiber.Ctx) error { return c.SendStatus(204) })
	protected.Get("/admins", RequireAdmin(), func(c *fiber.Ctx) error { return c.SendStatus(204) })
	return app
}

func post(t *testing.T, app *fiber.App, path string, body any) (int, string) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func get(t *testing.T, app *fiber.App, path, token string) (int, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func appErrStatus(t *testing.T, err error) int {
	t.Helper()
	var appErr *engine.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.Status
}

func TestAccessToken_RoundTrip(t *testing.T) {
	user := &metadata.UserContext{ID: "u1", Email: "a@example.com", Role: metadata.RoleManager}
	tok, err := GenerateAccessToken(user, testSecret)
	require.NoError(t, err)

	claims, err := ParseAccessToken(tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, metadata.RoleManager, claims.Role)
	assert.WithinDuration(t, time.Now().Add(AccessTokenTTL), claims.ExpiresAt.Time, 5*time.Second)

	_, err = ParseAccessToken(tok, "other-secret")
	assert.Error(t, err)

	bad, err := GenerateAccessToken(&metadata.UserContext{ID: "u2", Role: "owner"}, testSecret)
	require.NoError(t, err)
	_, err = ParseAccessToken(bad, testSecret)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword("correct horse", hash))
	assert.False(t, CheckPassword("battery staple", hash))
}

func TestLoginRefreshLogout(t *testing.T) {
	s := testStore(t)
	app := testApp(s, NewInvites(s, time.Hour))

	status, _ := post(t, app, "/api/auth/login", map[string]string{"email": "admin@localhost", "password": "wrong"})
	assert.Equal(t, 401, status)

	status, body := post(t, app, "/api/auth/login", map[string]string{"email": "Admin@Localhost", "password": "changeme"})
	require.Equal(t, 200, status, body)
	access := gjson.Get(body, "data.access_token").String()
	refresh := gjson.Get(body, "data.refresh_token").String()
	require.NotEmpty(t, access)
	assert.Equal(t, int64(900), gjson.Get(body, "data.expires_in").Int())

	status, body = get(t, app, "/api/auth/me", access)
	require.Equal(t, 200, status, body)
	assert.Equal(t, "admin@localhost", gjson.Get(body, "data.email").String())
	assert.Equal(t, metadata.RoleAdmin, gjson.Get(body, "data.role").String())

	status, body = post(t, app, "/api/auth/refresh", map[string]string{"refresh_token": refresh})
	require.Equal(t, 200, status, body)
	rotated := gjson.Get(body, "data.refresh_token").String()
	assert.NotEqual(t, refresh, rotated)

	status, _ = post(t, app, "/api/auth/refresh", map[string]string{"refresh_token": refresh})
	assert.Equal(t, 401, status, "a rotated refresh token is single use")

	status, _ = post(t, app, "/api/auth/logout", map[string]string{"refresh_token": rotated})
	assert.Equal(t, 200, status)
	status, _ = post(t, app, "/api/auth/refresh", map[string]string{"refresh_token": rotated})
	assert.Equal(t, 401, status)
}

func TestMiddleware_Roles(t *testing.T) {
	s := testStore(t)
	app := testApp(s, NewInvites(s, time.Hour))

	status, _ := get(t, app, "/api/protected/managers", "")
	assert.Equal(t, 401, status)
	status, _ = get(t, app, "/api/protected/managers", "garbage")
	assert.Equal(t, 401, status)

	member, _ := GenerateAccessToken(&metadata.UserContext{ID: "m", Role: metadata.RoleMember}, testSecret)
	manager, _ := GenerateAccessToken(&metadata.UserContext{ID: "g", Role: metadata.RoleManager}, testSecret)
	admin, _ := GenerateAccessToken(&metadata.UserContext{ID: "a", Role: metadata.RoleAdmin}, testSecret)

	status, _ = get(t, app, "/api/protected/managers", member)
	assert.Equal(t, 403, status)
	status, _ = get(t, app, "/api/protected/managers", manager)
	assert.Equal(t, 204, status)
	status, _ = get(t, app, "/api/protected/managers", admin)
	assert.Equal(t, 204, status)
	status, _ = get(t, app, "/api/protected/admins", manager)
	assert.Equal(t, 403, status)
	status, _ = get(t, app, "/api/protected/admins", admin)
	assert.Equal(t, 204, status)
}

func TestInvites_SendRejectsDuplicates(t *testing.T) {
	s := testStore(t)
	iv := NewInvites(s, time.Hour)
	ctx := context.Background()

	inv, err := iv.Send(ctx, " Guide@Example.com ", metadata.RoleManager, "admin")
	require.NoError(t, err)
	assert.Equal(t, "guide@example.com", inv.Email)
	assert.Equal(t, InvitePending, inv.Status)
	assert.Regexp(t, `^inv_[0-9a-f]{64}$`, inv.Token)

	_, err = iv.Send(ctx, "guide@example.com", metadata.RoleMember, "admin")
	assert.Equal(t, 409, appErrStatus(t, err))

	_, err = iv.Send(ctx, "admin@localhost", metadata.RoleMember, "admin")
	assert.Equal(t, 409, appErrStatus(t, err))

	_, err = iv.Send(ctx, "new@example.com", "owner", "admin")
	assert.Equal(t, 422, appErrStatus(t, err))

	// an expired pending invitation no longer blocks a new one
	iv.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = iv.Send(ctx, "guide@example.com", metadata.RoleMember, "admin")
	assert.NoError(t, err)
}

func TestInvites_AcceptFlow(t *testing.T) {
	s := testStore(t)
	iv := NewInvites(s, time.Hour)
	app := testApp(s, iv)
	ctx := context.Background()

	inv, err := iv.Send(ctx, "crew@example.com", metadata.RoleMember, "admin")
	require.NoError(t, err)

	status, _ := post(t, app, "/api/auth/accept-invite", map[string]string{"token": inv.Token, "password": "short"})
	assert.Equal(t, 422, status)

	status, body := post(t, app, "/api/auth/accept-invite", map[string]string{"token": inv.Token, "password": "long enough"})
	require.Equal(t, 201, status, body)
	assert.Equal(t, metadata.RoleMember, gjson.Get(body, "data.user.role").String())
	assert.NotEmpty(t, gjson.Get(body, "data.tokens.access_token").String())

	status, body = post(t, app, "/api/auth/accept-invite", map[string]string{"token": inv.Token, "password": "long enough"})
	assert.Equal(t, 400, status)
	assert.Equal(t, "Invitation is accepted", gjson.Get(body, "error.message").String())

	status, _ = post(t, app, "/api/auth/login", map[string]string{"email": "crew@example.com", "password": "long enough"})
	assert.Equal(t, 200, status)

	list, err := iv.List(ctx, InviteAccepted)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].AcceptedAt)
}

func TestInvites_ExpiryAndRevoke(t *testing.T) {
	s := testStore(t)
	iv := NewInvites(s, time.Hour)
	ctx := context.Background()

	late, err := iv.Send(ctx, "late@example.com", metadata.RoleMember, "admin")
	require.NoError(t, err)
	revoked, err := iv.Send(ctx, "gone@example.com", metadata.RoleMember, "admin")
	require.NoError(t, err)

	require.NoError(t, iv.Revoke(ctx, revoked.ID))
	assert.Equal(t, 404, appErrStatus(t, iv.Revoke(ctx, revoked.ID)))

	iv.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = iv.Accept(ctx, late.Token, "long enough")
	assert.Equal(t, 400, appErrStatus(t, err))

	sw := NewSweeper(s, iv, time.Hour)
	expired, _, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	list, err := iv.List(ctx, "")
	require.NoError(t, err)
	statuses := map[string]string{}
	for _, inv := range list {
		statuses[inv.Email] = inv.Status
	}
	assert.Equal(t, InviteExpired, statuses["late@example.com"])
	assert.Equal(t, InviteRevoked, statuses["gone@example.com"])
}

func TestSweeper_DeletesExpiredRefreshTokens(t *testing.T) {
	s := testStore(t)
	iv := NewInvites(s, time.Hour)
	app := testApp(s, iv)

	status, _ := post(t, app, "/api/auth/login", map[string]string{"email": "admin@localhost", "password": "changeme"})
	require.Equal(t, 200, status)

	sw := NewSweeper(s, iv, time.Hour)
	_, tokens, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, tokens)

	iv.now = func() time.Time { return time.Now().Add(RefreshTokenTTL + time.Minute) }
	_, tokens, err = sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), tokens)
}

func TestSweeper_StartStop(t *testing.T) {
	s := testStore(t)
	sw := NewSweeper(s, NewInvites(s, time.Hour), time.Hour)
	require.NoError(t, sw.Start())
	sw.Stop()
}
