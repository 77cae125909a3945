package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"tours-backend/internal/auth"
	"tours-backend/internal/config"
	"tours-backend/internal/engine"
	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

const testSecret = "admin-test-secret"

type fixture struct {
	store    *store.Store
	registry *metadata.Registry
	app      *fiber.App
	admin    string
	adminID  string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "admin"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx))

	reg := metadata.NewRegistry()
	require.NoError(t, metadata.LoadAttributes(ctx, s.DB, reg))

	row, err := store.QueryRow(ctx, s.DB, "SELECT id FROM _users WHERE email = 'admin@localhost'")
	require.NoError(t, err)
	adminID := row["id"].(string)
	token, err := auth.GenerateAccessToken(&metadata.UserContext{ID: adminID, Email: "admin@localhost", Role: metadata.RoleAdmin}, testSecret)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	api := app.Group("/api", auth.AuthMiddleware(testSecret))
	RegisterAdminRoutes(api, NewHandler(s, reg, auth.NewInvites(s, 24*time.Hour)))

	return &fixture{store: s, registry: reg, app: app, admin: token, adminID: adminID}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (int, string) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func detailFields(body string) map[string]string {
	out := map[string]string{}
	for _, d := range gjson.Get(body, "error.details").Array() {
		out[d.Get("field").String()] = d.Get("rule").String()
	}
	return out
}

func TestAdmin_RequiresAdmin(t *testing.T) {
	f := setup(t)
	manager, _ := auth.GenerateAccessToken(&metadata.UserContext{ID: "m", Role: metadata.RoleManager}, testSecret)

	status, _ := f.do(t, http.MethodGet, "/api/_admin/webhooks", "", nil)
	assert.Equal(t, 401, status)
	status, _ = f.do(t, http.MethodGet, "/api/_admin/webhooks", manager, nil)
	assert.Equal(t, 403, status)
	status, body := f.do(t, http.MethodGet, "/api/_admin/event-types", f.admin, nil)
	assert.Equal(t, 200, status)
	assert.Equal(t, metadata.EventBookingStatusChange, gjson.Get(body, "data.0").String())
}

func TestAdmin_WebhookConfigs(t *testing.T) {
	f := setup(t)

	status, body := f.do(t, http.MethodPost, "/api/_admin/webhooks", f.admin, map[string]any{"name": "CRM", "url": "not a url"})
	require.Equal(t, 422, status, body)
	fields := detailFields(body)
	assert.Equal(t, "http_url", fields["url"])
	assert.Equal(t, "required", fields["event_type"])

	status, body = f.do(t, http.MethodPost, "/api/_admin/webhooks", f.admin, map[string]any{
		"name": "CRM", "url": "https://hooks.example.com/crm", "event_type": "booking_completed",
		"condition": "booking.participants >",
	})
	require.Equal(t, 422, status, body)
	assert.Equal(t, "expression", detailFields(body)["condition"])

	status, body = f.do(t, http.MethodPost, "/api/_admin/webhooks", f.admin, map[string]any{
		"name": "CRM", "url": "https://hooks.example.com/crm", "event_type": "booking_completed",
		"secret_token": "s3cret", "condition": "booking.participants > 4",
	})
	require.Equal(t, 201, status, body)
	id := gjson.Get(body, "data.id").String()
	assert.True(t, gjson.Get(body, "data.is_active").Bool())
	assert.Equal(t, "s3cret", gjson.Get(body, "data.secret_token").String())

	status, body = f.do(t, http.MethodPost, "/api/_admin/webhooks/"+id+"/toggle", f.admin, nil)
	require.Equal(t, 200, status, body)
	assert.False(t, gjson.Get(body, "data.is_active").Bool())

	status, body = f.do(t, http.MethodPut, "/api/_admin/webhooks/"+id, f.admin, map[string]any{"secret_token": "", "name": "CRM v2"})
	require.Equal(t, 200, status, body)
	assert.Equal(t, "CRM v2", gjson.Get(body, "data.name").String())
	assert.Equal(t, gjson.Null, gjson.Get(body, "data.secret_token").Type)
	assert.Equal(t, "booking.participants > 4", gjson.Get(body, "data.condition").String())

	status, body = f.do(t, http.MethodGet, "/api/_admin/webhooks", f.admin, nil)
	require.Equal(t, 200, status)
	assert.Len(t, gjson.Get(body, "data").Array(), 1)

	status, _ = f.do(t, http.MethodDelete, "/api/_admin/webhooks/"+id, f.admin, nil)
	assert.Equal(t, 200, status)
	status, _ = f.do(t, http.MethodGet, "/api/_admin/webhooks/"+id, f.admin, nil)
	assert.Equal(t, 404, status)
	status, _ = f.do(t, http.MethodPut, "/api/_admin/webhooks/"+id, f.admin, map[string]any{"name": "x"})
	assert.Equal(t, 404, status)
}

func TestAdmin_WebhookLogs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	audit := engine.NewAuditLogger(f.store)
	for _, e := range []engine.AuditEntry{
		{WebhookConfigID: "whcfg_a", EventType: "booking_completed", ResponseStatus: 200},
		{WebhookConfigID: "whcfg_b", EventType: "booking_completed", ResponseStatus: 500},
		{EventType: metadata.EventBookingIngested, ResponseStatus: 201},
	} {
		require.NotEmpty(t, audit.Record(ctx, e))
		time.Sleep(2 * time.Millisecond)
	}

	status, body := f.do(t, http.MethodGet, "/api/_admin/webhook-logs", f.admin, nil)
	require.Equal(t, 200, status, body)
	logs := gjson.Get(body, "data").Array()
	require.Len(t, logs, 3)
	assert.Equal(t, metadata.EventBookingIngested, logs[0].Get("event_type").String(), "newest first")

	_, body = f.do(t, http.MethodGet, "/api/_admin/webhook-logs?webhook_config_id=whcfg_b", f.admin, nil)
	require.Len(t, gjson.Get(body, "data").Array(), 1)
	assert.Equal(t, int64(500), gjson.Get(body, "data.0.response_status").Int())

	_, body = f.do(t, http.MethodGet, "/api/_admin/webhook-logs?event_type=booking_completed&limit=1", f.admin, nil)
	assert.Len(t, gjson.Get(body, "data").Array(), 1)
}

func TestAdmin_UsersAndInvitations(t *testing.T) {
	f := setup(t)

	status, body := f.do(t, http.MethodPost, "/api/_admin/invitations", f.admin, map[string]any{"email": "nope", "role": "owner"})
	require.Equal(t, 422, status, body)
	fields := detailFields(body)
	assert.Equal(t, "email", fields["email"])
	assert.Equal(t, "oneof", fields["role"])

	status, body = f.do(t, http.MethodPost, "/api/_admin/invitations", f.admin, map[string]any{"email": "guide@example.com", "role": "manager"})
	require.Equal(t, 201, status, body)
	token := gjson.Get(body, "data.token").String()
	assert.Equal(t, f.adminID, gjson.Get(body, "data.invited_by").String())

	status, _ = f.do(t, http.MethodPost, "/api/_admin/invitations", f.admin, map[string]any{"email": "guide@example.com", "role": "member"})
	assert.Equal(t, 409, status)

	second, _ := f.do(t, http.MethodPost, "/api/_admin/invitations", f.admin, map[string]any{"email": "temp@example.com", "role": "member"})
	require.Equal(t, 201, second)
	_, body = f.do(t, http.MethodGet, "/api/_admin/invitations?status=pending", f.admin, nil)
	require.Len(t, gjson.Get(body, "data").Array(), 2)
	tempID := ""
	for _, inv := range gjson.Get(body, "data").Array() {
		if inv.Get("email").String() == "temp@example.com" {
			tempID = inv.Get("id").String()
		}
	}
	status, _ = f.do(t, http.MethodDelete, "/api/_admin/invitations/"+tempID, f.admin, nil)
	assert.Equal(t, 200, status)

	user, err := auth.NewInvites(f.store, time.Hour).Accept(context.Background(), token, "password123")
	require.NoError(t, err)

	status, body = f.do(t, http.MethodGet, "/api/_admin/users", f.admin, nil)
	require.Equal(t, 200, status)
	require.Len(t, gjson.Get(body, "data").Array(), 2)
	assert.True(t, gjson.Get(body, "data.0.active").Bool())

	status, _ = f.do(t, http.MethodPut, "/api/_admin/users/"+user.ID+"/role", f.admin, map[string]any{"role": "owner"})
	assert.Equal(t, 422, status)
	status, body = f.do(t, http.MethodPut, "/api/_admin/users/"+user.ID+"/role", f.admin, map[string]any{"role": "member"})
	require.Equal(t, 200, status, body)
	status, _ = f.do(t, http.MethodPut, "/api/_admin/users/missing/role", f.admin, map[string]any{"role": "member"})
	assert.Equal(t, 404, status)

	status, _ = f.do(t, http.MethodDelete, "/api/_admin/users/"+f.adminID, f.admin, nil)
	assert.Equal(t, 400, status)
	status, _ = f.do(t, http.MethodDelete, "/api/_admin/users/"+user.ID, f.admin, nil)
	assert.Equal(t, 200, status)
}

func TestAdmin_Attributes(t *testing.T) {
	f := setup(t)
	seeded := len(f.registry.Attributes())

	status, body := f.do(t, http.MethodPost, "/api/_admin/attributes", f.admin, map[string]any{
		"name": "guide_language", "field_type": "select", "label": "Guide language",
		"options": []string{"EN", "DE"}, "default_value": "FR",
	})
	require.Equal(t, 422, status, body)

	status, body = f.do(t, http.MethodPost, "/api/_admin/attributes", f.admin, map[string]any{
		"name": "guide_language", "field_type": "select", "label": "Guide language",
		"options": []string{"EN", "DE"}, "default_value": "EN", "sort_order": 20,
	})
	require.Equal(t, 201, status, body)
	id := gjson.Get(body, "data.id").String()
	assert.Equal(t, `["EN","DE"]`, gjson.Get(body, "data.options").Raw)
	require.Len(t, f.registry.Attributes(), seeded+1)
	assert.NotNil(t, f.registry.GetAttribute("guide_language"))

	status, _ = f.do(t, http.MethodPost, "/api/_admin/attributes", f.admin, map[string]any{
		"name": "guide_language", "field_type": "text", "label": "Dup",
	})
	assert.Equal(t, 409, status)

	status, _ = f.do(t, http.MethodPost, "/api/_admin/attributes", f.admin, map[string]any{
		"name": "status", "field_type": "text", "label": "Collides",
	})
	assert.Equal(t, 422, status)

	status, body = f.do(t, http.MethodPut, "/api/_admin/attributes/"+id, f.admin, map[string]any{
		"field_type": "select", "label": "Language", "options": []string{"EN", "DE", "IT"}, "required": true,
	})
	require.Equal(t, 200, status, body)
	assert.Equal(t, "guide_language", gjson.Get(body, "data.name").String())
	attr := f.registry.GetAttribute("guide_language")
	require.NotNil(t, attr)
	assert.Equal(t, "Language", attr.Label)
	assert.True(t, attr.Required)
	assert.Equal(t, []string{"EN", "DE", "IT"}, attr.Options)

	status, _ = f.do(t, http.MethodDelete, "/api/_admin/attributes/"+id, f.admin, nil)
	assert.Equal(t, 200, status)
	assert.Nil(t, f.registry.GetAttribute("guide_language"))
	status, _ = f.do(t, http.MethodDelete, "/api/_admin/attributes/"+id, f.admin, nil)
	assert.Equal(t, 404, status)
}
