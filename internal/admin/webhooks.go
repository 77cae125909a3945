package admin

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"tours-backend/internal/engine"
	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

type webhookRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	URL         string  `json:"url" validate:"required,http_url"`
	EventType   string  `json:"event_type" validate:"required,max=100"`
	IsActive    *bool   `json:"is_active"`
	SecretToken *string `json:"secret_token"`
	Condition   *string `json:"condition"`
}

type webhookUpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	URL         *string `json:"url" validate:"omitempty,http_url"`
	EventType   *string `json:"event_type" validate:"omitempty,min=1,max=100"`
	IsActive    *bool   `json:"is_active"`
	SecretToken *string `json:"secret_token"`
	Condition   *string `json:"condition"`
}

func checkCondition(cond *string) error {
	if cond == nil || strings.TrimSpace(*cond) == "" {
		return nil
	}
	if _, err := engine.CompileCondition(*cond); err != nil {
		return engine.ValidationError([]engine.ErrorDetail{{Field: "condition", Rule: "expression", Message: err.Error()}})
	}
	return nil
}

// secretValue stores an empty secret as NULL so no signature header is sent.
func secretValue(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// ListWebhooks handles GET /api/_admin/webhooks
func (h *Handler) ListWebhooks(c *fiber.Ctx) error {
	rows, err := h.store.Find(c.UserContext(), h.store.DB, metadata.WebhookConfigsEntity(), store.Query{
		Sort: []store.SortField{{Field: "created_at", Desc: true}, {Field: "id", Desc: true}},
	})
	if err != nil {
		return fmt.Errorf("list webhook configs: %w", err)
	}
	return c.JSON(fiber.Map{"data": rows})
}

// GetWebhook handles GET /api/_admin/webhooks/:id
func (h *Handler) GetWebhook(c *fiber.Ctx) error {
	id := c.Params("id")
	row, err := h.store.Get(c.UserContext(), h.store.DB, metadata.WebhookConfigsEntity(), id)
	if err != nil {
		return notFoundOr(err, "Webhook config", id)
	}
	return c.JSON(fiber.Map{"data": row})
}

// CreateWebhook handles POST /api/_admin/webhooks
func (h *Handler) CreateWebhook(c *fiber.Ctx) error {
	var req webhookRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	if err := checkCondition(req.Condition); err != nil {
		return err
	}

	rec := map[string]any{
		"name":         strings.TrimSpace(req.Name),
		"url":          req.URL,
		"event_type":   req.EventType,
		"is_active":    true,
		"secret_token": secretValue(req.SecretToken),
		"condition":    "",
	}
	if req.IsActive != nil {
		rec["is_active"] = *req.IsActive
	}
	if req.Condition != nil {
		rec["condition"] = strings.TrimSpace(*req.Condition)
	}

	row, err := h.store.Insert(c.UserContext(), h.store.DB, metadata.WebhookConfigsEntity(), rec)
	if err != nil {
		return fmt.Errorf("create webhook config: %w", err)
	}
	return c.Status(201).JSON(fiber.Map{"data": row})
}

// UpdateWebhook handles PUT /api/_admin/webhooks/:id
func (h *Handler) UpdateWebhook(c *fiber.Ctx) error {
	var req webhookUpdateRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	if err := checkCondition(req.Condition); err != nil {
		return err
	}

	changes := map[string]any{}
	if req.Name != nil {
		changes["name"] = strings.TrimSpace(*req.Name)
	}
	if req.URL != nil {
		changes["url"] = *req.URL
	}
	if req.EventType != nil {
		changes["event_type"] = *req.EventType
	}
	if req.IsActive != nil {
		changes["is_active"] = *req.IsActive
	}
	if req.SecretToken != nil {
		changes["secret_token"] = secretValue(req.SecretToken)
	}
	if req.Condition != nil {
		changes["condition"] = strings.TrimSpace(*req.Condition)
	}

	id := c.Params("id")
	row, err := h.store.Update(c.UserContext(), h.store.DB, metadata.WebhookConfigsEntity(), id, changes)
	if err != nil {
		return notFoundOr(err, "Webhook config", id)
	}
	return c.JSON(fiber.Map{"data": row})
}

// ToggleWebhook handles POST /api/_admin/webhooks/:id/toggle
func (h *Handler) ToggleWebhook(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	entity := metadata.WebhookConfigsEntity()

	current, err := h.store.Get(ctx, h.store.DB, entity, id)
	if err != nil {
		return notFoundOr(err, "Webhook config", id)
	}
	active, _ := current["is_active"].(bool)
	row, err := h.store.Update(ctx, h.store.DB, entity, id, map[string]any{"is_active": !active})
	if err != nil {
		return notFoundOr(err, "Webhook config", id)
	}
	return c.JSON(fiber.Map{"data": row})
}

// DeleteWebhook handles DELETE /api/_admin/webhooks/:id. Its log rows are kept.
func (h *Handler) DeleteWebhook(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.store.Delete(c.UserContext(), h.store.DB, metadata.WebhookConfigsEntity(), id); err != nil {
		return notFoundOr(err, "Webhook config", id)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

// ListWebhookLogs handles GET /api/_admin/webhook-logs
func (h *Handler) ListWebhookLogs(c *fiber.Ctx) error {
	q := store.Query{
		Sort:  []store.SortField{{Field: "created_at", Desc: true}, {Field: "id", Desc: true}},
		Limit: defaultLogLimit,
	}
	if v := c.Query("webhook_config_id"); v != "" {
		q.Filters = append(q.Filters, store.Eq("webhook_config_id", v))
	}
	if v := c.Query("event_type"); v != "" {
		q.Filters = append(q.Filters, store.Eq("event_type", v))
	}
	if n := c.QueryInt("limit", defaultLogLimit); n > 0 {
		q.Limit = min(n, maxLogLimit)
	}

	rows, err := h.store.Find(c.UserContext(), h.store.DB, metadata.WebhookLogsEntity(), q)
	if err != nil {
		return fmt.Errorf("list webhook logs: %w", err)
	}
	return c.JSON(fiber.Map{"data": rows})
}
