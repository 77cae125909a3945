package admin

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"tours-backend/internal/auth"
	"tours-backend/internal/engine"
	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

// Handler serves the settings API. Every route requires the admin role.
type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	invites  *auth.Invites
	validate *validator.Validate
}

func NewHandler(s *store.Store, reg *metadata.Registry, invites *auth.Invites) *Handler {
	return &Handler{store: s, registry: reg, invites: invites, validate: newValidator()}
}

func RegisterAdminRoutes(r fiber.Router, h *Handler) {
	admin := r.Group("/_admin", auth.RequireAdmin())

	admin.Get("/event-types", h.ListEventTypes)

	admin.Get("/webhooks", h.ListWebhooks)
	admin.Get("/webhooks/:id", h.GetWebhook)
	admin.Post("/webhooks", h.CreateWebhook)
	admin.Put("/webhooks/:id", h.UpdateWebhook)
	admin.Post("/webhooks/:id/toggle", h.ToggleWebhook)
	admin.Delete("/webhooks/:id", h.DeleteWebhook)

	admin.Get("/webhook-logs", h.ListWebhookLogs)

	admin.Get("/users", h.ListUsers)
	admin.Put("/users/:id/role", h.UpdateUserRole)
	admin.Delete("/users/:id", h.DeleteUser)

	admin.Get("/invitations", h.ListInvitations)
	admin.Post("/invitations", h.SendInvitation)
	admin.Delete("/invitations/:id", h.RevokeInvitation)

	admin.Get("/attributes", h.ListAttributes)
	admin.Post("/attributes", h.CreateAttribute)
	admin.Put("/attributes/:id", h.UpdateAttribute)
	admin.Delete("/attributes/:id", h.DeleteAttribute)
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bind parses the JSON body into dst and validates it.
func (h *Handler) bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		details := make([]engine.ErrorDetail, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, engine.ErrorDetail{
				Field:   fe.Field(),
				Rule:    fe.Tag(),
				Message: validationMessage(fe),
			})
		}
		return engine.ValidationError(details)
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// ListEventTypes handles GET /api/_admin/event-types
func (h *Handler) ListEventTypes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": metadata.KnownEventTypes})
}

func notFoundOr(err error, entity, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return engine.NotFoundError(entity, id)
	}
	return err
}
