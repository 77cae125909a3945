package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"tours-backend/internal/engine"
	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

type attributeFields struct {
	FieldType    string   `json:"field_type" validate:"required,oneof=text number email phone date datetime textarea select boolean"`
	Label        string   `json:"label" validate:"required,max=100"`
	Required     bool     `json:"required"`
	Placeholder  string   `json:"placeholder" validate:"max=200"`
	Options      []string `json:"options" validate:"omitempty,unique,dive,required,max=100"`
	DefaultValue *string  `json:"default_value"`
	Description  string   `json:"description"`
	SortOrder    int      `json:"sort_order" validate:"gte=0"`
}

type attributeRequest struct {
	Name string `json:"name" validate:"required,max=63"`
	attributeFields
}

func (f attributeFields) apply(a *metadata.BookingAttribute) {
	a.FieldType = f.FieldType
	a.Label = f.Label
	a.Required = f.Required
	a.Placeholder = f.Placeholder
	a.Options = f.Options
	a.DefaultValue = f.DefaultValue
	a.Description = f.Description
	a.SortOrder = f.SortOrder
}

func definitionError(err error) error {
	return engine.ValidationError([]engine.ErrorDetail{{Rule: "definition", Message: err.Error()}})
}

func (h *Handler) reloadAttributes(ctx context.Context) error {
	if err := metadata.LoadAttributes(ctx, h.store.DB, h.registry); err != nil {
		return fmt.Errorf("reload booking attributes: %w", err)
	}
	return nil
}

// ListAttributes handles GET /api/_admin/attributes
func (h *Handler) ListAttributes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.registry.Attributes()})
}

// CreateAttribute handles POST /api/_admin/attributes
func (h *Handler) CreateAttribute(c *fiber.Ctx) error {
	var req attributeRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	a := &metadata.BookingAttribute{Name: req.Name}
	req.apply(a)
	if err := a.Validate(); err != nil {
		return definitionError(err)
	}

	ctx := c.UserContext()
	row, err := h.store.Insert(ctx, h.store.DB, metadata.BookingAttributesEntity(), a.ToRecord())
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return engine.ConflictError(fmt.Sprintf("Attribute %s already exists", a.Name))
		}
		return fmt.Errorf("create booking attribute: %w", err)
	}
	if err := h.reloadAttributes(ctx); err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": metadata.AttributeFromRow(row)})
}

// UpdateAttribute handles PUT /api/_admin/attributes/:id. The name is fixed
// once created since stored booking values are keyed by it.
func (h *Handler) UpdateAttribute(c *fiber.Ctx) error {
	var req attributeFields
	if err := h.bind(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	id := c.Params("id")
	entity := metadata.BookingAttributesEntity()
	current, err := h.store.Get(ctx, h.store.DB, entity, id)
	if err != nil {
		return notFoundOr(err, "Attribute", id)
	}

	a := metadata.AttributeFromRow(current)
	req.apply(a)
	if err := a.Validate(); err != nil {
		return definitionError(err)
	}

	rec := a.ToRecord()
	delete(rec, "id")
	delete(rec, "name")
	row, err := h.store.Update(ctx, h.store.DB, entity, id, rec)
	if err != nil {
		return notFoundOr(err, "Attribute", id)
	}
	if err := h.reloadAttributes(ctx); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": metadata.AttributeFromRow(row)})
}

// DeleteAttribute handles DELETE /api/_admin/attributes/:id. Values already
// stored on bookings are left in place.
func (h *Handler) DeleteAttribute(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	if err := h.store.Delete(ctx, h.store.DB, metadata.BookingAttributesEntity(), id); err != nil {
		return notFoundOr(err, "Attribute", id)
	}
	if err := h.reloadAttributes(ctx); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}
