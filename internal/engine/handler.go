package engine

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"tours-backend/internal/metadata"
	"tours-backend/internal/storage"
	"tours-backend/internal/store"
)

type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	attrs    *AttributeValidator
	events   *BookingEvents
	files    storage.FileStorage
}

func NewHandler(s *store.Store, reg *metadata.Registry, events *BookingEvents, files storage.FileStorage) *Handler {
	return &Handler{store: s, registry: reg, attrs: NewAttributeValidator(reg), events: events, files: files}
}

// List handles GET /api/:collection
func (h *Handler) List(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	user := getUser(c)
	if err := CheckPermission(user, entity.Name, ActionRead); err != nil {
		return err
	}

	plan, err := ParseQueryParams(c, entity)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	rows, err := h.store.Find(ctx, h.store.DB, entity, plan.Query)
	if err != nil {
		return fmt.Errorf("list %s: %w", entity.Name, err)
	}
	total, err := h.store.Count(ctx, h.store.DB, entity, plan.Query.Filters)
	if err != nil {
		return fmt.Errorf("count %s: %w", entity.Name, err)
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{
			"page":     plan.Page,
			"per_page": plan.PerPage,
			"total":    total,
		},
	})
}

// GetByID handles GET /api/:collection/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	user := getUser(c)
	if err := CheckPermission(user, entity.Name, ActionRead); err != nil {
		return err
	}

	id := c.Params("id")
	row, err := h.store.Get(c.UserContext(), h.store.DB, entity, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(entity.Name, id))
		}
		return fmt.Errorf("get %s/%s: %w", entity.Name, id, err)
	}

	return c.JSON(fiber.Map{"data": row})
}

// Create handles POST /api/:collection
func (h *Handler) Create(c *fiber.Ctx) error {
	entity, err := h.resolveWritable(c)
	if err != nil {
		return err
	}

	user := getUser(c)
	if err := CheckPermission(user, entity.Name, ActionCreate); err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	ctx := c.UserContext()
	plan, validationErrs, err := PlanWrite(ctx, entity, h.attrs, body, nil)
	if err != nil {
		return err
	}
	if len(validationErrs) > 0 {
		return respondError(c, ValidationError(validationErrs))
	}

	record, err := h.store.Insert(ctx, h.store.DB, entity, plan.Fields)
	if err != nil {
		return handleWriteError(c, err)
	}

	return c.Status(201).JSON(fiber.Map{"data": record})
}

// Update handles PUT /api/:collection/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	entity, err := h.resolveWritable(c)
	if err != nil {
		return err
	}

	user := getUser(c)
	if err := CheckPermission(user, entity.Name, ActionUpdate); err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	ctx := c.UserContext()
	id := c.Params("id")
	var current, record map[string]any

	err = h.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		current, err = h.store.Get(ctx, tx, entity, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return NotFoundError(entity.Name, id)
			}
			return fmt.Errorf("fetch %s/%s: %w", entity.Name, id, err)
		}

		plan, validationErrs, err := PlanWrite(ctx, entity, h.attrs, body, current)
		if err != nil {
			return err
		}
		if len(validationErrs) > 0 {
			return ValidationError(validationErrs)
		}
		if err := checkAssetStatusChange(entity, current, plan.Fields); err != nil {
			return err
		}

		record, err = h.store.Update(ctx, tx, entity, id, plan.Fields)
		return err
	})
	if err != nil {
		return handleWriteError(c, err)
	}

	if entity.Name == metadata.CollectionBookings && h.events != nil {
		h.events.AfterUpdate(ctx, current, record, user)
	}

	return c.JSON(fiber.Map{"data": record})
}

// Delete handles DELETE /api/:collection/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	entity, err := h.resolveWritable(c)
	if err != nil {
		return err
	}

	user := getUser(c)
	if err := CheckPermission(user, entity.Name, ActionDelete); err != nil {
		return err
	}

	ctx := c.UserContext()
	id := c.Params("id")

	err = h.store.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := h.store.Get(ctx, tx, entity, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return NotFoundError(entity.Name, id)
			}
			return fmt.Errorf("fetch %s/%s: %w", entity.Name, id, err)
		}

		switch entity.Name {
		case metadata.CollectionAssets:
			if booking, _ := current["assigned_booking_id"].(string); booking != "" {
				return ConflictError(fmt.Sprintf("Asset %s is assigned to booking %s; release it first", id, booking))
			}
		case metadata.CollectionBookings:
			if err := releaseBookingAssets(ctx, h.store, tx, current); err != nil {
				return err
			}
		}

		if err := h.store.Delete(ctx, tx, entity, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return NotFoundError(entity.Name, id)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return handleWriteError(c, err)
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// checkAssetStatusChange keeps status in-use tied to an assignment.
func checkAssetStatusChange(entity *metadata.Entity, current, changes map[string]any) error {
	if entity.Name != metadata.CollectionAssets {
		return nil
	}
	next, ok := changes["status"].(string)
	if !ok {
		return nil
	}
	if current["status"] == metadata.AssetInUse && next != metadata.AssetInUse {
		return ConflictError(fmt.Sprintf("Asset %v is in use; release it from its booking first", current["id"]))
	}
	return nil
}

func (h *Handler) resolveEntity(c *fiber.Ctx) (*metadata.Entity, error) {
	name := c.Params("collection")
	if !metadata.IsDashboardCollection(name) {
		return nil, UnknownCollectionError(name)
	}
	entity := h.registry.GetEntity(name)
	if entity == nil {
		return nil, UnknownCollectionError(name)
	}
	return entity, nil
}

func (h *Handler) resolveWritable(c *fiber.Ctx) (*metadata.Entity, error) {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return nil, err
	}
	if entity.ReadOnly {
		return nil, NewAppError("READ_ONLY", 405, fmt.Sprintf("Collection %s is read-only", entity.Name))
	}
	return entity, nil
}

func getUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}

func handleWriteError(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return respondError(c, appErr)
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return respondError(c, ConflictError("A record with this value already exists"))
	}
	if errors.Is(err, store.ErrNotFound) {
		return respondError(c, NewAppError("NOT_FOUND", 404, "Record not found"))
	}
	return err
}
