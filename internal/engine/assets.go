package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

// An asset is in-use exactly when assigned_booking_id names a booking whose
// slot holds the asset. Assign and Release change both sides in one transaction.

type assignRequest struct {
	Slot    int    `json:"slot"`
	AssetID string `json:"asset_id"`
}

func slotField(slot int) (string, bool) {
	if slot < 1 || slot > len(metadata.BookingAssetSlots) {
		return "", false
	}
	return metadata.BookingAssetSlots[slot-1], true
}

func invalidSlotError(slot string) *AppError {
	return ValidationError([]ErrorDetail{{
		Field:   "slot",
		Rule:    "enum",
		Message: fmt.Sprintf("slot must be between 1 and %d, got %s", len(metadata.BookingAssetSlots), slot),
	}})
}

// AssignAsset handles POST /api/bookings/:id/assets
func (h *Handler) AssignAsset(c *fiber.Ctx) error {
	user := getUser(c)
	if err := CheckPermission(user, metadata.CollectionBookings, ActionUpdate); err != nil {
		return err
	}

	var req assignRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}
	field, ok := slotField(req.Slot)
	if !ok {
		return respondError(c, invalidSlotError(fmt.Sprint(req.Slot)))
	}
	if req.AssetID == "" {
		return respondError(c, MissingFieldsError([]string{"asset_id"}))
	}

	ctx := c.UserContext()
	bookingID := c.Params("id")
	bookings := metadata.BookingsEntity()
	assets := metadata.AssetsEntity()

	var booking, asset, released map[string]any
	unchanged := false
	err := h.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		booking, err = h.store.Get(ctx, tx, bookings, bookingID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return NotFoundError("Booking", bookingID)
			}
			return err
		}
		asset, err = h.store.Get(ctx, tx, assets, req.AssetID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return NotFoundError("Asset", req.AssetID)
			}
			return err
		}

		holder, _ := asset["assigned_booking_id"].(string)
		switch {
		case holder == bookingID:
			if booking[field] == req.AssetID {
				unchanged = true
				return nil
			}
		case holder != "":
			return ConflictError(fmt.Sprintf("Asset %s is assigned to booking %s", req.AssetID, holder))
		case asset["status"] != metadata.AssetAvailable:
			return ConflictError(fmt.Sprintf("Asset %s is %v", req.AssetID, asset["status"]))
		}

		changes := map[string]any{field: req.AssetID}
		// moving between slots of the same booking empties the old slot
		for _, other := range metadata.BookingAssetSlots {
			if other != field && booking[other] == req.AssetID {
				changes[other] = nil
			}
		}
		if prev, _ := booking[field].(string); prev != "" && prev != req.AssetID {
			released, err = releaseAsset(ctx, h.store, tx, prev)
			if err != nil {
				return err
			}
		}

		booking, err = h.store.Update(ctx, tx, bookings, bookingID, changes)
		if err != nil {
			return err
		}
		asset, err = h.store.Update(ctx, tx, assets, req.AssetID, map[string]any{
			"status":              metadata.AssetInUse,
			"assigned_booking_id": bookingID,
		})
		return err
	})
	if err != nil {
		return handleWriteError(c, err)
	}

	if h.events != nil && !unchanged {
		if released != nil {
			h.events.AssetReturned(ctx, bookingID, released, userID(user))
		}
		h.events.AssetAssigned(ctx, bookingID, asset, userID(user))
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"booking": booking, "asset": asset}})
}

// ReleaseAsset handles DELETE /api/bookings/:id/assets/:slot
func (h *Handler) ReleaseAsset(c *fiber.Ctx) error {
	user := getUser(c)
	if err := CheckPermission(user, metadata.CollectionBookings, ActionUpdate); err != nil {
		return err
	}

	slot, err := c.ParamsInt("slot")
	field, ok := slotField(slot)
	if err != nil || !ok {
		return respondError(c, invalidSlotError(c.Params("slot")))
	}

	ctx := c.UserContext()
	bookingID := c.Params("id")
	bookings := metadata.BookingsEntity()

	var booking, released map[string]any
	err = h.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		booking, err = h.store.Get(ctx, tx, bookings, bookingID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return NotFoundError("Booking", bookingID)
			}
			return err
		}
		assetID, _ := booking[field].(string)
		if assetID == "" {
			return ConflictError(fmt.Sprintf("Slot %d of booking %s is empty", slot, bookingID))
		}
		if released, err = releaseAsset(ctx, h.store, tx, assetID); err != nil {
			return err
		}
		booking, err = h.store.Update(ctx, tx, bookings, bookingID, map[string]any{field: nil})
		return err
	})
	if err != nil {
		return handleWriteError(c, err)
	}

	if h.events != nil && released != nil {
		h.events.AssetReturned(ctx, bookingID, released, userID(user))
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"booking": booking, "asset": released}})
}

// releaseAsset marks the asset available. A missing asset is not an error.
func releaseAsset(ctx context.Context, s *store.Store, tx *sql.Tx, assetID string) (map[string]any, error) {
	asset, err := s.Update(ctx, tx, metadata.AssetsEntity(), assetID, map[string]any{
		"status":              metadata.AssetAvailable,
		"assigned_booking_id": nil,
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("release asset %s: %w", assetID, err)
	}
	return asset, nil
}

// releaseBookingAssets frees every asset held by booking, before it is deleted.
func releaseBookingAssets(ctx context.Context, s *store.Store, tx *sql.Tx, booking map[string]any) error {
	for _, field := range metadata.BookingAssetSlots {
		if assetID, _ := booking[field].(string); assetID != "" {
			if _, err := releaseAsset(ctx, s, tx, assetID); err != nil {
				return err
			}
		}
	}
	return nil
}

func userID(u *metadata.UserContext) string {
	if u == nil {
		return ""
	}
	return u.ID
}
