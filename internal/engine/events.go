package engine

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"tours-backend/internal/metadata"
)

// BookingEvents turns booking and asset changes into outgoing webhook
// dispatches. Dispatch failures are logged and never fail the change that
// triggered them.
type BookingEvents struct {
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewBookingEvents(d *Dispatcher) *BookingEvents {
	return &BookingEvents{dispatcher: d, now: time.Now}
}

// Emit dispatches one event synchronously. The error is returned for callers
// that report it; AfterUpdate and the asset flows only log it.
func (b *BookingEvents) Emit(ctx context.Context, req DispatchRequest) (*DispatchReport, error) {
	report, err := b.dispatcher.Dispatch(ctx, req)
	if err != nil {
		log.Printf("ERROR: dispatch %s for booking %s: %v", req.EventType, req.BookingID, err)
		return nil, err
	}
	if report.Failed() > 0 {
		log.Printf("WARN: webhook dispatch %s", dispatchSummary(report))
	}
	return report, nil
}

func (b *BookingEvents) timestamp() string {
	return b.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// AfterUpdate emits the events implied by a committed booking update.
func (b *BookingEvents) AfterUpdate(ctx context.Context, old, updated map[string]any, user *metadata.UserContext) {
	id, _ := updated["id"].(string)
	userID := ""
	if user != nil {
		userID = user.ID
	}

	oldStatus, _ := old["status"].(string)
	newStatus, _ := updated["status"].(string)
	if oldStatus != newStatus {
		b.Emit(ctx, DispatchRequest{ //nolint:errcheck
			EventType: metadata.EventBookingStatusChange,
			BookingID: id,
			UserID:    userID,
			Action:    "status_updated",
			AdditionalData: map[string]any{
				"old_status": oldStatus,
				"new_status": newStatus,
				"timestamp":  b.timestamp(),
			},
		})
		if metadata.ClassifyStatus(newStatus) == metadata.StatusCompleted &&
			metadata.ClassifyStatus(oldStatus) != metadata.StatusCompleted {
			b.Emit(ctx, DispatchRequest{ //nolint:errcheck
				EventType:      metadata.EventBookingCompleted,
				BookingID:      id,
				UserID:         userID,
				Action:         "booking_completed",
				AdditionalData: map[string]any{"completed_at": b.timestamp()},
			})
		}
	}

	oldPayment, _ := old["payment_status"].(string)
	newPayment, _ := updated["payment_status"].(string)
	if newPayment == "paid" && oldPayment != "paid" {
		b.Emit(ctx, DispatchRequest{ //nolint:errcheck
			EventType: metadata.EventPaymentReceived,
			BookingID: id,
			UserID:    userID,
			Action:    "payment_received",
			AdditionalData: map[string]any{
				"amount":      updated["total_price"],
				"currency":    updated["currency"],
				"received_at": b.timestamp(),
			},
		})
	}
}

// AssetAssigned emits asset_assigned for a committed assignment.
func (b *BookingEvents) AssetAssigned(ctx context.Context, bookingID string, asset map[string]any, userID string) {
	b.Emit(ctx, DispatchRequest{ //nolint:errcheck
		EventType: metadata.EventAssetAssigned,
		BookingID: bookingID,
		UserID:    userID,
		Action:    "asset_assigned",
		AdditionalData: map[string]any{
			"asset_id":    asset["id"],
			"asset_type":  asset["type"],
			"assigned_at": b.timestamp(),
		},
	})
}

// AssetReturned emits asset_returned for a committed release.
func (b *BookingEvents) AssetReturned(ctx context.Context, bookingID string, asset map[string]any, userID string) {
	b.Emit(ctx, DispatchRequest{ //nolint:errcheck
		EventType: metadata.EventAssetReturned,
		BookingID: bookingID,
		UserID:    userID,
		Action:    "asset_returned",
		AdditionalData: map[string]any{
			"asset_id":    asset["id"],
			"asset_type":  asset["type"],
			"returned_at": b.timestamp(),
		},
	})
}

// eventActions are the default actions for events triggered from the dashboard.
var eventActions = map[string]string{
	metadata.EventBookingStatusChange: "status_updated",
	metadata.EventBookingCompleted:    "booking_completed",
	metadata.EventAssetAssigned:       "asset_assigned",
	metadata.EventAssetReturned:       "asset_returned",
	metadata.EventPaymentReceived:     "payment_received",
	metadata.EventCustomerMessage:     "message_received",
}

type triggerRequest struct {
	EventType string         `json:"event_type"`
	Action    string         `json:"action"`
	Data      map[string]any `json:"data"`
}

// TriggerEvent handles POST /api/bookings/:id/events
func (h *Handler) TriggerEvent(c *fiber.Ctx) error {
	user := getUser(c)
	if err := CheckPermission(user, metadata.CollectionBookings, ActionUpdate); err != nil {
		return err
	}

	var req triggerRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}
	if req.EventType == "" {
		return respondError(c, MissingFieldsError([]string{"event_type"}))
	}
	if req.Action == "" {
		req.Action = eventActions[req.EventType]
	}
	data := req.Data
	if req.EventType == metadata.EventCustomerMessage {
		if data == nil {
			data = map[string]any{}
		}
		if _, ok := data["received_at"]; !ok {
			data["received_at"] = h.events.timestamp()
		}
	}

	report, err := h.events.Emit(c.UserContext(), DispatchRequest{
		EventType:      req.EventType,
		BookingID:      c.Params("id"),
		UserID:         userID(user),
		Action:         req.Action,
		AdditionalData: data,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}
