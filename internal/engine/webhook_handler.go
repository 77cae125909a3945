package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
)

// WebhookHandler serves the public automation-platform endpoints. They are
// unauthenticated and answer CORS preflights for any origin.
type WebhookHandler struct {
	ingestor   *Ingestor
	dispatcher *Dispatcher
}

func NewWebhookHandler(ingestor *Ingestor, dispatcher *Dispatcher) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor, dispatcher: dispatcher}
}

// Register mounts both endpoints on every method so that preflights and
// method errors are answered here.
func (h *WebhookHandler) Register(app fiber.Router) {
	fn := app.Group("/functions/v1")
	fn.All("/zapier-incoming", webhookCORS, h.Incoming)
	fn.All("/zapier-outgoing", webhookCORS, h.Outgoing)
}

func webhookCORS(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	switch c.Method() {
	case fiber.MethodOptions:
		c.Set(fiber.HeaderAccessControlAllowMethods, "POST, OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Authorization")
		return c.SendStatus(fiber.StatusOK)
	case fiber.MethodPost:
		return c.Next()
	default:
		return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{"error": "Method not allowed"})
	}
}

// Incoming handles POST /functions/v1/zapier-incoming.
func (h *WebhookHandler) Incoming(c *fiber.Ctx) error {
	var payload map[string]any
	if err := json.Unmarshal(c.Body(), &payload); err != nil || payload == nil {
		if err == nil {
			err = errors.New("body must be a JSON object")
		}
		h.ingestor.RecordMalformed(c.UserContext(), c.Body(), err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid JSON body", "message": err.Error()})
	}

	res, err := h.ingestor.Ingest(c.UserContext(), payload)
	status, body := IngestResponse(res, err)
	if status == fiber.StatusInternalServerError {
		log.Printf("ERROR: booking ingestion failed: %v", err)
	}
	return c.Status(status).JSON(body)
}

// Outgoing handles POST /functions/v1/zapier-outgoing.
func (h *WebhookHandler) Outgoing(c *fiber.Ctx) error {
	req, err := decodeDispatchRequest(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid JSON body", "message": err.Error()})
	}

	report, err := h.dispatcher.Dispatch(c.UserContext(), req)
	status, body := DispatchResponse(report, err)
	if status == fiber.StatusInternalServerError {
		log.Printf("ERROR: webhook dispatch failed: %v", err)
	}
	return c.Status(status).JSON(body)
}

// decodeDispatchRequest accepts scalar ids of any JSON type, so a numeric
// booking_id is looked up like a string one.
func decodeDispatchRequest(body []byte) (DispatchRequest, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return DispatchRequest{}, err
	}
	if raw == nil {
		return DispatchRequest{}, errors.New("body must be a JSON object")
	}
	req := DispatchRequest{
		EventType: stringOr(raw["event_type"], ""),
		BookingID: stringOr(raw["booking_id"], ""),
		UserID:    stringOr(raw["user_id"], ""),
		Action:    stringOr(raw["action"], ""),
	}
	if extra, ok := raw["additional_data"].(map[string]any); ok {
		req.AdditionalData = extra
	}
	return req, nil
}

// DispatchResponse renders the wire status and body for a dispatch outcome.
func DispatchResponse(report *DispatchReport, err error) (int, fiber.Map) {
	if err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) {
			switch appErr.Code {
			case "MISSING_FIELDS":
				return fiber.StatusBadRequest, fiber.Map{"error": "Missing required fields: event_type and booking_id"}
			case "NOT_FOUND":
				return fiber.StatusNotFound, fiber.Map{"error": "Booking not found"}
			}
		}
		return fiber.StatusInternalServerError, fiber.Map{"error": "Internal server error", "message": err.Error()}
	}
	if report.NoSubscribers {
		return fiber.StatusOK, fiber.Map{
			"message":    "No active webhooks configured for this event type",
			"event_type": report.EventType,
		}
	}
	return fiber.StatusOK, fiber.Map{
		"success": true,
		"message": "Webhooks processed",
		"results": report.Results,
	}
}

// dispatchSummary is used in log lines.
func dispatchSummary(r *DispatchReport) string {
	return fmt.Sprintf("%s for %s: %d destinations, %d failed", r.EventType, r.BookingID, len(r.Results), r.Failed())
}
