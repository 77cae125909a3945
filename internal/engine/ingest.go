package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc/panics"

	"tours-backend/internal/config"
	"tours-backend/internal/instrument"
	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

// IngestRequiredFields must be present and truthy on every pushed booking.
var IngestRequiredFields = []string{
	"external_booking_id",
	"customer_name",
	"customer_email",
	"tour_name",
	"tour_date",
	"participants",
	"total_price",
}

type IngestResult struct {
	BookingID string
	Booking   map[string]any
}

// Ingestor creates bookings pushed by the automation platform. Each external
// booking id is accepted once.
type Ingestor struct {
	store    *store.Store
	audit    *AuditLogger
	cfg      config.IngestConfig
	bookings *metadata.Entity
	now      func() time.Time
}

func NewIngestor(s *store.Store, audit *AuditLogger, cfg config.IngestConfig) *Ingestor {
	return &Ingestor{
		store:    s,
		audit:    audit,
		cfg:      cfg,
		bookings: metadata.BookingsEntity(),
		now:      time.Now,
	}
}

// Ingest validates, deduplicates and stores payload. Every outcome, including
// failures, writes one audit row tagged booking_created_from_zapier.
func (i *Ingestor) Ingest(ctx context.Context, payload map[string]any) (*IngestResult, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "webhook", "ingestor", "webhook.ingest")
	defer span.End()

	var res *IngestResult
	var err error
	var pc panics.Catcher
	pc.Try(func() {
		res, err = i.ingest(ctx, payload)
	})
	if r := pc.Recovered(); r != nil {
		err = InternalError(fmt.Errorf("%v", r.Value))
	}

	status, body := IngestResponse(res, err)
	entry := AuditEntry{
		EventType:      metadata.EventBookingIngested,
		Payload:        encodeAuditPayload(payload),
		ResponseStatus: status,
	}
	if err != nil {
		entry.ErrorMessage = ingestErrorMessage(err)
		if status != 500 {
			entry.ResponseBody = encodeAuditPayload(body)
		}
		span.SetStatus("error")
	} else {
		entry.ResponseBody = encodeAuditPayload(map[string]any{"success": true, "booking_id": res.BookingID})
		span.SetEntity(metadata.CollectionBookings, res.BookingID)
		span.SetStatus("ok")
	}
	span.SetMetadata("status_code", status)
	i.audit.Record(ctx, entry)

	return res, err
}

func (i *Ingestor) ingest(ctx context.Context, payload map[string]any) (*IngestResult, error) {
	var missing []string
	for _, f := range IngestRequiredFields {
		if isFalsy(payload[f]) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, MissingFieldsError(missing)
	}

	externalID := scalarString(payload["external_booking_id"])
	existing, err := i.store.FindOne(ctx, i.store.DB, i.bookings, store.Eq("external_booking_id", externalID))
	if err == nil {
		return nil, ResourceConflictError("Booking already exists", fmt.Sprint(existing["id"]))
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, InternalError(err)
	}

	record, details := i.buildBooking(externalID, payload)
	if len(details) > 0 {
		appErr := ValidationError(details)
		appErr.Status = 400
		return nil, appErr
	}

	created, err := i.store.Insert(ctx, i.store.DB, i.bookings, record)
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			// a concurrent submission won the race on the external id
			winner, findErr := i.store.FindOne(ctx, i.store.DB, i.bookings, store.Eq("external_booking_id", externalID))
			if findErr == nil {
				return nil, ResourceConflictError("Booking already exists", fmt.Sprint(winner["id"]))
			}
		}
		return nil, InternalError(err)
	}

	id, _ := created["id"].(string)
	return &IngestResult{BookingID: id, Booking: created}, nil
}

func (i *Ingestor) buildBooking(externalID string, payload map[string]any) (map[string]any, []ErrorDetail) {
	var details []ErrorDetail
	now := i.now().UTC()

	participants, ok := toInt64(payload["participants"])
	if !ok || participants < 1 {
		details = append(details, ErrorDetail{Field: "participants", Rule: "min", Message: "participants must be a positive integer"})
	}
	price, ok := toFloat64(payload["total_price"])
	if !ok || price < 0 {
		details = append(details, ErrorDetail{Field: "total_price", Rule: "min", Message: "total_price must be a non-negative number"})
	}

	createdAt := now
	if !isFalsy(payload["created_at"]) {
		t, ok := parseClientTime(scalarString(payload["created_at"]))
		if !ok {
			details = append(details, ErrorDetail{Field: "created_at", Rule: "format", Message: "created_at must be an ISO 8601 timestamp"})
		}
		createdAt = t
	}

	return map[string]any{
		"id":                   store.NewID(i.bookings.IDPrefix),
		"external_booking_id":  externalID,
		"customer_name":        scalarString(payload["customer_name"]),
		"customer_email":       scalarString(payload["customer_email"]),
		"customer_phone":       stringOr(payload["customer_phone"], ""),
		"tour_name":            scalarString(payload["tour_name"]),
		"tour_date":            scalarString(payload["tour_date"]),
		"tour_time":            stringOr(payload["tour_time"], i.cfg.DefaultTourTime),
		"participants":         participants,
		"total_price":          price,
		"currency":             stringOr(payload["currency"], i.cfg.DefaultCurrency),
		"status":               stringOr(payload["status"], "confirmed"),
		"payment_status":       stringOr(payload["payment_status"], "paid"),
		"special_requirements": stringOr(payload["special_requirements"], ""),
		"pickup_location":      stringOr(payload["pickup_location"], ""),
		"booking_platform":     stringOr(payload["booking_platform"], ""),
		"webhook_source":       i.cfg.Source,
		"created_at":           createdAt,
		"updated_at":           now,
	}, details
}

// IngestResponse renders the wire status and body for an ingestion outcome.
func IngestResponse(res *IngestResult, err error) (int, map[string]any) {
	if err == nil {
		return 201, map[string]any{
			"success":    true,
			"message":    "Booking created successfully",
			"booking_id": res.BookingID,
			"booking":    res.Booking,
		}
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return 500, map[string]any{"error": "Internal server error", "message": err.Error()}
	}
	switch {
	case appErr.Code == "MISSING_FIELDS":
		return 400, map[string]any{"error": "Missing required fields", "missing": appErr.Missing}
	case appErr.Status == 409:
		return 409, map[string]any{"error": appErr.Message, "booking_id": appErr.ResourceID}
	case appErr.Status == 400:
		return 400, map[string]any{"error": "Invalid field values", "details": appErr.Details}
	default:
		return 500, map[string]any{"error": "Internal server error", "message": appErr.Message}
	}
}

func ingestErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == "MISSING_FIELDS" {
		return "Missing required fields: " + strings.Join(appErr.Missing, ", ")
	}
	return err.Error()
}

func encodeAuditPayload(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// isFalsy treats absent, null, empty string, zero and false alike.
func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0 || math.IsNaN(t)
	case int:
		return t == 0
	case int64:
		return t == 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	}
	return false
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(v)
}

func stringOr(v any, def string) string {
	if isFalsy(v) {
		return def
	}
	return scalarString(v)
}

func toInt64(v any) (int64, bool) {
	f, ok := toFloat64(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

func parseClientTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// RecordMalformed audits a request whose body could not be decoded.
func (i *Ingestor) RecordMalformed(ctx context.Context, raw []byte, err error) {
	i.audit.Record(ctx, AuditEntry{
		EventType:      metadata.EventBookingIngested,
		Payload:        string(raw),
		ResponseStatus: 400,
		ErrorMessage:   "invalid JSON body: " + err.Error(),
	})
}
