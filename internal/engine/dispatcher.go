package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/panics"

	"tours-backend/internal/instrument"
	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

// Deliverer sends one webhook. *DeliveryClient is the production implementation.
type Deliverer interface {
	Deliver(ctx context.Context, url string, payload []byte, secret string) *DeliveryResult
}

type DispatchRequest struct {
	EventType      string         `json:"event_type"`
	BookingID      string         `json:"booking_id"`
	UserID         string         `json:"user_id,omitempty"`
	Action         string         `json:"action,omitempty"`
	AdditionalData map[string]any `json:"additional_data,omitempty"`
}

// DispatchPayload is the body POSTed to every destination of one dispatch.
type DispatchPayload struct {
	EventType   string         `json:"event_type"`
	BookingID   string         `json:"booking_id"`
	BookingData map[string]any `json:"booking_data"`
	Timestamp   string         `json:"timestamp"`
	UserID      string         `json:"user_id,omitempty"`
	Action      string         `json:"action,omitempty"`
}

// DestinationResult is the outcome for one webhook configuration.
type DestinationResult struct {
	WebhookName string `json:"webhook_name"`
	WebhookURL  string `json:"webhook_url"`
	Status      int    `json:"status"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`

	LogID string `json:"-"`
}

type DispatchReport struct {
	EventType     string              `json:"event_type"`
	BookingID     string              `json:"booking_id"`
	NoSubscribers bool                `json:"no_subscribers"`
	Results       []DestinationResult `json:"results"`
}

// Failed counts unsuccessful destinations.
func (r *DispatchReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Success {
			n++
		}
	}
	return n
}

// Dispatcher fans a booking event out to every active webhook configuration
// subscribed to the event type.
type Dispatcher struct {
	store          *store.Store
	client         Deliverer
	audit          *AuditLogger
	maxConcurrency int
	bookings       *metadata.Entity
	configs        *metadata.Entity
	conditions     sync.Map // condition source -> *vm.Program
	now            func() time.Time
}

func NewDispatcher(s *store.Store, client Deliverer, audit *AuditLogger, maxConcurrency int) *Dispatcher {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Dispatcher{
		store:          s,
		client:         client,
		audit:          audit,
		maxConcurrency: maxConcurrency,
		bookings:       metadata.BookingsEntity(),
		configs:        metadata.WebhookConfigsEntity(),
		now:            time.Now,
	}
}

// Dispatch delivers the event for req.BookingID. A missing booking is a
// NOT_FOUND error with no deliveries and no logs. Delivery failures are
// reported per destination, never as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchReport, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "webhook", "dispatcher", "webhook.dispatch")
	defer span.End()
	span.SetMetadata("event_type", req.EventType)
	span.SetEntity(metadata.CollectionBookings, req.BookingID)

	var missing []string
	if req.EventType == "" {
		missing = append(missing, "event_type")
	}
	if req.BookingID == "" {
		missing = append(missing, "booking_id")
	}
	if len(missing) > 0 {
		span.SetStatus("error")
		return nil, MissingFieldsError(missing)
	}

	booking, err := d.store.Get(ctx, d.store.DB, d.bookings, req.BookingID)
	if err != nil {
		span.SetStatus("error")
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError("Booking", req.BookingID)
		}
		return nil, fmt.Errorf("load booking %s: %w", req.BookingID, err)
	}

	subscribers, err := d.resolveSubscribers(ctx, req, booking)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}

	report := &DispatchReport{EventType: req.EventType, BookingID: req.BookingID}
	span.SetMetadata("destinations", len(subscribers))
	if len(subscribers) == 0 {
		report.NoSubscribers = true
		report.Results = []DestinationResult{}
		span.SetStatus("ok")
		return report, nil
	}

	body, err := json.Marshal(BuildDispatchPayload(req, booking, d.now()))
	if err != nil {
		span.SetStatus("error")
		return nil, fmt.Errorf("encode dispatch payload: %w", err)
	}

	mapper := iter.Mapper[*metadata.WebhookConfig, DestinationResult]{MaxGoroutines: d.maxConcurrency}
	report.Results = mapper.Map(subscribers, func(wh **metadata.WebhookConfig) DestinationResult {
		return d.deliverOne(ctx, *wh, req.EventType, body)
	})

	span.SetMetadata("failed", report.Failed())
	span.SetStatus("ok")
	return report, nil
}

// BuildDispatchPayload merges booking, action and additional data into
// booking_data. Additional data wins over booking fields.
func BuildDispatchPayload(req DispatchRequest, booking map[string]any, now time.Time) *DispatchPayload {
	data := make(map[string]any, len(booking)+len(req.AdditionalData)+1)
	for k, v := range booking {
		data[k] = v
	}
	if req.Action != "" {
		data["action"] = req.Action
	}
	for k, v := range req.AdditionalData {
		data[k] = v
	}
	return &DispatchPayload{
		EventType:   req.EventType,
		BookingID:   req.BookingID,
		BookingData: data,
		Timestamp:   now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		UserID:      req.UserID,
		Action:      req.Action,
	}
}

func (d *Dispatcher) resolveSubscribers(ctx context.Context, req DispatchRequest, booking map[string]any) ([]*metadata.WebhookConfig, error) {
	rows, err := d.store.Find(ctx, d.store.DB, d.configs, store.Query{
		Filters: []store.Filter{
			store.Eq("event_type", req.EventType),
			store.Eq("is_active", true),
		},
		Sort: []store.SortField{{Field: "created_at"}, {Field: "id"}},
	})
	if err != nil {
		return nil, fmt.Errorf("resolve webhook configs: %w", err)
	}

	env := map[string]any{
		"booking":    booking,
		"event_type": req.EventType,
		"action":     req.Action,
		"data":       req.AdditionalData,
		"user_id":    req.UserID,
	}

	subscribers := make([]*metadata.WebhookConfig, 0, len(rows))
	for _, row := range rows {
		wh := metadata.WebhookConfigFromRow(row)
		fire, err := d.evaluateCondition(wh, env)
		if err != nil {
			log.Printf("WARN: webhook config %s condition skipped: %v", wh.ID, err)
			continue
		}
		if fire {
			subscribers = append(subscribers, wh)
		}
	}
	return subscribers, nil
}

// evaluateCondition returns true for an empty condition. Programs are cached by source.
func (d *Dispatcher) evaluateCondition(wh *metadata.WebhookConfig, env map[string]any) (bool, error) {
	if wh.Condition == "" {
		return true, nil
	}
	prog, ok := d.conditions.Load(wh.Condition)
	if !ok {
		compiled, err := CompileCondition(wh.Condition)
		if err != nil {
			return false, err
		}
		prog, _ = d.conditions.LoadOrStore(wh.Condition, compiled)
	}
	wh.CompiledCondition = prog

	result, err := expr.Run(prog.(*vm.Program), env)
	if err != nil {
		return false, fmt.Errorf("evaluate webhook condition: %w", err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("webhook condition did not return bool")
	}
	return b, nil
}

// CompileCondition compiles a webhook condition expression.
func CompileCondition(condition string) (*vm.Program, error) {
	prog, err := expr.Compile(condition, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile webhook condition: %w", err)
	}
	return prog, nil
}

// deliverOne delivers to one destination and writes its log row. A panic in
// the delivery is captured into this destination's result only.
func (d *Dispatcher) deliverOne(ctx context.Context, wh *metadata.WebhookConfig, eventType string, body []byte) DestinationResult {
	res := DestinationResult{WebhookName: wh.Name, WebhookURL: wh.URL}
	entry := AuditEntry{WebhookConfigID: wh.ID, EventType: eventType, Payload: string(body)}

	var dr *DeliveryResult
	var pc panics.Catcher
	pc.Try(func() {
		dr = d.client.Deliver(ctx, wh.URL, body, wh.SecretToken)
	})

	switch {
	case pc.Recovered() != nil:
		res.Error = fmt.Sprintf("panic: %v", pc.Recovered().Value)
		entry.ErrorMessage = res.Error
	case dr == nil:
		res.Error = "no delivery result"
		entry.ErrorMessage = res.Error
	case dr.Error != "":
		res.Status = dr.Status
		res.Error = dr.Error
		entry.ResponseStatus = dr.Status
		entry.ErrorMessage = dr.Error
	default:
		res.Status = dr.Status
		res.Success = dr.Success
		entry.ResponseStatus = dr.Status
		entry.ResponseBody = dr.Body
		if !dr.Success {
			entry.ErrorMessage = fmt.Sprintf("HTTP %d", dr.Status)
		}
	}

	res.LogID = d.audit.Record(ctx, entry)
	return res
}
