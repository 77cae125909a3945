package metadata

import (
	"encoding/json"
	"testing"
)

func TestRuleParsing_FieldRule(t *testing.T) {
	raw := `{
		"field": "participants",
		"operator": "min",
		"value": 1,
		"message": "participants must be at least 1"
	}`
	var def RuleDefinition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		t.Fatalf("parse field rule: %v", err)
	}
	if def.Field != "participants" {
		t.Fatalf("expected field=participants, got %s", def.Field)
	}
	if def.Operator != "min" {
		t.Fatalf("expected operator=min, got %s", def.Operator)
	}
	if def.Value != float64(1) {
		t.Fatalf("expected value=1, got %v", def.Value)
	}
}

func TestRuleParsing_ExpressionRule(t *testing.T) {
	raw := `{
		"expression": "record.payment_status == 'paid' && record.total_price <= 0",
		"message": "a paid booking must have a positive total_price",
		"stop_on_fail": true
	}`
	var def RuleDefinition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		t.Fatalf("parse expression rule: %v", err)
	}
	if def.Expression != "record.payment_status == 'paid' && record.total_price <= 0" {
		t.Fatalf("expression mismatch: %s", def.Expression)
	}
	if !def.StopOnFail {
		t.Fatal("expected stop_on_fail=true")
	}
}

func TestBookingsEntity_ExternalIDIsUnique(t *testing.T) {
	e := BookingsEntity()
	f := e.GetField("external_booking_id")
	if f == nil {
		t.Fatal("bookings must have external_booking_id")
	}
	if !f.Unique || !f.Nullable {
		t.Fatalf("external_booking_id must be unique and nullable, got %+v", f)
	}
	for _, w := range e.UpdatableFields() {
		if w.Name == "external_booking_id" || w.Name == "assigned_asset_1" || w.Name == "id" || w.Name == "created_at" {
			t.Fatalf("%s must not be updatable", w.Name)
		}
	}
}

func TestRegistry_HasBuiltInCollections(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{CollectionBookings, CollectionAssets, CollectionWebhookConfigs, CollectionWebhookLogs, CollectionBookingAttributes} {
		if reg.GetEntity(name) == nil {
			t.Fatalf("expected collection %s to be registered", name)
		}
	}
	if !reg.GetEntity(CollectionWebhookLogs).ReadOnly {
		t.Fatal("webhook_logs must be read-only")
	}
}

func TestWebhookConfigFromRow_SQLiteBooleans(t *testing.T) {
	wh := WebhookConfigFromRow(map[string]any{
		"id": "whcfg_1", "name": "Zap", "url": "https://hooks.example/1",
		"event_type": EventBookingCompleted, "is_active": int64(1), "secret_token": nil,
	})
	if !wh.IsActive {
		t.Fatal("expected int64(1) to read as active")
	}
	if wh.SecretToken != "" {
		t.Fatalf("expected empty secret, got %q", wh.SecretToken)
	}
}
