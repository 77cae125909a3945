package metadata

// Event types emitted by the booking backend. The set is open: configurations
// may subscribe to any string.
const (
	EventBookingStatusChange = "booking_status_change"
	EventBookingCompleted    = "booking_completed"
	EventAssetAssigned       = "asset_assigned"
	EventAssetReturned       = "asset_returned"
	EventPaymentReceived     = "payment_received"
	EventCustomerMessage     = "customer_message"

	// EventBookingIngested tags audit rows written by the incoming ingestor.
	EventBookingIngested = "booking_created_from_zapier"
)

// KnownEventTypes are offered by the settings API as suggestions.
var KnownEventTypes = []string{
	EventBookingStatusChange,
	EventBookingCompleted,
	EventAssetAssigned,
	EventAssetReturned,
	EventPaymentReceived,
	EventCustomerMessage,
}

// WebhookConfig is a registered outbound destination.
type WebhookConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	EventType   string `json:"event_type"`
	IsActive    bool   `json:"is_active"`
	SecretToken string `json:"secret_token,omitempty"`
	Condition   string `json:"condition,omitempty"` // expression; empty = always fire

	CompiledCondition any `json:"-"`
}

// WebhookConfigFromRow builds a WebhookConfig from a record-store row.
func WebhookConfigFromRow(row map[string]any) *WebhookConfig {
	wh := &WebhookConfig{}
	wh.ID, _ = row["id"].(string)
	wh.Name, _ = row["name"].(string)
	wh.URL, _ = row["url"].(string)
	wh.EventType, _ = row["event_type"].(string)
	wh.IsActive = truthy(row["is_active"])
	wh.SecretToken, _ = row["secret_token"].(string)
	wh.Condition, _ = row["condition"].(string)
	return wh
}
