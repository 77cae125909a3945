package metadata

// Collection names.
const (
	CollectionBookings          = "bookings"
	CollectionAssets            = "assets"
	CollectionWebhookConfigs    = "webhook_configs"
	CollectionWebhookLogs       = "webhook_logs"
	CollectionBookingAttributes = "booking_attributes"
)

// DashboardCollections are served by the generic /api/:collection routes.
// webhook_logs is exposed read-only; the remaining collections are managed
// through the admin API.
var DashboardCollections = []string{CollectionBookings, CollectionAssets, CollectionWebhookLogs}

// IsDashboardCollection reports whether name is served by the generic routes.
func IsDashboardCollection(name string) bool {
	for _, c := range DashboardCollections {
		if c == name {
			return true
		}
	}
	return false
}

// Asset statuses. An asset is in-use exactly when it references a booking.
const (
	AssetAvailable   = "available"
	AssetInUse       = "in-use"
	AssetMaintenance = "maintenance"
	AssetRetired     = "retired"
)

var AssetStatuses = []string{AssetAvailable, AssetInUse, AssetMaintenance, AssetRetired}

// BookingAssetSlots are the booking columns that reference assigned assets.
var BookingAssetSlots = []string{"assigned_asset_1", "assigned_asset_2"}

func timestamps() []Field {
	return []Field{
		{Name: "created_at", Type: "timestamp", Auto: "create"},
		{Name: "updated_at", Type: "timestamp", Auto: "update"},
	}
}

func stringPK() PrimaryKey {
	return PrimaryKey{Field: "id", Type: "string"}
}

// BookingsEntity is the bookings collection. The unique external_booking_id
// index is what makes ingestion idempotent under concurrent submissions.
func BookingsEntity() *Entity {
	fields := []Field{
		{Name: "id", Type: "string", Required: true},
		{Name: "external_booking_id", Type: "string", Unique: true, Nullable: true, Immutable: true},
		{Name: "customer_name", Type: "string", Required: true},
		{Name: "customer_email", Type: "string", Required: true},
		{Name: "customer_phone", Type: "string", Default: ""},
		{Name: "tour_name", Type: "string", Required: true},
		{Name: "tour_date", Type: "string", Required: true},
		{Name: "tour_time", Type: "string", Default: "09:00"},
		{Name: "participants", Type: "int", Required: true},
		{Name: "total_price", Type: "decimal", Precision: 2, Required: true},
		{Name: "currency", Type: "string", Default: "EUR"},
		{Name: "status", Type: "string", Default: "pending"},
		{Name: "payment_status", Type: "string", Default: "pending"},
		{Name: "booking_platform", Type: "string", Default: ""},
		{Name: "webhook_source", Type: "string", Nullable: true, Immutable: true},
		{Name: "special_requirements", Type: "text", Default: ""},
		{Name: "pickup_location", Type: "string", Default: ""},
		{Name: "assigned_asset_1", Type: "string", Nullable: true, Immutable: true},
		{Name: "assigned_asset_2", Type: "string", Nullable: true, Immutable: true},
		{Name: "attributes", Type: "json", Nullable: true},
	}
	return &Entity{
		Name:       CollectionBookings,
		Table:      "bookings",
		PrimaryKey: stringPK(),
		IDPrefix:   "booking",
		Fields:     append(fields, timestamps()...),
		Rules: []*Rule{
			{Type: "field", Definition: RuleDefinition{Field: "participants", Operator: "min", Value: float64(1), Message: "participants must be at least 1"}},
			{Type: "field", Definition: RuleDefinition{Field: "total_price", Operator: "min", Value: float64(0), Message: "total_price must not be negative"}},
			{Type: "field", Definition: RuleDefinition{Field: "customer_email", Operator: "pattern", Value: `^[^\s@]+@[^\s@]+\.[^\s@]+$`, Message: "customer_email must be a valid email address"}},
			{Type: "field", Definition: RuleDefinition{Field: "currency", Operator: "pattern", Value: `^[A-Z]{3}$`, Message: "currency must be a 3-letter ISO code"}},
			{Type: "expression", Definition: RuleDefinition{
				Expression: `record.payment_status == "paid" && float(record.total_price ?? 0) <= 0`,
				Message:    "a paid booking must have a positive total_price",
			}},
		},
	}
}

// AssetsEntity is the rental equipment collection. status and
// assigned_booking_id only change together through the assignment flow.
func AssetsEntity() *Entity {
	fields := []Field{
		{Name: "id", Type: "string", Required: true},
		{Name: "name", Type: "string", Required: true},
		{Name: "type", Type: "string", Required: true},
		{Name: "brand", Type: "string", Default: ""},
		{Name: "model", Type: "string", Default: ""},
		{Name: "size", Type: "string", Default: ""},
		{Name: "condition", Type: "string", Default: "good"},
		{Name: "status", Type: "string", Default: AssetAvailable, Enum: AssetStatuses},
		{Name: "assigned_booking_id", Type: "string", Nullable: true, Immutable: true},
		{Name: "notes", Type: "text", Default: ""},
	}
	return &Entity{
		Name:       CollectionAssets,
		Table:      "assets",
		PrimaryKey: stringPK(),
		IDPrefix:   "asset",
		Fields:     append(fields, timestamps()...),
	}
}

func WebhookConfigsEntity() *Entity {
	fields := []Field{
		{Name: "id", Type: "string", Required: true},
		{Name: "name", Type: "string", Required: true},
		{Name: "url", Type: "string", Required: true},
		{Name: "event_type", Type: "string", Required: true},
		{Name: "is_active", Type: "boolean", Default: true},
		{Name: "secret_token", Type: "string", Nullable: true},
		{Name: "condition", Type: "text", Default: ""},
	}
	return &Entity{
		Name:       CollectionWebhookConfigs,
		Table:      "webhook_configs",
		PrimaryKey: stringPK(),
		IDPrefix:   "whcfg",
		Fields:     append(fields, timestamps()...),
	}
}

// WebhookLogsEntity is append-only; one row per delivery or ingestion attempt.
func WebhookLogsEntity() *Entity {
	return &Entity{
		Name:       CollectionWebhookLogs,
		Table:      "webhook_logs",
		PrimaryKey: stringPK(),
		IDPrefix:   "whlog",
		ReadOnly:   true,
		Fields: []Field{
			{Name: "id", Type: "string", Required: true},
			{Name: "webhook_config_id", Type: "string", Nullable: true},
			{Name: "event_type", Type: "string", Required: true},
			{Name: "payload", Type: "text", Default: ""},
			{Name: "response_status", Type: "int", Default: float64(0)},
			{Name: "response_body", Type: "text", Nullable: true},
			{Name: "error_message", Type: "text", Nullable: true},
			{Name: "created_at", Type: "timestamp", Auto: "create"},
		},
	}
}

func BookingAttributesEntity() *Entity {
	fields := []Field{
		{Name: "id", Type: "string", Required: true},
		{Name: "name", Type: "string", Required: true, Unique: true},
		{Name: "field_type", Type: "string", Required: true, Enum: AttributeFieldTypes},
		{Name: "label", Type: "string", Required: true},
		{Name: "required", Type: "boolean", Default: false},
		{Name: "placeholder", Type: "string", Default: ""},
		{Name: "options", Type: "json", Nullable: true},
		{Name: "default_value", Type: "string", Nullable: true},
		{Name: "description", Type: "text", Default: ""},
		{Name: "sort_order", Type: "int", Default: float64(0)},
	}
	return &Entity{
		Name:       CollectionBookingAttributes,
		Table:      "booking_attributes",
		PrimaryKey: stringPK(),
		IDPrefix:   "attr",
		Fields:     append(fields, timestamps()...),
	}
}

// Collections returns every built-in collection in migration order.
func Collections() []*Entity {
	return []*Entity{
		BookingsEntity(),
		AssetsEntity(),
		WebhookConfigsEntity(),
		WebhookLogsEntity(),
		BookingAttributesEntity(),
	}
}
