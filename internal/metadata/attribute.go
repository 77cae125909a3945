package metadata

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"sort"
)

// AttributeFieldTypes are the input types a booking attribute can declare.
var AttributeFieldTypes = []string{"text", "number", "email", "phone", "date", "datetime", "textarea", "select", "boolean"}

var attributeNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// BookingAttribute is a dashboard-configurable booking field. Values are kept
// in the booking's attributes column, keyed by Name.
type BookingAttribute struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	FieldType    string   `json:"field_type"`
	Label        string   `json:"label"`
	Required     bool     `json:"required"`
	Placeholder  string   `json:"placeholder,omitempty"`
	Options      []string `json:"options,omitempty"`
	DefaultValue *string  `json:"default_value,omitempty"`
	Description  string   `json:"description,omitempty"`
	SortOrder    int      `json:"sort_order"`
}

// Validate checks the attribute definition itself.
func (a *BookingAttribute) Validate() error {
	if !attributeNamePattern.MatchString(a.Name) {
		return fmt.Errorf("attribute name %q must be lower snake case", a.Name)
	}
	if BookingsEntity().HasField(a.Name) {
		return fmt.Errorf("attribute name %q collides with a built-in booking field", a.Name)
	}
	if a.Label == "" {
		return fmt.Errorf("attribute %s: label is required", a.Name)
	}
	if !slices.Contains(AttributeFieldTypes, a.FieldType) {
		return fmt.Errorf("attribute %s: unknown field type %q", a.Name, a.FieldType)
	}
	if a.FieldType == "select" {
		if len(a.Options) == 0 {
			return fmt.Errorf("attribute %s: select attributes need options", a.Name)
		}
		if a.DefaultValue != nil && *a.DefaultValue != "" && !slices.Contains(a.Options, *a.DefaultValue) {
			return fmt.Errorf("attribute %s: default %q is not one of its options", a.Name, *a.DefaultValue)
		}
	}
	return nil
}

// ToRecord converts the attribute to a record-store row.
func (a *BookingAttribute) ToRecord() map[string]any {
	var options any
	if len(a.Options) > 0 {
		raw, _ := json.Marshal(a.Options)
		options = string(raw)
	}
	var def any
	if a.DefaultValue != nil {
		def = *a.DefaultValue
	}
	return map[string]any{
		"id":            a.ID,
		"name":          a.Name,
		"field_type":    a.FieldType,
		"label":         a.Label,
		"required":      a.Required,
		"placeholder":   a.Placeholder,
		"options":       options,
		"default_value": def,
		"description":   a.Description,
		"sort_order":    a.SortOrder,
	}
}

// AttributeFromRow builds a BookingAttribute from a record-store row.
func AttributeFromRow(row map[string]any) *BookingAttribute {
	a := &BookingAttribute{}
	a.ID, _ = row["id"].(string)
	a.Name, _ = row["name"].(string)
	a.FieldType, _ = row["field_type"].(string)
	a.Label, _ = row["label"].(string)
	a.Required = truthy(row["required"])
	a.Placeholder, _ = row["placeholder"].(string)
	a.Description, _ = row["description"].(string)
	if s, ok := row["default_value"].(string); ok {
		a.DefaultValue = &s
	}
	switch v := row["sort_order"].(type) {
	case int:
		a.SortOrder = v
	case int64:
		a.SortOrder = int(v)
	case int32:
		a.SortOrder = int(v)
	case float64:
		a.SortOrder = int(v)
	}
	switch v := row["options"].(type) {
	case []any:
		for _, o := range v {
			if s, ok := o.(string); ok {
				a.Options = append(a.Options, s)
			}
		}
	case []string:
		a.Options = v
	case string:
		_ = json.Unmarshal([]byte(v), &a.Options)
	case []byte:
		_ = json.Unmarshal(v, &a.Options)
	}
	return a
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case float64:
		return b != 0
	}
	return false
}

// SortAttributes orders attributes by SortOrder, then name.
func SortAttributes(attrs []*BookingAttribute) {
	sort.SliceStable(attrs, func(i, j int) bool {
		if attrs[i].SortOrder != attrs[j].SortOrder {
			return attrs[i].SortOrder < attrs[j].SortOrder
		}
		return attrs[i].Name < attrs[j].Name
	})
}

// AttributeSchema renders the catalog as a JSON Schema object describing the
// attributes column. Unknown keys are allowed.
func AttributeSchema(attrs []*BookingAttribute) map[string]any {
	props := make(map[string]any, len(attrs))
	var required []string
	for _, a := range attrs {
		props[a.Name] = attributePropertySchema(a)
		if a.Required {
			required = append(required, a.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		sort.Strings(required)
		schema["required"] = required
	}
	return schema
}

func attributePropertySchema(a *BookingAttribute) map[string]any {
	switch a.FieldType {
	case "number":
		return map[string]any{"type": "number"}
	case "boolean":
		return map[string]any{"type": "boolean"}
	case "email":
		return map[string]any{"type": "string", "format": "email"}
	case "date":
		return map[string]any{"type": "string", "format": "date"}
	case "datetime":
		return map[string]any{"type": "string", "format": "date-time"}
	case "phone":
		return map[string]any{"type": "string", "pattern": `^[+0-9 ()\-]{3,32}$`}
	case "select":
		enum := make([]any, len(a.Options))
		for i, o := range a.Options {
			enum[i] = o
		}
		return map[string]any{"type": "string", "enum": enum}
	default:
		return map[string]any{"type": "string"}
	}
}

func strPtr(s string) *string { return &s }

// DefaultBookingAttributes is the catalog seeded on first start.
func DefaultBookingAttributes() []*BookingAttribute {
	return []*BookingAttribute{
		{Name: "city", FieldType: "text", Label: "City", Placeholder: "Enter city", SortOrder: 1},
		{Name: "company", FieldType: "text", Label: "Company", Placeholder: "Enter company name", SortOrder: 2},
		{Name: "channel", FieldType: "text", Label: "Channel", Placeholder: "Enter channel", SortOrder: 3},
		{Name: "booking_number", FieldType: "text", Label: "Booking Number", Placeholder: "Enter booking number", SortOrder: 4},
		{Name: "booking_date", FieldType: "date", Label: "Booking Date", SortOrder: 5},
		{Name: "comments", FieldType: "textarea", Label: "Comments", Placeholder: "Enter comments", SortOrder: 6},
		{Name: "tags", FieldType: "text", Label: "Tags", Placeholder: "Enter tags", SortOrder: 7},
		{Name: "wa", FieldType: "boolean", Label: "WA?", SortOrder: 8},
		{Name: "revenue_incl_vat", FieldType: "number", Label: "Revenue (incl. VAT)", Placeholder: "0.00", SortOrder: 9},
		{
			Name: "payment_type", FieldType: "select", Label: "Payment Type", SortOrder: 10,
			Options:      []string{"Cash", "Credit Card", "Bank Transfer", "PayPal", "Other"},
			DefaultValue: strPtr("Credit Card"),
		},
	}
}
