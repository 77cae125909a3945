package metadata

import "testing"

func TestBookingAttribute_Validate(t *testing.T) {
	ok := &BookingAttribute{Name: "city", FieldType: "text", Label: "City"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid attribute, got %v", err)
	}

	cases := []*BookingAttribute{
		{Name: "City", FieldType: "text", Label: "City"},
		{Name: "status", FieldType: "text", Label: "Status"},
		{Name: "city", FieldType: "colour", Label: "City"},
		{Name: "kind", FieldType: "select", Label: "Kind"},
		{Name: "city", FieldType: "text"},
		{Name: "kind", FieldType: "select", Label: "Kind", Options: []string{"a"}, DefaultValue: strPtr("b")},
	}
	for _, a := range cases {
		if err := a.Validate(); err == nil {
			t.Errorf("expected %+v to be rejected", a)
		}
	}
}

func TestDefaultBookingAttributes_AreValid(t *testing.T) {
	seen := map[string]bool{}
	for _, a := range DefaultBookingAttributes() {
		if err := a.Validate(); err != nil {
			t.Fatalf("default attribute %s invalid: %v", a.Name, err)
		}
		if seen[a.Name] {
			t.Fatalf("duplicate default attribute %s", a.Name)
		}
		seen[a.Name] = true
	}
}

func TestAttributeSchema(t *testing.T) {
	attrs := []*BookingAttribute{
		{Name: "wa", FieldType: "boolean", Label: "WA?"},
		{Name: "payment_type", FieldType: "select", Label: "Payment", Options: []string{"Cash", "PayPal"}, Required: true},
	}
	schema := AttributeSchema(attrs)
	props := schema["properties"].(map[string]any)
	if props["wa"].(map[string]any)["type"] != "boolean" {
		t.Fatalf("expected boolean schema for wa, got %v", props["wa"])
	}
	enum := props["payment_type"].(map[string]any)["enum"].([]any)
	if len(enum) != 2 {
		t.Fatalf("expected 2 enum values, got %v", enum)
	}
	req := schema["required"].([]string)
	if len(req) != 1 || req[0] != "payment_type" {
		t.Fatalf("unexpected required list %v", req)
	}
}

func TestAttributeRoundTripThroughRecord(t *testing.T) {
	def := "Cash"
	a := &BookingAttribute{ID: "attr_1", Name: "payment_type", FieldType: "select", Label: "Payment",
		Options: []string{"Cash", "PayPal"}, DefaultValue: &def, SortOrder: 3, Required: true}
	back := AttributeFromRow(a.ToRecord())
	if back.Name != a.Name || back.SortOrder != 3 || !back.Required || len(back.Options) != 2 {
		t.Fatalf("round trip lost data: %+v", back)
	}
	if back.DefaultValue == nil || *back.DefaultValue != "Cash" {
		t.Fatalf("default value lost: %+v", back.DefaultValue)
	}
}
