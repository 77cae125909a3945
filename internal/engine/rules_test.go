package engine

import (
	"context"
	"math"
	"testing"

	"tours-backend/internal/metadata"
)

func TestEvaluateFieldRule_Min(t *testing.T) {
	rule := &metadata.Rule{
		Type: "field",
		Definition: metadata.RuleDefinition{
			Field: "participants", Operator: "min", Value: float64(1),
			Message: "participants must be at least 1",
		},
	}

	detail := EvaluateFieldRule(rule, map[string]any{"participants": float64(0)})
	if detail == nil {
		t.Fatal("expected error for participants=0")
	}
	if detail.Field != "participants" || detail.Rule != "min" {
		t.Fatalf("unexpected detail %+v", detail)
	}

	if detail := EvaluateFieldRule(rule, map[string]any{"participants": int64(1)}); detail != nil {
		t.Fatalf("expected pass for participants=1, got %v", detail)
	}
	if detail := EvaluateFieldRule(rule, map[string]any{"participants": "4"}); detail != nil {
		t.Fatalf("expected numeric string to pass, got %v", detail)
	}
	if detail := EvaluateFieldRule(rule, map[string]any{}); detail != nil {
		t.Fatalf("expected pass for absent field, got %v", detail)
	}
}

func TestEvaluateFieldRule_NonNumeric(t *testing.T) {
	rule := &metadata.Rule{
		Type:       "field",
		Definition: metadata.RuleDefinition{Field: "total_price", Operator: "min", Value: float64(0)},
	}
	detail := EvaluateFieldRule(rule, map[string]any{"total_price": "lots"})
	if detail == nil {
		t.Fatal("expected error for non-numeric total_price")
	}
}

func TestEvaluateFieldRule_Max(t *testing.T) {
	rule := &metadata.Rule{
		Type: "field",
		Definition: metadata.RuleDefinition{
			Field: "participants", Operator: "max", Value: float64(40),
			Message: "groups are limited to 40",
		},
	}
	if detail := EvaluateFieldRule(rule, map[string]any{"participants": float64(41)}); detail == nil {
		t.Fatal("expected error for participants=41")
	}
	if detail := EvaluateFieldRule(rule, map[string]any{"participants": float64(40)}); detail != nil {
		t.Fatalf("expected pass at the limit, got %v", detail)
	}
}

func TestEvaluateFieldRule_Length(t *testing.T) {
	minRule := &metadata.Rule{
		Type:       "field",
		Definition: metadata.RuleDefinition{Field: "customer_name", Operator: "min_length", Value: float64(2)},
	}
	maxRule := &metadata.Rule{
		Type:       "field",
		Definition: metadata.RuleDefinition{Field: "customer_name", Operator: "max_length", Value: float64(5)},
	}

	if detail := EvaluateFieldRule(minRule, map[string]any{"customer_name": "A"}); detail == nil {
		t.Fatal("expected min_length failure")
	}
	if detail := EvaluateFieldRule(maxRule, map[string]any{"customer_name": "Amélie"}); detail == nil {
		t.Fatal("expected max_length failure")
	}
	// length counts characters, not bytes
	if detail := EvaluateFieldRule(maxRule, map[string]any{"customer_name": "Zoë"}); detail != nil {
		t.Fatalf("expected pass, got %v", detail)
	}
}

func TestEvaluateFieldRule_Pattern(t *testing.T) {
	e := metadata.BookingsEntity()
	var emailRule *metadata.Rule
	for _, r := range e.Rules {
		if r.Definition.Field == "customer_email" {
			emailRule = r
		}
	}
	if emailRule == nil {
		t.Fatal("bookings should carry an email rule")
	}

	if detail := EvaluateFieldRule(emailRule, map[string]any{"customer_email": "not-an-email"}); detail == nil {
		t.Fatal("expected pattern failure")
	}
	if detail := EvaluateFieldRule(emailRule, map[string]any{"customer_email": "ana@example.com"}); detail != nil {
		t.Fatalf("expected pass, got %v", detail)
	}
}

func TestCompileExpression(t *testing.T) {
	if _, err := CompileExpression(`record.participants > 10`); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := CompileExpression(`record.participants >`); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestEvaluateExpressionRule(t *testing.T) {
	rule := &metadata.Rule{
		Type: "expression",
		Definition: metadata.RuleDefinition{
			Expression: `action == "update" && old.status == "cancelled" && record.status != "cancelled"`,
			Message:    "cancelled bookings cannot be reopened",
		},
	}

	env := map[string]any{
		"record": map[string]any{"status": "confirmed"},
		"old":    map[string]any{"status": "cancelled"},
		"action": "update",
	}
	detail := EvaluateExpressionRule(rule, env)
	if detail == nil {
		t.Fatal("expected violation")
	}
	if detail.Message != "cancelled bookings cannot be reopened" {
		t.Fatalf("unexpected message %q", detail.Message)
	}

	env["old"] = map[string]any{"status": "pending"}
	if detail := EvaluateExpressionRule(rule, env); detail != nil {
		t.Fatalf("expected pass, got %v", detail)
	}
}

func TestEvaluateRules_Bookings(t *testing.T) {
	e := metadata.BookingsEntity()
	ctx := context.Background()

	valid := map[string]any{
		"customer_email": "ana@example.com",
		"participants":   float64(2),
		"total_price":    float64(120),
		"currency":       "EUR",
		"payment_status": "paid",
	}
	if errs := EvaluateRules(ctx, e, valid, nil, true); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}

	invalid := map[string]any{
		"customer_email": "ana",
		"participants":   float64(0),
		"total_price":    float64(0),
		"currency":       "euro",
		"payment_status": "paid",
	}
	errs := EvaluateRules(ctx, e, invalid, nil, true)
	if len(errs) != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", len(errs), errs)
	}
	var sawExpression bool
	for _, d := range errs {
		if d.Rule == "expression" {
			sawExpression = true
		}
	}
	if !sawExpression {
		t.Fatal("expected the paid/zero-price expression rule to fire")
	}
}

func TestToFloat64(t *testing.T) {
	cases := map[string]struct {
		in   any
		want float64
		ok   bool
	}{
		"float":  {float64(1.5), 1.5, true},
		"int":    {7, 7, true},
		"int64":  {int64(9), 9, true},
		"string": {" 12.25 ", 12.25, true},
		"bad":    {"x", 0, false},
		"nil":    {nil, 0, false},
		"nan":    {"NaN", 0, false},
		"inf":    {"Infinity", 0, false},
		"-inf":   {math.Inf(-1), 0, false},
	}
	for name, tc := range cases {
		got, ok := toFloat64(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("%s: got (%v, %v), want (%v, %v)", name, got, ok, tc.want, tc.ok)
		}
	}
}
