package engine

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"tours-backend/internal/instrument"
	"tours-backend/internal/metadata"
)

// compiled expression programs, shared by every entity instance
var expressionCache sync.Map

// EvaluateRules runs the entity's field and expression rules against the
// record as it will be stored. old is nil on create.
func EvaluateRules(ctx context.Context, e *metadata.Entity, record map[string]any, old map[string]any, isCreate bool) []ErrorDetail {
	_, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "rules", "rules.evaluate")
	defer span.End()
	span.SetEntity(e.Name, "")

	if len(e.Rules) == 0 {
		span.SetStatus("ok")
		return nil
	}

	action := "update"
	if isCreate {
		action = "create"
	}
	env := map[string]any{
		"record": record,
		"old":    old,
		"action": action,
	}

	var errs []ErrorDetail
	for _, r := range e.Rules {
		if r.Type != "field" {
			continue
		}
		if detail := EvaluateFieldRule(r, record); detail != nil {
			errs = append(errs, *detail)
			if r.Definition.StopOnFail {
				span.SetStatus("error")
				return errs
			}
		}
	}

	for _, r := range e.Rules {
		if r.Type != "expression" {
			continue
		}
		if detail := EvaluateExpressionRule(r, env); detail != nil {
			errs = append(errs, *detail)
			if r.Definition.StopOnFail {
				break
			}
		}
	}

	if len(errs) > 0 {
		span.SetStatus("error")
	} else {
		span.SetStatus("ok")
	}
	return errs
}

// EvaluateFieldRule evaluates a single field rule against a record.
// Returns nil if the rule passes, or an ErrorDetail if it fails.
func EvaluateFieldRule(rule *metadata.Rule, record map[string]any) *ErrorDetail {
	fieldName := rule.Definition.Field
	val, exists := record[fieldName]
	if !exists || val == nil {
		return nil // absent fields are not checked by field rules (use "required" for that)
	}

	op := rule.Definition.Operator
	msg := rule.Definition.Message
	if msg == "" {
		msg = fmt.Sprintf("field %s failed %s validation", fieldName, op)
	}

	switch op {
	case "min", "max":
		num, ok := toFloat64(val)
		if !ok {
			return &ErrorDetail{Field: fieldName, Rule: op, Message: fmt.Sprintf("%s must be a number", fieldName)}
		}
		threshold, ok := toFloat64(rule.Definition.Value)
		if !ok {
			return nil
		}
		if (op == "min" && num < threshold) || (op == "max" && num > threshold) {
			return &ErrorDetail{Field: fieldName, Rule: op, Message: msg}
		}

	case "min_length", "max_length":
		s, ok := val.(string)
		if !ok {
			return nil
		}
		threshold, ok := toFloat64(rule.Definition.Value)
		if !ok {
			return nil
		}
		n := len([]rune(s))
		if (op == "min_length" && n < int(threshold)) || (op == "max_length" && n > int(threshold)) {
			return &ErrorDetail{Field: fieldName, Rule: op, Message: msg}
		}

	case "pattern":
		s, ok := val.(string)
		if !ok {
			return nil
		}
		pattern, ok := rule.Definition.Value.(string)
		if !ok {
			return nil
		}
		matched, err := regexp.MatchString(pattern, s)
		if err != nil || !matched {
			return &ErrorDetail{Field: fieldName, Rule: "pattern", Message: msg}
		}
	}

	return nil
}

// CompileExpression compiles a boolean rule expression.
func CompileExpression(expression string) (*vm.Program, error) {
	if prog, ok := expressionCache.Load(expression); ok {
		return prog.(*vm.Program), nil
	}
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	expressionCache.Store(expression, prog)
	return prog, nil
}

// EvaluateExpressionRule returns nil if the expression is false, or an
// ErrorDetail if it evaluates to true.
func EvaluateExpressionRule(rule *metadata.Rule, env map[string]any) *ErrorDetail {
	prog, err := CompileExpression(rule.Definition.Expression)
	if err != nil {
		return &ErrorDetail{Rule: "expression", Message: fmt.Sprintf("compile error: %v", err)}
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return &ErrorDetail{Rule: "expression", Message: fmt.Sprintf("rule evaluation error: %v", err)}
	}

	if violated, ok := result.(bool); ok && violated {
		msg := rule.Definition.Message
		if msg == "" {
			msg = "Expression rule violated"
		}
		return &ErrorDetail{Rule: "expression", Message: msg}
	}
	return nil
}

// toFloat64 converts numbers and numeric strings to a finite float64.
// NaN and infinities, which ParseFloat accepts, are rejected.
func toFloat64(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(n), 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
