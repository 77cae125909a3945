package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"tours-backend/internal/metadata"
)

// managedFields only change through the asset assignment flow.
var managedFields = map[string][]string{
	metadata.CollectionBookings: metadata.BookingAssetSlots,
	metadata.CollectionAssets:   {"assigned_booking_id"},
}

// WritePlan is a validated create or update.
type WritePlan struct {
	IsCreate bool
	Entity   *metadata.Entity
	Fields   map[string]any
	ID       string // empty for create
}

// PlanWrite validates body against the entity and returns the columns to
// write. old is the current record on update and nil on create. Booking keys
// that are not columns are treated as custom attributes.
func PlanWrite(ctx context.Context, entity *metadata.Entity, attrs *AttributeValidator, body map[string]any, old map[string]any) (*WritePlan, []ErrorDetail, error) {
	isCreate := old == nil
	isBooking := entity.Name == metadata.CollectionBookings

	fields := make(map[string]any)
	custom := make(map[string]any)
	var errs []ErrorDetail

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := body[key]
		if key == entity.PrimaryKey.Field {
			continue
		}
		if isBooking && key == "attributes" {
			m, ok := val.(map[string]any)
			if !ok && val != nil {
				errs = append(errs, ErrorDetail{Field: key, Rule: "type", Message: "attributes must be an object"})
				continue
			}
			for k, v := range m {
				custom[k] = v
			}
			continue
		}

		f := entity.GetField(key)
		if f == nil {
			if isBooking {
				custom[key] = val
				continue
			}
			errs = append(errs, ErrorDetail{Field: key, Rule: "unknown", Message: fmt.Sprintf("Unknown field: %s", key)})
			continue
		}
		if f.IsAuto() {
			continue
		}
		if isManaged(entity.Name, key) {
			errs = append(errs, ErrorDetail{Field: key, Rule: "managed", Message: fmt.Sprintf("%s is changed through the asset assignment endpoints", key)})
			continue
		}
		if !isCreate && f.Immutable {
			errs = append(errs, ErrorDetail{Field: key, Rule: "immutable", Message: fmt.Sprintf("%s cannot be changed after creation", key)})
			continue
		}

		coerced, err := coerceFieldValue(f, val)
		if err != nil {
			errs = append(errs, ErrorDetail{Field: key, Rule: "type", Message: err.Error()})
			continue
		}
		if s, ok := coerced.(string); ok && !f.AllowsValue(s) {
			errs = append(errs, ErrorDetail{Field: key, Rule: "enum", Message: fmt.Sprintf("%s must be one of %s", key, strings.Join(f.Enum, ", "))})
			continue
		}
		if entity.Name == metadata.CollectionAssets && key == "status" && coerced == metadata.AssetInUse {
			errs = append(errs, ErrorDetail{Field: key, Rule: "managed", Message: "assets become in-use by being assigned to a booking"})
			continue
		}
		fields[key] = coerced
	}

	flagged := make(map[string]bool, len(errs))
	for _, d := range errs {
		flagged[d.Field] = true
	}
	for _, f := range entity.WritableFields() {
		if !f.Required || flagged[f.Name] {
			continue
		}
		v, present := fields[f.Name]
		if (isCreate && !present) || (present && isBlank(v)) {
			errs = append(errs, ErrorDetail{Field: f.Name, Rule: "required", Message: fmt.Sprintf("%s is required", f.Name)})
		}
	}

	if isBooking && (isCreate || len(custom) > 0) {
		merged, details, err := planAttributes(attrs, custom, old, isCreate)
		if err != nil {
			return nil, nil, err
		}
		errs = append(errs, details...)
		if len(merged) > 0 {
			fields["attributes"] = merged
		}
	}

	if len(errs) > 0 {
		return nil, errs, nil
	}

	record := make(map[string]any, len(old)+len(fields))
	for k, v := range old {
		record[k] = v
	}
	for k, v := range fields {
		record[k] = v
	}
	if ruleErrs := EvaluateRules(ctx, entity, record, old, isCreate); len(ruleErrs) > 0 {
		return nil, ruleErrs, nil
	}

	plan := &WritePlan{IsCreate: isCreate, Entity: entity, Fields: fields}
	if !isCreate {
		plan.ID = fmt.Sprint(old[entity.PrimaryKey.Field])
	}
	return plan, nil, nil
}

// planAttributes merges custom values over the stored ones, fills catalog
// defaults on create and validates the result.
func planAttributes(attrs *AttributeValidator, custom, old map[string]any, isCreate bool) (map[string]any, []ErrorDetail, error) {
	merged := make(map[string]any)
	if prev, ok := old["attributes"].(map[string]any); ok {
		for k, v := range prev {
			merged[k] = v
		}
	}
	for k, v := range custom {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	if isCreate && attrs != nil {
		for _, a := range attrs.registry.Attributes() {
			if _, ok := merged[a.Name]; !ok && a.DefaultValue != nil {
				merged[a.Name] = *a.DefaultValue
			}
		}
	}
	if attrs == nil {
		return merged, nil, nil
	}
	details, err := attrs.Validate(merged)
	if err != nil {
		return nil, nil, err
	}
	return merged, details, nil
}

func isManaged(collection, field string) bool {
	for _, f := range managedFields[collection] {
		if f == field {
			return true
		}
	}
	return false
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// coerceFieldValue converts a decoded JSON value to the field's column type.
func coerceFieldValue(f *metadata.Field, v any) (any, error) {
	if v == nil {
		if f.Nullable || f.Required {
			return nil, nil
		}
		return nil, fmt.Errorf("%s cannot be null", f.Name)
	}
	switch f.Type {
	case "int":
		n, ok := toFloat64(v)
		if !ok || n != math.Trunc(n) {
			return nil, fmt.Errorf("%s must be an integer", f.Name)
		}
		return int64(n), nil
	case "decimal", "float":
		n, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("%s must be a number", f.Name)
		}
		return n, nil
	case "boolean":
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(b) {
			case "true", "1":
				return true, nil
			case "false", "0":
				return false, nil
			}
		}
		return nil, fmt.Errorf("%s must be a boolean", f.Name)
	case "timestamp":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be an ISO 8601 timestamp", f.Name)
		}
		t, ok := parseClientTime(s)
		if !ok {
			return nil, fmt.Errorf("%s must be an ISO 8601 timestamp", f.Name)
		}
		return t, nil
	case "json":
		return v, nil
	default:
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("%s must be a string", f.Name)
		}
		return scalarString(v), nil
	}
}
