package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

var filterOperators = map[string]bool{
	store.OpEq: true, store.OpNeq: true, store.OpGt: true, store.OpGte: true,
	store.OpLt: true, store.OpLte: true, store.OpIn: true, store.OpLike: true, store.OpNull: true,
}

// QueryPlan is a parsed list request.
type QueryPlan struct {
	Entity  *metadata.Entity
	Query   store.Query
	Page    int
	PerPage int
}

// ParseQueryParams parses Fiber query parameters into a QueryPlan.
func ParseQueryParams(c *fiber.Ctx, entity *metadata.Entity) (*QueryPlan, error) {
	plan := &QueryPlan{
		Entity:  entity,
		Page:    1,
		PerPage: defaultPerPage,
	}

	// filter[field]=val or filter[field.op]=val
	for key, val := range c.Queries() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		field, op := parseFilterKey(key[7 : len(key)-1])

		f := entity.GetField(field)
		if f == nil {
			return nil, &AppError{
				Code:    "UNKNOWN_FIELD",
				Status:  400,
				Message: fmt.Sprintf("Unknown filter field: %s", field),
			}
		}
		if !filterOperators[op] {
			return nil, &AppError{
				Code:    "INVALID_PAYLOAD",
				Status:  400,
				Message: fmt.Sprintf("Unknown filter operator: %s", op),
			}
		}

		coerced, err := coerceValue(f, val, op)
		if err != nil {
			return nil, &AppError{
				Code:    "INVALID_PAYLOAD",
				Status:  400,
				Message: fmt.Sprintf("Invalid filter value for %s: %v", field, err),
			}
		}
		plan.Query.Filters = append(plan.Query.Filters, store.Filter{Field: field, Op: op, Value: coerced})
	}

	// sort=-created_at,name
	if sortParam := c.Query("sort"); sortParam != "" {
		for _, part := range strings.Split(sortParam, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			sf := store.SortField{Field: part}
			if strings.HasPrefix(part, "-") {
				sf = store.SortField{Field: part[1:], Desc: true}
			}
			if !entity.HasField(sf.Field) {
				return nil, &AppError{
					Code:    "UNKNOWN_FIELD",
					Status:  400,
					Message: fmt.Sprintf("Unknown sort field: %s", sf.Field),
				}
			}
			plan.Query.Sort = append(plan.Query.Sort, sf)
		}
	}
	if len(plan.Query.Sort) == 0 && entity.HasField("created_at") {
		plan.Query.Sort = []store.SortField{{Field: "created_at", Desc: true}}
	}

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			plan.Page = v
		}
	}
	if pp := c.Query("per_page"); pp != "" {
		if v, err := strconv.Atoi(pp); err == nil && v > 0 {
			plan.PerPage = min(v, maxPerPage)
		}
	}

	plan.Query.Limit = plan.PerPage
	plan.Query.Offset = (plan.Page - 1) * plan.PerPage
	return plan, nil
}

// parseFilterKey splits "total_price.gte" into ("total_price", "gte") or "status" into ("status", "eq").
func parseFilterKey(key string) (string, string) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, store.OpEq
}

// coerceValue converts string query param values to Go types based on field metadata.
func coerceValue(field *metadata.Field, val string, op string) (any, error) {
	switch op {
	case store.OpIn:
		parts := strings.Split(val, ",")
		coerced := make([]any, len(parts))
		for i, p := range parts {
			v, err := coerceSingleValue(field, strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}
			coerced[i] = v
		}
		return coerced, nil
	case store.OpNull:
		return strconv.ParseBool(val)
	case store.OpLike:
		return val, nil
	}
	return coerceSingleValue(field, val)
}

func coerceSingleValue(field *metadata.Field, val string) (any, error) {
	switch field.Type {
	case "int":
		return strconv.ParseInt(val, 10, 64)
	case "decimal", "float":
		return strconv.ParseFloat(val, 64)
	case "boolean":
		return strconv.ParseBool(val)
	default:
		return val, nil
	}
}
