package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tours-backend/internal/metadata"
)

// Filter operators understood by Find and Count.
const (
	OpEq   = "eq"
	OpNeq  = "neq"
	OpGt   = "gt"
	OpGte  = "gte"
	OpLt   = "lt"
	OpLte  = "lte"
	OpIn   = "in"
	OpLike = "like"
	OpNull = "null" // Value true: IS NULL, false: IS NOT NULL
)

var comparisonSQL = map[string]string{
	OpEq:  "=",
	OpNeq: "!=",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

type Filter struct {
	Field string
	Op    string
	Value any
}

// Eq is shorthand for an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

type SortField struct {
	Field string
	Desc  bool
}

type Query struct {
	Filters []Filter
	Sort    []SortField
	Limit   int
	Offset  int
}

// Find returns the records matching q.
func (s *Store) Find(ctx context.Context, q Querier, e *metadata.Entity, query Query) ([]map[string]any, error) {
	pb := s.Dialect.NewParamBuilder()
	where, err := s.buildWhere(e, query.Filters, pb)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(e.FieldNames(), ", "), e.Table)
	b.WriteString(where)

	if len(query.Sort) > 0 {
		parts := make([]string, 0, len(query.Sort))
		for _, sf := range query.Sort {
			if !e.HasField(sf.Field) {
				return nil, fmt.Errorf("unknown sort field %q on %s", sf.Field, e.Name)
			}
			dir := "ASC"
			if sf.Desc {
				dir = "DESC"
			}
			parts = append(parts, sf.Field+" "+dir)
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if query.Limit > 0 {
		b.WriteString(" LIMIT " + pb.Add(query.Limit))
		if query.Offset > 0 {
			b.WriteString(" OFFSET " + pb.Add(query.Offset))
		}
	}

	rows, err := QueryRows(ctx, q, b.String(), pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", e.Name, err)
	}
	s.normalizeRecords(e, rows)
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

// FindOne returns the first record matching filters, or ErrNotFound.
func (s *Store) FindOne(ctx context.Context, q Querier, e *metadata.Entity, filters ...Filter) (map[string]any, error) {
	rows, err := s.Find(ctx, q, e, Query{Filters: filters, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Count returns the number of records matching filters.
func (s *Store) Count(ctx context.Context, q Querier, e *metadata.Entity, filters []Filter) (int64, error) {
	pb := s.Dialect.NewParamBuilder()
	where, err := s.buildWhere(e, filters, pb)
	if err != nil {
		return 0, err
	}
	var n int64
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", e.Table, where)
	if err := q.QueryRowContext(ctx, sql, pb.Params()...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", e.Name, err)
	}
	return n, nil
}

// Get returns the record with the given primary key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, q Querier, e *metadata.Entity, id string) (map[string]any, error) {
	return s.FindOne(ctx, q, e, Eq(e.PrimaryKey.Field, id))
}

// Insert writes a new record and returns it as stored. A missing primary key
// is generated from the entity's id prefix; auto timestamps default to now.
func (s *Store) Insert(ctx context.Context, q Querier, e *metadata.Entity, record map[string]any) (map[string]any, error) {
	now := time.Now().UTC()
	pk := e.PrimaryKey.Field

	id, _ := record[pk].(string)
	if id == "" {
		id = NewID(e.IDPrefix)
	}

	pb := s.Dialect.NewParamBuilder()
	var cols, phs []string
	for i := range e.Fields {
		f := &e.Fields[i]
		var v any
		var ok bool
		switch {
		case f.Name == pk:
			v, ok = id, true
		case f.IsAuto():
			v, ok = record[f.Name]
			if !ok || v == nil {
				v, ok = now, true
			}
		default:
			v, ok = record[f.Name]
		}
		if !ok {
			continue
		}
		enc, err := s.encodeValue(f, v)
		if err != nil {
			return nil, err
		}
		cols = append(cols, f.Name)
		phs = append(phs, pb.Add(enc))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", e.Table, strings.Join(cols, ", "), strings.Join(phs, ", "))
	if _, err := q.ExecContext(ctx, sql, pb.Params()...); err != nil {
		return nil, fmt.Errorf("insert %s: %w", e.Name, MapError(s.Dialect, err))
	}
	return s.Get(ctx, q, e, id)
}

// Update applies changes to the record with the given primary key and returns
// the updated record. Unknown keys, the primary key and create-time fields are ignored.
func (s *Store) Update(ctx context.Context, q Querier, e *metadata.Entity, id string, changes map[string]any) (map[string]any, error) {
	pb := s.Dialect.NewParamBuilder()
	var sets []string
	for i := range e.Fields {
		f := &e.Fields[i]
		if f.Name == e.PrimaryKey.Field || f.Auto == "create" {
			continue
		}
		v, ok := changes[f.Name]
		if f.Auto == "update" {
			v, ok = time.Now().UTC(), true
		}
		if !ok {
			continue
		}
		enc, err := s.encodeValue(f, v)
		if err != nil {
			return nil, err
		}
		sets = append(sets, f.Name+" = "+pb.Add(enc))
	}
	if len(sets) == 0 {
		return s.Get(ctx, q, e, id)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s", e.Table, strings.Join(sets, ", "), e.PrimaryKey.Field, pb.Add(id))
	n, err := Exec(ctx, q, sql, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", e.Name, MapError(s.Dialect, err))
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, q, e, id)
}

// Delete removes the record with the given primary key.
func (s *Store) Delete(ctx context.Context, q Querier, e *metadata.Entity, id string) error {
	pb := s.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", e.Table, e.PrimaryKey.Field, pb.Add(id))
	n, err := Exec(ctx, q, sql, pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", e.Name, MapError(s.Dialect, err))
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) buildWhere(e *metadata.Entity, filters []Filter, pb ParamBuilder) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(filters))
	for _, flt := range filters {
		f := e.GetField(flt.Field)
		if f == nil {
			return "", fmt.Errorf("unknown filter field %q on %s", flt.Field, e.Name)
		}
		op := flt.Op
		if op == "" {
			op = OpEq
		}

		switch op {
		case OpNull:
			if isNull, _ := flt.Value.(bool); isNull {
				clauses = append(clauses, f.Name+" IS NULL")
			} else {
				clauses = append(clauses, f.Name+" IS NOT NULL")
			}
		case OpIn:
			values, ok := flt.Value.([]any)
			if !ok {
				return "", fmt.Errorf("filter %s.in expects a list", f.Name)
			}
			clauses = append(clauses, s.Dialect.InExpr(f.Name, pb, values))
		case OpLike:
			clauses = append(clauses, s.Dialect.LikeExpr(f.Name, pb, fmt.Sprint(flt.Value)))
		default:
			sqlOp, ok := comparisonSQL[op]
			if !ok {
				return "", fmt.Errorf("unknown filter operator %q", op)
			}
			if flt.Value == nil {
				if op == OpEq {
					clauses = append(clauses, f.Name+" IS NULL")
					continue
				}
				if op == OpNeq {
					clauses = append(clauses, f.Name+" IS NOT NULL")
					continue
				}
			}
			v, err := s.encodeValue(f, flt.Value)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, fmt.Sprintf("%s %s %s", f.Name, sqlOp, pb.Add(v)))
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}

// encodeValue converts an API value to a driver parameter for the field's column type.
func (s *Store) encodeValue(f *metadata.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case "timestamp":
		switch t := v.(type) {
		case time.Time:
			return s.Dialect.TimeParam(t), nil
		case string:
			parsed, ok := parseTimestamp(t)
			if !ok {
				return nil, fmt.Errorf("field %s: invalid timestamp %q", f.Name, t)
			}
			return s.Dialect.TimeParam(parsed), nil
		}
		return nil, fmt.Errorf("field %s: invalid timestamp %v", f.Name, v)
	case "json":
		switch j := v.(type) {
		case string:
			return j, nil
		case []byte:
			return string(j), nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return string(raw), nil
	case "int", "integer", "bigint":
		if n, ok := v.(float64); ok && n == math.Trunc(n) {
			return int64(n), nil
		}
	}
	return v, nil
}

func (s *Store) normalizeRecords(e *metadata.Entity, rows []map[string]any) {
	if s.Dialect.NeedsBoolFix() {
		NormalizeBooleans(rows, e.BoolFields())
	}
	for _, f := range e.Fields {
		switch f.Type {
		case "decimal", "float":
			for _, row := range rows {
				if str, ok := row[f.Name].(string); ok {
					if n, err := strconv.ParseFloat(str, 64); err == nil {
						row[f.Name] = n
					}
				}
			}
		case "json":
			for _, row := range rows {
				if str, ok := row[f.Name].(string); ok && str != "" {
					var decoded any
					if err := json.Unmarshal([]byte(str), &decoded); err == nil {
						row[f.Name] = decoded
					}
				}
			}
		}
	}
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
