package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

const attributeColumns = "id, name, field_type, label, required, placeholder, options, default_value, description, sort_order"

// LoadAttributes reads the booking attribute catalog into the registry.
func LoadAttributes(ctx context.Context, db *sql.DB, reg *Registry) error {
	rows, err := db.QueryContext(ctx, "SELECT "+attributeColumns+" FROM booking_attributes ORDER BY sort_order, name")
	if err != nil {
		return fmt.Errorf("query booking attributes: %w", err)
	}
	defer rows.Close()

	var attrs []*BookingAttribute
	for rows.Next() {
		var (
			a           BookingAttribute
			required    any
			placeholder sql.NullString
			options     sql.NullString
			def         sql.NullString
			description sql.NullString
			sortOrder   sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.FieldType, &a.Label, &required, &placeholder, &options, &def, &description, &sortOrder); err != nil {
			return fmt.Errorf("scan booking attribute: %w", err)
		}
		row := map[string]any{
			"id": a.ID, "name": a.Name, "field_type": a.FieldType, "label": a.Label,
			"required": required, "placeholder": placeholder.String, "description": description.String,
			"sort_order": sortOrder.Int64,
		}
		if options.Valid {
			row["options"] = options.String
		}
		if def.Valid {
			row["default_value"] = def.String
		}
		attrs = append(attrs, AttributeFromRow(row))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate booking attributes: %w", err)
	}

	reg.LoadAttributes(attrs)
	log.Printf("Loaded %d booking attributes into registry", len(attrs))
	return nil
}
