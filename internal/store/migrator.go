package store

import (
	"context"
	"fmt"
	"strings"

	"tours-backend/internal/metadata"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// Migrate ensures the table matches the entity metadata.
// Creates the table if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, entity)
	}

	return m.alterTable(ctx, entity)
}

func (m *Migrator) createTable(ctx context.Context, entity *metadata.Entity) error {
	var cols []string
	for _, f := range entity.Fields {
		cols = append(cols, m.buildColumnDef(entity, &f))
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", entity.Table, strings.Join(cols, ",\n  "))

	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}

	return nil
}

func (m *Migrator) alterTable(ctx context.Context, entity *metadata.Entity) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", entity.Table, err)
	}

	for _, f := range entity.Fields {
		if _, ok := existing[f.Name]; ok {
			continue
		}
		colType := m.store.Dialect.ColumnType(f.Type, f.Precision)
		def := ""
		if f.Default != nil {
			def = " DEFAULT " + defaultLiteral(f.Default)
		}
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s%s", entity.Table, f.Name, colType, def)
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", entity.Table, f.Name, err)
		}
	}

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}

	return nil
}

func (m *Migrator) buildColumnDef(entity *metadata.Entity, f *metadata.Field) string {
	col := f.Name + " " + m.store.Dialect.ColumnType(f.Type, f.Precision)

	if f.Name == entity.PrimaryKey.Field {
		return col + " PRIMARY KEY"
	}

	if f.Required && !f.Nullable {
		col += " NOT NULL"
	}

	if f.Default != nil {
		col += " DEFAULT " + defaultLiteral(f.Default)
	}

	return col
}

func defaultLiteral(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case float64:
		return fmt.Sprintf("%v", val)
	case int:
		return fmt.Sprintf("%d", val)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprintf("'%v'", val)
	}
}

func (m *Migrator) createIndexes(ctx context.Context, entity *metadata.Entity) error {
	for _, f := range entity.Fields {
		if !f.Unique {
			continue
		}
		sql := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			entity.Table, f.Name, entity.Table, f.Name)
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("create unique index on %s.%s: %w", entity.Table, f.Name, err)
		}
	}
	return nil
}
