package metadata

// Entity describes one record-store collection: its table, columns and write rules.
type Entity struct {
	Name       string     `json:"name"`
	Table      string     `json:"table"`
	PrimaryKey PrimaryKey `json:"primary_key"`
	IDPrefix   string     `json:"id_prefix"`
	ReadOnly   bool       `json:"read_only,omitempty"` // exposed by the dashboard API for reads only
	Fields     []Field    `json:"fields"`
	Rules      []*Rule    `json:"rules,omitempty"`
}

type PrimaryKey struct {
	Field string `json:"field"`
	Type  string `json:"type"` // string, uuid
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// WritableFields returns fields that can be set by the client on create.
// Excludes the PK and auto-timestamp fields.
func (e *Entity) WritableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field || f.IsAuto() {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// UpdatableFields returns fields that can be set on UPDATE.
// Same as WritableFields minus fields marked immutable.
func (e *Entity) UpdatableFields() []Field {
	var fields []Field
	for _, f := range e.WritableFields() {
		if f.Immutable {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// BoolFields returns the names of boolean columns, for SQLite normalization.
func (e *Entity) BoolFields() []string {
	var names []string
	for _, f := range e.Fields {
		if f.Type == "boolean" {
			names = append(names, f.Name)
		}
	}
	return names
}
