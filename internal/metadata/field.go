package metadata

type Field struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"` // string, text, int, decimal, boolean, timestamp, date, json
	Required  bool     `json:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	Default   any      `json:"default,omitempty"`
	Nullable  bool     `json:"nullable,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	Precision int      `json:"precision,omitempty"`
	Auto      string   `json:"auto,omitempty"` // "create" or "update"
	Immutable bool     `json:"immutable,omitempty"`
}

// IsAuto returns true if the field is auto-managed by the engine.
func (f Field) IsAuto() bool {
	return f.Auto == "create" || f.Auto == "update"
}

// AllowsValue reports whether v satisfies the field's enum, if any.
func (f Field) AllowsValue(v string) bool {
	if len(f.Enum) == 0 {
		return true
	}
	for _, e := range f.Enum {
		if e == v {
			return true
		}
	}
	return false
}
