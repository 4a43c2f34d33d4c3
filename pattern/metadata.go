package pattern

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata is a free-form attribute document attached to a pattern,
// e.g. a parameter schema or a category tag. It is persisted as JSON.
type Metadata map[string]interface{}

// Clone returns a shallow copy of the document. Nested values are
// shared; callers treat metadata as read-mostly.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	cp := make(Metadata, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// GetString returns the string value for key, or "" when absent or of
// another type.
func (m Metadata) GetString(key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Value implements driver.Valuer. A nil document is stored as SQL NULL.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for TEXT/BLOB/NULL metadata columns.
func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}

	if len(data) == 0 {
		*m = nil
		return nil
	}

	var out Metadata
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	*m = out
	return nil
}
