package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Meta is an opaque JSON object. Keys are kept as decoded; values are never
// interpreted by the mirror.
type Meta map[string]any

// Value encodes m as a JSONB document. A nil map is stored as {}.
func (m Meta) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("meta encode: %w", err)
	}
	return b, nil
}

// Scan decodes a JSONB document into m.
func (m *Meta) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if b == nil {
		*m = nil
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("meta decode: %w", err)
	}
	*m = out
	return nil
}

// RawList is an ordered list of opaque JSON values (packages, remotes).
type RawList []json.RawMessage

// Value encodes l as a JSONB array. A nil list is stored as [].
func (l RawList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	b, err := json.Marshal([]json.RawMessage(l))
	if err != nil {
		return nil, fmt.Errorf("list encode: %w", err)
	}
	return b, nil
}

// Scan decodes a JSONB array into l.
func (l *RawList) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if b == nil {
		*l = nil
		return nil
	}
	var out []json.RawMessage
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("list decode: %w", err)
	}
	*l = out
	return nil
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json source type %T", src)
	}
}
