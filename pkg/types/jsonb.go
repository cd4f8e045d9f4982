package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONObject stores an arbitrary JSON object inside a JSONB column.
type JSONObject map[string]any

// Value marshals the object for the driver.
func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	return marshalJSONB(map[string]any(j))
}

// Scan decodes a JSONB column into the object.
func (j *JSONObject) Scan(value interface{}) error {
	result := make(map[string]any)
	if err := scanJSONB(value, &result, "json object"); err != nil {
		return err
	}
	*j = result
	return nil
}

// marshalJSONB returns text rather than bytes so simple-protocol Postgres
// connections do not encode the payload as bytea.
func marshalJSONB(v any) (driver.Value, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

func scanJSONB(value interface{}, dest any, name string) error {
	if value == nil {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("%s: unsupported scan type %T", name, value)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
