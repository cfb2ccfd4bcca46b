package domain

import (
	"database/sql/driver"
	"encoding/json"
)

// MetadataMap stores free-form task metadata as a JSON TEXT column.
type MetadataMap map[string]any

func (m MetadataMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *MetadataMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}

	if len(data) == 0 || string(data) == "null" {
		*m = nil
		return nil
	}

	return json.Unmarshal(data, m)
}
