package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// UUIDList stores an ordered set of ids as a JSON array so the column works on
// both postgres (jsonb) and sqlite.
type UUIDList []uuid.UUID

func (l *UUIDList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = UUIDList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("UUIDList: unsupported Scan type %T", src)
	}
	if len(raw) == 0 {
		*l = UUIDList{}
		return nil
	}
	out := []uuid.UUID{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("UUIDList: %w", err)
	}
	*l = UUIDList(out)
	return nil
}

func (l UUIDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]uuid.UUID(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Contains reports whether id is in the list.
func (l UUIDList) Contains(id uuid.UUID) bool {
	for _, candidate := range l {
		if candidate == id {
			return true
		}
	}
	return false
}
