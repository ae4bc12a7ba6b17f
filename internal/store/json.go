package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

// alarmMapJSON adapts model.AlarmMap to a JSONB column (spec.md §3's alarm
// record shape persisted verbatim per entity).
type alarmMapJSON model.AlarmMap

func (m alarmMapJSON) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]*model.AlarmRecord(m))
}

func (m *alarmMapJSON) Scan(src any) error {
	if src == nil {
		*m = alarmMapJSON{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("alarmMapJSON: unsupported scan type %T", src)
	}
	var out map[string]*model.AlarmRecord
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("alarmMapJSON: %w", err)
	}
	*m = alarmMapJSON(out)
	return nil
}

// settingsJSON adapts the free-form Application.Settings/State maps to
// JSONB columns.
type settingsJSON map[string]any

func (m settingsJSON) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

func (m *settingsJSON) Scan(src any) error {
	if src == nil {
		*m = settingsJSON{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("settingsJSON: unsupported scan type %T", src)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("settingsJSON: %w", err)
	}
	*m = settingsJSON(out)
	return nil
}

// stringSetJSON adapts the reeval_fields ⊆ {status, curr_state, health} set
// (spec.md §3) to a JSON array column.
type stringSetJSON map[string]struct{}

func (m stringSetJSON) Value() (driver.Value, error) {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	return json.Marshal(names)
}

func (m *stringSetJSON) Scan(src any) error {
	if src == nil {
		*m = stringSetJSON{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("stringSetJSON: unsupported scan type %T", src)
	}
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return fmt.Errorf("stringSetJSON: %w", err)
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	*m = stringSetJSON(set)
	return nil
}
