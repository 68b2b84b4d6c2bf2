package scoring

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// AnswerValue is a learner's answer to one question. On the wire it is a
// JSON string (single choice), a JSON array of strings (multiple choice) or
// null. Any other shape decodes without error into a malformed value that
// earns no credit.
type AnswerValue struct {
	single    string
	multi     []string
	isMulti   bool
	present   bool
	malformed bool
}

func Single(id string) AnswerValue {
	return AnswerValue{single: id, present: true}
}

func Multi(ids ...string) AnswerValue {
	cp := make([]string, len(ids))
	copy(cp, ids)
	return AnswerValue{multi: cp, isMulti: true, present: true}
}

// Present reports whether the learner answered the question at all.
func (v AnswerValue) Present() bool { return v.present }

func (v AnswerValue) IsMulti() bool { return v.present && v.isMulti }

func (v AnswerValue) Malformed() bool { return v.malformed }

// SingleID returns the scalar id and true when the value is a single choice.
func (v AnswerValue) SingleID() (string, bool) {
	if !v.present || v.isMulti || v.malformed {
		return "", false
	}
	return v.single, true
}

// IDs returns a copy of the selected ids regardless of shape.
func (v AnswerValue) IDs() []string {
	switch {
	case !v.present || v.malformed:
		return nil
	case v.isMulti:
		out := make([]string, len(v.multi))
		copy(out, v.multi)
		return out
	default:
		return []string{v.single}
	}
}

// Contains reports whether id is part of the selection.
func (v AnswerValue) Contains(id string) bool {
	if !v.present || v.malformed {
		return false
	}
	if !v.isMulti {
		return v.single == id
	}
	for _, s := range v.multi {
		if s == id {
			return true
		}
	}
	return false
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch {
	case !v.present || v.malformed:
		return []byte("null"), nil
	case v.isMulti:
		if v.multi == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.multi)
	default:
		return json.Marshal(v.single)
	}
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	*v = AnswerValue{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*v = Single(s)
		return nil
	}

	var arr []string
	if err := json.Unmarshal(trimmed, &arr); err == nil {
		*v = Multi(arr...)
		return nil
	}

	v.present = true
	v.malformed = true
	return nil
}

// AnswerSheet maps question id to the learner's answer.
type AnswerSheet map[string]AnswerValue

// Clone returns a deep copy of the sheet.
func (s AnswerSheet) Clone() AnswerSheet {
	out := make(AnswerSheet, len(s))
	for k, v := range s {
		if v.isMulti {
			v = AnswerValue{multi: v.IDs(), isMulti: true, present: true}
		}
		out[k] = v
	}
	return out
}

// Value stores the sheet as a JSON column.
func (s AnswerSheet) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]AnswerValue(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *AnswerSheet) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*s = AnswerSheet{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scoring: cannot scan %T into AnswerSheet", src)
	}
	m := map[string]AnswerValue{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
	}
	*s = m
	return nil
}

// GormDataType lets gorm migrate the column as JSON.
func (AnswerSheet) GormDataType() string { return "json" }
