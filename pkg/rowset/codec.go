package rowset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type envelope struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Marshal serializes the set, preserving column order. Values are normalized first.
func Marshal(s *Set) ([]byte, error) {
	if s == nil {
		s = New(nil, nil)
	}
	rows := make([]Row, len(s.Rows))
	for i, row := range s.Rows {
		out := make(Row, len(row))
		for k, v := range row {
			out[k] = Normalize(v)
		}
		rows[i] = out
	}
	return json.Marshal(envelope{Columns: s.Columns, Rows: rows})
}

// Unmarshal parses a serialized set. Both the envelope form written by Marshal and a bare
// JSON array of row objects are accepted; for the latter columns are ordered lexically.
func Unmarshal(data []byte) (*Set, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty result payload")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	switch data[0] {
	case '{':
		var env envelope
		if err := dec.Decode(&env); err != nil {
			return nil, fmt.Errorf("failed to decode result set: %w", err)
		}
		fixNumbers(env.Rows)
		return New(env.Columns, env.Rows), nil
	case '[':
		var rows []Row
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("failed to decode result rows: %w", err)
		}
		fixNumbers(rows)
		return New(nil, rows), nil
	}
	return nil, fmt.Errorf("unexpected result payload starting with %q", data[0])
}

func fixNumbers(rows []Row) {
	for _, row := range rows {
		for k, v := range row {
			row[k] = fromJSONNumber(v)
		}
	}
}

// fromJSONNumber turns decoded json.Numbers back into int64 or float64 so cached rows look
// like fresh ones.
func fromJSONNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = fromJSONNumber(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = fromJSONNumber(t[k])
		}
		return t
	}
	return v
}
