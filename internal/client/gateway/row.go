package gateway

import (
	"encoding/json"
	"time"
)

// Row is one remote record. Values arrive JSON-shaped: strings, float64,
// bool, nested maps/lists; timestamps are RFC 3339 strings.
type Row map[string]any

// Filter selects rows by column equality.
type Filter map[string]any

func (r Row) String(col string) string {
	s, _ := r[col].(string)
	return s
}

func (r Row) StringPtr(col string) *string {
	s, ok := r[col].(string)
	if !ok {
		return nil
	}
	return &s
}

func (r Row) Int(col string) int {
	switch v := r[col].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

func (r Row) Bool(col string) bool {
	b, _ := r[col].(bool)
	return b
}

// Time parses col as an RFC 3339 timestamp; the zero time when absent.
func (r Row) Time(col string) time.Time {
	switch v := r[col].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (r Row) TimePtr(col string) *time.Time {
	t := r.Time(col)
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r Row) Strings(col string) []string {
	switch v := r[col].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Raw re-encodes col as JSON; nil when absent.
func (r Row) Raw(col string) json.RawMessage {
	v, ok := r[col]
	if !ok || v == nil {
		return nil
	}
	if s, isStr := v.(string); isStr && json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// Timestamp formats t the way rows carry times on the wire.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
