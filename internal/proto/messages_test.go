package proto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToStruct_NormalizesRowValues(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	url := "https://cdn/x.png"
	q := Query{
		Collection: "profiles",
		Rows: []map[string]any{{
			"id":                       "u1",
			"subscription_expiry_date": at,
			"avatar_url":               &url,
			"raw_payload":              json.RawMessage(`{"a":1}`),
			"tags":                     []string{"x"},
		}},
		OnConflict: []string{"id"},
	}

	s, err := ToStruct(q)
	require.NoError(t, err)

	row := s.Fields["rows"].GetListValue().Values[0].GetStructValue().AsMap()
	assert.Equal(t, "2026-03-01T12:00:00Z", row["subscription_expiry_date"])
	assert.Equal(t, url, row["avatar_url"])
	assert.Equal(t, map[string]any{"a": float64(1)}, row["raw_payload"])
	assert.Equal(t, []any{"x"}, row["tags"])
}

func TestFromStruct_TypedRoundTrip(t *testing.T) {
	in := Query{
		Collection: "bookmarks",
		Filter:     map[string]any{"user_id": "u1"},
		OrderBy:    "created_at",
		Desc:       true,
		Limit:      5,
	}
	s, err := ToStruct(in)
	require.NoError(t, err)

	var out Query
	require.NoError(t, FromStruct(s, &out))
	assert.Equal(t, in, out)
}

func TestFromStruct_Nil(t *testing.T) {
	var r Result
	require.NoError(t, FromStruct(nil, &r))
	assert.Empty(t, r.Rows)
	assert.Zero(t, r.Count)
}

func TestFullMethod(t *testing.T) {
	assert.Equal(t, "/codex.v1.Codex/Select", FullMethod(MethodSelect))
}
