package storage

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// TimestampPrecision is the resolution of created_at and updated_at.
const TimestampPrecision = time.Millisecond

var reservedFields = []string{"id", "created_at", "updated_at"}

// Now returns the current UTC time at timestamp precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(TimestampPrecision)
}

// NextUpdatedAt returns at, or prev plus one tick when at would not move the
// timestamp forward.
func NextUpdatedAt(prev, at time.Time) time.Time {
	at = at.UTC().Truncate(TimestampPrecision)
	if floor := prev.UTC().Truncate(TimestampPrecision).Add(TimestampPrecision); at.Before(floor) {
		return floor
	}
	return at
}

// StripReserved removes id and timestamp keys from fields.
func StripReserved(fields map[string]json.RawMessage) {
	for _, k := range reservedFields {
		delete(fields, k)
	}
}

// ApplyPatch overlays fields onto the JSON object data.
func ApplyPatch(data json.RawMessage, fields map[string]json.RawMessage) (json.RawMessage, error) {
	merged := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &merged); err != nil {
			return nil, fmt.Errorf("decoding stored document: %w", err)
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	StripReserved(merged)
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return out, nil
}

// MatchDocument reports whether doc satisfies every equality filter in where.
func MatchDocument(doc Document, where map[string]any) bool {
	if len(where) == 0 {
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc.Data, &fields); err != nil {
		return false
	}
	for k, want := range where {
		got, ok := fields[k]
		if !ok {
			return false
		}
		wantJSON, err := json.Marshal(want)
		if err != nil {
			return false
		}
		if !jsonEqual(got, wantJSON) {
			return false
		}
	}
	return true
}

func jsonEqual(a, b []byte) bool {
	var av, bv any
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return bytes.Equal(a, b)
	}
	return fmt.Sprint(av) == fmt.Sprint(bv)
}

// SortDocuments orders docs by q.OrderBy, breaking ties by ID ascending so
// repeated listings are identical.
func SortDocuments(docs []Document, q Query) {
	if q.OrderBy == "" {
		slices.SortStableFunc(docs, func(a, b Document) int { return strings.Compare(a.ID, b.ID) })
		return
	}
	keys := make(map[string]sortKey, len(docs))
	for _, d := range docs {
		keys[d.ID] = extractSortKey(d, q.OrderBy)
	}
	slices.SortStableFunc(docs, func(a, b Document) int {
		c := keys[a.ID].compare(keys[b.ID])
		if q.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

type sortKey struct {
	kind int // 0 missing, 1 bool, 2 number, 3 string, 4 time
	b    bool
	n    float64
	s    string
	t    time.Time
}

func extractSortKey(d Document, field string) sortKey {
	switch field {
	case "created_at":
		return sortKey{kind: 4, t: d.CreatedAt}
	case "updated_at":
		return sortKey{kind: 4, t: d.UpdatedAt}
	case "id":
		return sortKey{kind: 3, s: d.ID}
	}
	var fields map[string]any
	if err := json.Unmarshal(d.Data, &fields); err != nil {
		return sortKey{}
	}
	switch v := fields[field].(type) {
	case bool:
		return sortKey{kind: 1, b: v}
	case float64:
		return sortKey{kind: 2, n: v}
	case string:
		return sortKey{kind: 3, s: v}
	}
	return sortKey{}
}

// compare puts missing values first, then orders within a kind.
func (k sortKey) compare(o sortKey) int {
	if k.kind != o.kind {
		return cmp.Compare(k.kind, o.kind)
	}
	switch k.kind {
	case 1:
		switch {
		case k.b == o.b:
			return 0
		case !k.b:
			return -1
		default:
			return 1
		}
	case 2:
		return cmp.Compare(k.n, o.n)
	case 3:
		return strings.Compare(k.s, o.s)
	case 4:
		return k.t.Compare(o.t)
	}
	return 0
}

// CloneDocument returns a deep copy of d.
func CloneDocument(d Document) Document {
	d.Data = append(json.RawMessage(nil), d.Data...)
	return d
}
