package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Totals maps user IDs to running totals. Iteration follows first-insertion
// order, which is also the tie-break order of rankings.
type Totals struct {
	order  []string
	counts map[string]int
}

// NewTotals returns an empty Totals.
func NewTotals() *Totals {
	return &Totals{counts: make(map[string]int)}
}

// Add adds delta to the user's total and returns the new value.
func (t *Totals) Add(userID string, delta int) int {
	t.ensure(userID)
	t.counts[userID] += delta
	return t.counts[userID]
}

// Set overwrites the user's total, keeping its position when already present.
func (t *Totals) Set(userID string, total int) {
	t.ensure(userID)
	t.counts[userID] = total
}

func (t *Totals) ensure(userID string) {
	if t.counts == nil {
		t.counts = make(map[string]int)
	}
	if _, ok := t.counts[userID]; !ok {
		t.order = append(t.order, userID)
	}
}

// Get returns the user's total, 0 when unknown.
func (t *Totals) Get(userID string) int {
	if t == nil {
		return 0
	}
	return t.counts[userID]
}

// Has reports whether the user has an entry.
func (t *Totals) Has(userID string) bool {
	if t == nil {
		return false
	}
	_, ok := t.counts[userID]
	return ok
}

// Len returns the number of users.
func (t *Totals) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Each calls fn for every user in insertion order until fn returns false.
func (t *Totals) Each(fn func(userID string, total int) bool) {
	if t == nil {
		return
	}
	for _, id := range t.order {
		if !fn(id, t.counts[id]) {
			return
		}
	}
}

// Users returns user IDs in insertion order.
func (t *Totals) Users() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Entries returns (user, total) pairs in insertion order.
func (t *Totals) Entries() []RankingEntry {
	out := make([]RankingEntry, 0, t.Len())
	t.Each(func(id string, total int) bool {
		out = append(out, RankingEntry{UserID: id, Count: total})
		return true
	})
	return out
}

// MarshalJSON encodes Totals as a JSON object with keys in insertion order.
func (t *Totals) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range t.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", t.counts[id])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping key order. A repeated key
// keeps its first position and its last value.
func (t *Totals) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*t = Totals{counts: make(map[string]int)}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("totals: expected object, got %v", tok)
	}
	out := NewTotals()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("totals: expected key, got %v", keyTok)
		}
		var total int
		if err := dec.Decode(&total); err != nil {
			return fmt.Errorf("totals: %s: %w", key, err)
		}
		out.Set(key, total)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*t = *out
	return nil
}
