package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// Mem is an in-memory Store used by tests and single-binary local runs.
// Records are kept as marshaled BSON so reads always see deep copies, the
// same isolation a remote store gives.
type Mem struct {
	mu     sync.RWMutex
	data   map[Kind]map[string]bson.Raw
	closed bool
}

var _ Store = (*Mem)(nil)

// NewMem creates an empty in-memory store.
func NewMem() *Mem {
	return &Mem{data: make(map[Kind]map[string]bson.Raw)}
}

// bucket returns the kind's bucket, creating it on first write. Callers must
// hold the write lock; readers use the map directly (a nil bucket reads as
// empty) so RLock sections never mutate shared state.
func (m *Mem) bucket(kind Kind) map[string]bson.Raw {
	b, ok := m.data[kind]
	if !ok {
		b = make(map[string]bson.Raw)
		m.data[kind] = b
	}
	return b
}

// Get loads the record at key into out.
func (m *Mem) Get(_ context.Context, key Key, out any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	raw, ok := m.data[key.Kind][key.ID]
	if !ok {
		return fmt.Errorf("%s/%s: %w", key.Kind, key.ID, ErrNotFound)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", key.Kind, key.ID, err)
	}
	return nil
}

// Put writes (or replaces) a record.
func (m *Mem) Put(_ context.Context, kind Kind, id string, item any) error {
	raw, err := bson.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", kind, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.bucket(kind)[id] = raw
	return nil
}

// PutIfAbsent writes a record only if the id is unoccupied. The check and
// the write happen under one lock, so two near-simultaneous callers cannot
// both succeed.
func (m *Mem) PutIfAbsent(_ context.Context, kind Kind, id string, item any) error {
	raw, err := bson.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", kind, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	b := m.bucket(kind)
	if _, exists := b[id]; exists {
		return fmt.Errorf("%s/%s: %w", kind, id, ErrConditionFailed)
	}
	b[id] = raw
	return nil
}

// Update applies field sets to an existing record.
func (m *Mem) Update(_ context.Context, key Key, set map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	b := m.bucket(key.Kind)
	raw, ok := b[key.ID]
	if !ok {
		return fmt.Errorf("%s/%s: %w", key.Kind, key.ID, ErrNotFound)
	}

	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode %s/%s: %w", key.Kind, key.ID, err)
	}
	for field, value := range set {
		doc[field] = value
	}
	updated, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", key.Kind, key.ID, err)
	}
	b[key.ID] = updated
	return nil
}

// Delete removes a record if present.
func (m *Mem) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.bucket(key.Kind), key.ID)
	return nil
}

// Query returns a page of records matching q. Results are ordered by id so
// continuation tokens are stable.
func (m *Mem) Query(_ context.Context, q Query) (Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Page{}, ErrClosed
	}

	b := m.data[q.Kind]
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var page Page
	var last string
	for _, id := range ids {
		if q.StartToken != "" && id <= q.StartToken {
			continue
		}
		raw := b[id]
		if !matches(raw, q) {
			continue
		}
		if q.Limit > 0 && len(page.Items) == q.Limit {
			// One more match beyond the limit means another page exists.
			page.NextToken = last
			return page, nil
		}
		page.Items = append(page.Items, raw)
		last = id
	}
	return page, nil
}

// BatchPut writes records in bulk.
func (m *Mem) BatchPut(ctx context.Context, kind Kind, docs []Doc) error {
	for _, d := range docs {
		if err := m.Put(ctx, kind, d.ID, d.Item); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the store closed; later operations fail with ErrClosed.
func (m *Mem) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func matches(raw bson.Raw, q Query) bool {
	for field, want := range q.Conditions {
		if stringField(raw, field) != want {
			return false
		}
	}
	if q.Range != nil {
		v := stringField(raw, q.Range.Field)
		if v < q.Range.From || v > q.Range.To {
			return false
		}
	}
	for field, want := range q.Filter {
		if stringField(raw, field) != want {
			return false
		}
	}
	return true
}

func stringField(raw bson.Raw, field string) string {
	v, err := raw.LookupErr(field)
	if err != nil {
		return ""
	}
	s, ok := v.StringValueOK()
	if !ok {
		return ""
	}
	return s
}
