// Package store defines the record store contract shared by every component
// that crosses an invocation boundary: matches, calculation runs, cache
// entries, rating results, sagas and event records all live behind this
// interface.
package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Kind names a record family. Each kind maps to its own collection (Mongo)
// or bucket (in-memory).
type Kind string

// Record kinds.
const (
	KindMatch        Kind = "matches"
	KindRun          Kind = "calculation_runs"
	KindCache        Kind = "cache_entries"
	KindResult       Kind = "rating_results"
	KindSaga         Kind = "sagas"
	KindEvent        Kind = "events"
	KindTeamMetadata Kind = "team_metadata"
)

// Key identifies a single record.
type Key struct {
	Kind Kind
	ID   string
}

// Range is a half-open-or-closed bound on a string-ordered field, e.g. a
// YYYY-MM-DD date column.
type Range struct {
	Field string
	From  string
	To    string
}

// Query selects records of one kind by equality conditions, an optional
// range, and an optional post-filter. StartToken resumes a prior page.
type Query struct {
	Kind       Kind
	Conditions map[string]string
	Range      *Range
	Filter     map[string]string
	Limit      int
	StartToken string
}

// Page is one page of query results. NextToken is empty on the last page.
type Page struct {
	Items     []bson.Raw
	NextToken string
}

// Doc pairs an id with the record to write, for batched puts.
type Doc struct {
	ID   string
	Item any
}

// Store is the key/value and secondary-index query access used by the rating
// pipeline. Implementations must be safe for concurrent use.
type Store interface {
	// Get loads the record at key into out. Returns ErrNotFound on a miss.
	Get(ctx context.Context, key Key, out any) error

	// Put writes (or replaces) a record.
	Put(ctx context.Context, kind Kind, id string, item any) error

	// PutIfAbsent writes a record only if no record with that id exists.
	// Returns ErrConditionFailed when one does. This is the conditional
	// write backing the single-flight guard on calculation runs.
	PutIfAbsent(ctx context.Context, kind Kind, id string, item any) error

	// Update applies field sets to an existing record.
	// Returns ErrNotFound if the record does not exist.
	Update(ctx context.Context, key Key, set map[string]any) error

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, key Key) error

	// Query returns a page of records matching q.
	Query(ctx context.Context, q Query) (Page, error)

	// BatchPut writes records in bulk, replacing existing ids.
	BatchPut(ctx context.Context, kind Kind, docs []Doc) error

	// Close releases the underlying connection, if any.
	Close(ctx context.Context) error
}

// DecodeAll unmarshals every item of a page into T.
func DecodeAll[T any](items []bson.Raw) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, raw := range items {
		var v T
		if err := bson.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
