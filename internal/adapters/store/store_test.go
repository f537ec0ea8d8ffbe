package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runDoc struct {
	CalculationID string `bson:"calculation_id"`
	Period        string `bson:"period"`
	Status        string `bson:"status"`
	Date          string `bson:"date"`
	Matches       int    `bson:"matches"`
}

func TestMemGetPut(t *testing.T) {
	ctx := context.Background()
	s := NewMem()

	in := runDoc{CalculationID: "calc-1", Period: "2025-10-04", Status: "in_progress"}
	require.NoError(t, s.Put(ctx, KindRun, "calc-1", in))

	var out runDoc
	require.NoError(t, s.Get(ctx, Key{Kind: KindRun, ID: "calc-1"}, &out))
	assert.Equal(t, in, out)

	err := s.Get(ctx, Key{Kind: KindRun, ID: "missing"}, &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemPutIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMem()

	require.NoError(t, s.PutIfAbsent(ctx, KindRun, "calc-1", runDoc{CalculationID: "calc-1"}))

	err := s.PutIfAbsent(ctx, KindRun, "calc-1", runDoc{CalculationID: "calc-1"})
	assert.ErrorIs(t, err, ErrConditionFailed)

	// A different id is still free.
	assert.NoError(t, s.PutIfAbsent(ctx, KindRun, "calc-2", runDoc{CalculationID: "calc-2"}))
}

func TestMemUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMem()

	require.NoError(t, s.Put(ctx, KindRun, "calc-1", runDoc{CalculationID: "calc-1", Status: "in_progress"}))
	require.NoError(t, s.Update(ctx, Key{Kind: KindRun, ID: "calc-1"}, map[string]any{
		"status":  "completed",
		"matches": 42,
	}))

	var out runDoc
	require.NoError(t, s.Get(ctx, Key{Kind: KindRun, ID: "calc-1"}, &out))
	assert.Equal(t, "completed", out.Status)
	assert.Equal(t, 42, out.Matches)
	assert.Equal(t, "calc-1", out.CalculationID, "untouched fields survive")

	err := s.Update(ctx, Key{Kind: KindRun, ID: "missing"}, map[string]any{"status": "completed"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMem()

	require.NoError(t, s.Put(ctx, KindCache, "c1", runDoc{CalculationID: "c1"}))
	require.NoError(t, s.Delete(ctx, Key{Kind: KindCache, ID: "c1"}))

	err := s.Get(ctx, Key{Kind: KindCache, ID: "c1"}, &runDoc{})
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing record is fine.
	assert.NoError(t, s.Delete(ctx, Key{Kind: KindCache, ID: "c1"}))
}

func TestMemQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMem()

	docs := []runDoc{
		{CalculationID: "a", Period: "2025-10-04", Status: "completed", Date: "2025-09-01"},
		{CalculationID: "b", Period: "2025-10-04", Status: "in_progress", Date: "2025-09-15"},
		{CalculationID: "c", Period: "2025-10-05", Status: "in_progress", Date: "2025-10-01"},
		{CalculationID: "d", Period: "2025-10-04", Status: "in_progress", Date: "2025-12-25"},
	}
	for _, d := range docs {
		require.NoError(t, s.Put(ctx, KindRun, d.CalculationID, d))
	}

	t.Run("conditions select by equality", func(t *testing.T) {
		page, err := s.Query(ctx, Query{
			Kind:       KindRun,
			Conditions: map[string]string{"period": "2025-10-04", "status": "in_progress"},
		})
		require.NoError(t, err)
		got, err := DecodeAll[runDoc](page.Items)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].CalculationID)
		assert.Equal(t, "d", got[1].CalculationID)
	})

	t.Run("range bounds are inclusive", func(t *testing.T) {
		page, err := s.Query(ctx, Query{
			Kind:  KindRun,
			Range: &Range{Field: "date", From: "2025-09-01", To: "2025-10-01"},
		})
		require.NoError(t, err)
		assert.Len(t, page.Items, 3)
	})

	t.Run("filter narrows a range", func(t *testing.T) {
		page, err := s.Query(ctx, Query{
			Kind:   KindRun,
			Range:  &Range{Field: "date", From: "2025-09-01", To: "2025-12-31"},
			Filter: map[string]string{"status": "completed"},
		})
		require.NoError(t, err)
		got, err := DecodeAll[runDoc](page.Items)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].CalculationID)
	})

	t.Run("pagination walks every record exactly once", func(t *testing.T) {
		var all []runDoc
		token := ""
		pages := 0
		for {
			page, err := s.Query(ctx, Query{Kind: KindRun, Limit: 3, StartToken: token})
			require.NoError(t, err)
			got, err := DecodeAll[runDoc](page.Items)
			require.NoError(t, err)
			all = append(all, got...)
			pages++
			if page.NextToken == "" {
				break
			}
			token = page.NextToken
		}
		assert.Len(t, all, len(docs))
		assert.Equal(t, 2, pages)
	})
}

func TestMemBatchPut(t *testing.T) {
	ctx := context.Background()
	s := NewMem()

	batch := []Doc{
		{ID: "r1", Item: runDoc{CalculationID: "r1"}},
		{ID: "r2", Item: runDoc{CalculationID: "r2"}},
		{ID: "r3", Item: runDoc{CalculationID: "r3"}},
	}
	require.NoError(t, s.BatchPut(ctx, KindResult, batch))

	page, err := s.Query(ctx, Query{Kind: KindResult})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
}

func TestMemConcurrentReads(t *testing.T) {
	ctx := context.Background()
	s := NewMem()
	require.NoError(t, s.Put(ctx, KindRun, "calc-1", runDoc{CalculationID: "calc-1"}))

	// Readers touching kinds no writer has seen yet must not mutate shared
	// state; hammer them in parallel so -race has something to catch.
	kinds := []Kind{KindMatch, KindRun, KindCache, KindResult, KindSaga, KindEvent, KindTeamMetadata}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		for _, kind := range kinds {
			wg.Add(2)
			go func(kind Kind) {
				defer wg.Done()
				var out runDoc
				err := s.Get(ctx, Key{Kind: kind, ID: "missing"}, &out)
				assert.ErrorIs(t, err, ErrNotFound)
			}(kind)
			go func(kind Kind) {
				defer wg.Done()
				page, err := s.Query(ctx, Query{Kind: kind})
				assert.NoError(t, err)
				if kind == KindRun {
					assert.Len(t, page.Items, 1)
				} else {
					assert.Empty(t, page.Items)
				}
			}(kind)
		}
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, s.Put(ctx, KindRun, "calc-1", runDoc{CalculationID: "calc-1", Matches: n}))
		}(i)
	}
	wg.Wait()
}

func TestMemClose(t *testing.T) {
	ctx := context.Background()
	s := NewMem()
	require.NoError(t, s.Close(ctx))

	err := s.Put(ctx, KindRun, "calc-1", runDoc{})
	assert.ErrorIs(t, err, ErrClosed)
	err = s.Get(ctx, Key{Kind: KindRun, ID: "calc-1"}, &runDoc{})
	assert.ErrorIs(t, err, ErrClosed)
}
