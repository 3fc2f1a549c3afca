package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2017, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNewMemoryStore_Empty(t *testing.T) {
	store := NewMemoryStore()
	require.NotNil(t, store)
	assert.Empty(t, store.FindAll())
	assert.Equal(t, 0, store.Len())
}

func TestNewMemoryStore_SeedKeepsInsertionOrder(t *testing.T) {
	store := NewMemoryStore(Seed(t0)...)

	all := store.FindAll()
	require.Len(t, all, 8)

	names := make([]string, 0, len(all))
	for _, r := range all {
		names = append(names, r.Name)
		assert.True(t, r.Amount.IsZero(), "seed amount for %s", r.Name)
		assert.Equal(t, t0, r.LastUpdated)
	}
	assert.Equal(t, DefaultSeedNames(), names)
}

func TestNewMemoryStore_SeedSkipsDuplicates(t *testing.T) {
	store := NewMemoryStore(SeedNamed(t0, "Opal", "Ruby", "Opal")...)
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStore_Find(t *testing.T) {
	store := NewMemoryStore(Seed(t0)...)

	r, ok := store.Find("Topaz")
	require.True(t, ok)
	assert.Equal(t, "Topaz", r.Name)

	_, ok = store.Find("Kryptonite")
	assert.False(t, ok)
}

func TestMemoryStore_InsertRejectsDuplicate(t *testing.T) {
	store := NewMemoryStore(Seed(t0)...)

	err := store.Insert(Record{Name: "Ruby", Amount: decimal.NewFromInt(99)})
	require.ErrorIs(t, err, ErrDuplicateName)

	// existing record must not be overwritten
	r, _ := store.Find("Ruby")
	assert.True(t, r.Amount.IsZero())
	assert.Equal(t, 8, store.Len())
}

func TestMemoryStore_InsertAppends(t *testing.T) {
	store := NewMemoryStore(Seed(t0)...)

	require.NoError(t, store.Insert(Record{Name: "Garnet", LastUpdated: t0}))

	all := store.FindAll()
	require.Len(t, all, 9)
	assert.Equal(t, "Garnet", all[8].Name)
}

func TestMemoryStore_Update(t *testing.T) {
	store := NewMemoryStore(Seed(t0)...)

	r, _ := store.Find("Opal")
	r.Amount = r.Amount.Add(decimal.NewFromInt(42))
	r.LastUpdated = t0.Add(time.Second)
	require.NoError(t, store.Update(r))

	got, _ := store.Find("Opal")
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(42)))
	assert.Equal(t, t0.Add(time.Second), got.LastUpdated)
}

func TestMemoryStore_UpdateUnknown(t *testing.T) {
	store := NewMemoryStore()
	err := store.Update(Record{Name: "Nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_FindAllIsSnapshot(t *testing.T) {
	store := NewMemoryStore(Seed(t0)...)

	snapshot := store.FindAll()
	snapshot[0].Amount = decimal.NewFromInt(1000)

	r, _ := store.Find(snapshot[0].Name)
	assert.True(t, r.Amount.IsZero(), "mutating a snapshot must not affect the store")

	require.NoError(t, store.Insert(Record{Name: "Garnet"}))
	assert.Len(t, snapshot, 8, "snapshot must not grow after insert")
}

// TestMemoryStore_UniqueUnderConcurrentInserts verifies that no sequence of
// concurrent inserts produces two records with the same name.
func TestMemoryStore_UniqueUnderConcurrentInserts(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = store.Insert(Record{Name: fmt.Sprintf("stone-%d", j%20)})
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, r := range store.FindAll() {
		assert.False(t, seen[r.Name], "duplicate name %q", r.Name)
		seen[r.Name] = true
	}
	assert.Equal(t, 20, store.Len())
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(Seed(t0)...)

	var wg sync.WaitGroup

	// single writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			for _, r := range store.FindAll() {
				r.Amount = r.Amount.Add(decimal.NewFromInt(1))
				_ = store.Update(r)
			}
		}
	}()

	// concurrent readers
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				for _, r := range store.FindAll() {
					if r.Name == "" {
						t.Error("observed a record without a name")
					}
				}
				_, _ = store.Find("Opal")
			}
		}()
	}

	wg.Wait()

	r, _ := store.Find("Opal")
	assert.True(t, r.Amount.Equal(decimal.NewFromInt(200)))
}
