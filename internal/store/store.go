package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateName is returned by Insert when a record with the same
	// name is already stored.
	ErrDuplicateName = errors.New("record name already exists")

	// ErrNotFound is returned by Update when no record has the given name.
	ErrNotFound = errors.New("record not found")
)

// Record is a single named row in the store.
//
// Name is the identity of a record and never changes once inserted.
type Record struct {
	// Name is the unique key of the record.
	Name string `json:"name"`

	// Amount is the running total, kept as an exact decimal.
	Amount decimal.Decimal `json:"amount"`

	// LastUpdated is the time the amount was last changed.
	LastUpdated time.Time `json:"last_updated"`
}

// FormattedUpdateTime renders LastUpdated in local time for display.
func (r Record) FormattedUpdateTime() string {
	return r.LastUpdated.Local().Format("15:04:05")
}

// Store defines the operations on the shared record table.
//
// Store implementations must be safe for one writer running concurrently
// with many readers.
type Store interface {
	// FindAll returns a snapshot of all records in insertion order.
	// The returned slice is a copy; modifications do not affect the store.
	FindAll() []Record

	// Find looks a record up by name.
	Find(name string) (Record, bool)

	// Insert appends a new record. Returns ErrDuplicateName if the name is
	// taken; existing records are never overwritten.
	Insert(record Record) error

	// Update writes back a record that the caller changed on its own copy.
	// Returns ErrNotFound for an unknown name.
	Update(record Record) error

	// Len returns the number of stored records.
	Len() int
}

// seedNames are the records every fresh store starts with.
var seedNames = []string{
	"Opal",
	"Ruby",
	"Sapphire",
	"Topaz",
	"Emerald",
	"Diamond",
	"Zircon",
	"Amethyst",
}

// Seed returns the default initial records: eight stones with a zero amount,
// stamped with now.
func Seed(now time.Time) []Record {
	return SeedNamed(now, seedNames...)
}

// SeedNamed builds zero-amount records for the given names stamped with now.
func SeedNamed(now time.Time, names ...string) []Record {
	records := make([]Record, 0, len(names))
	for _, name := range names {
		records = append(records, Record{
			Name:        name,
			Amount:      decimal.Zero,
			LastUpdated: now,
		})
	}
	return records
}

// DefaultSeedNames returns a copy of the names used by [Seed].
func DefaultSeedNames() []string {
	return append([]string(nil), seedNames...)
}

// ChangeBatch lists the names of records changed or added during one refresh
// cycle. An empty batch is valid and means nothing changed.
type ChangeBatch []string
