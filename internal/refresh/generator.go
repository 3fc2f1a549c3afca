package refresh

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/m1kah/livegrid/internal/store"
)

// Generator hands out sample records that have not been produced before.
type Generator interface {
	// HasMore reports whether Next can produce another record.
	HasMore() bool

	// Next returns the next sample record. The second result is false once
	// the generator is exhausted.
	Next() (store.Record, bool)
}

// defaultSampleNames are the stones introduced over time after the seed set.
var defaultSampleNames = []string{
	"Garnet",
	"Peridot",
	"Aquamarine",
	"Tourmaline",
	"Spinel",
	"Tanzanite",
	"Turquoise",
	"Jade",
	"Onyx",
	"Moonstone",
	"Citrine",
	"Alexandrite",
	"Lapis Lazuli",
	"Malachite",
	"Obsidian",
	"Morganite",
}

// SampleGenerator walks a fixed list of names, producing each once.
// It is safe for concurrent use.
type SampleGenerator struct {
	mu    sync.Mutex
	names []string
	next  int
}

// NewSampleGenerator creates a generator over names. With no names it uses
// the built-in sample list.
func NewSampleGenerator(names ...string) *SampleGenerator {
	if len(names) == 0 {
		names = defaultSampleNames
	}
	return &SampleGenerator{
		names: append([]string(nil), names...),
	}
}

// HasMore reports whether unseen names remain.
func (g *SampleGenerator) HasMore() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next < len(g.names)
}

// Next returns a zero-amount record for the next unseen name. The record
// carries no timestamp; the worker stamps it with the cycle's time.
func (g *SampleGenerator) Next() (store.Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.next >= len(g.names) {
		return store.Record{}, false
	}
	name := g.names[g.next]
	g.next++

	return store.Record{Name: name, Amount: decimal.Zero}, true
}

// Remaining returns how many names have not been produced yet.
func (g *SampleGenerator) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.names) - g.next
}
