package refresh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleGenerator_WalksNamesOnce(t *testing.T) {
	gen := NewSampleGenerator("Garnet", "Jade")

	require.True(t, gen.HasMore())
	r, ok := gen.Next()
	require.True(t, ok)
	assert.Equal(t, "Garnet", r.Name)
	assert.True(t, r.Amount.IsZero())
	assert.True(t, r.LastUpdated.IsZero())

	r, ok = gen.Next()
	require.True(t, ok)
	assert.Equal(t, "Jade", r.Name)

	assert.False(t, gen.HasMore())
	_, ok = gen.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, gen.Remaining())
}

func TestSampleGenerator_DefaultNames(t *testing.T) {
	gen := NewSampleGenerator()
	assert.Equal(t, len(defaultSampleNames), gen.Remaining())
}

func TestSampleGenerator_CopiesInput(t *testing.T) {
	names := []string{"Garnet"}
	gen := NewSampleGenerator(names...)
	names[0] = "Changed"

	r, _ := gen.Next()
	assert.Equal(t, "Garnet", r.Name)
}
