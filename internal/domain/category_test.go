package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupCategory(t *testing.T) {
	t.Parallel()

	c, ok := LookupCategory(" 4K-UHD ")
	require.True(t, ok)
	assert.Equal(t, "4K UHD", c.Label)
	assert.Equal(t, 0, c.Rank)

	_, ok = LookupCategory("vinyl")
	assert.False(t, ok)
	assert.Equal(t, "vinyl", CategoryLabel("vinyl"))
}

func TestPriorities(t *testing.T) {
	t.Parallel()

	def := DefaultPriorities()
	r, ok := def.Rank("serien")
	require.True(t, ok)
	assert.Equal(t, 3, r)

	p := PrioritiesFromOrder([]string{"serien", "4k-uhd", "serien", " "})
	assert.Equal(t, []string{"serien", "4k-uhd"}, p.Order())

	_, ok = p.Rank("blu-ray-filme")
	assert.False(t, ok)
}
