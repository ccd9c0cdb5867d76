package solver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerationLatestTokenWins(t *testing.T) {
	var g Generation

	first := g.Next()
	require.True(t, g.IsCurrent(first))

	second := g.Next()
	require.False(t, g.IsCurrent(first))
	require.True(t, g.IsCurrent(second))

	g.Invalidate()
	require.False(t, g.IsCurrent(second))
}
