package solver

import (
	"sync/atomic"
)

// Generation hands out request tokens. Only the holder of the latest token
// may commit results; every asynchronous step compares its token with the
// live one and drops its result on mismatch.
type Generation struct {
	current atomic.Uint64
}

// Token identifies one request
type Token uint64

// Next invalidates every outstanding token and returns a fresh one
func (g *Generation) Next() Token {
	return Token(g.current.Add(1))
}

// Invalidate makes every outstanding token stale
func (g *Generation) Invalidate() {
	g.current.Add(1)
}

// IsCurrent returns true if no newer request was issued since t
func (g *Generation) IsCurrent(t Token) bool {
	return Token(g.current.Load()) == t
}
