package engine

import "github.com/zclconf/go-cty/cty"

// Connection is a typed edge from an upstream node's output to a
// downstream node's input. For per-state outputs the connection carries
// an axis projection: the pairs map each upstream state axis to the
// downstream axis the inherited input occupies, so a downstream
// multi-index resolves to exactly one upstream state. A connection from
// a join output carries a single value instead.
type Connection struct {
	src       *Node
	srcOutput string
	dst       *Node
	dstInput  string

	fromJoin bool
	pairs    [][2]int // (src axis, dst axis)
}

// Src returns the producing node and output name.
func (c *Connection) Src() (*Node, string) { return c.src, c.srcOutput }

// Dst returns the consuming node and input name.
func (c *Connection) Dst() (*Node, string) { return c.dst, c.dstInput }

// srcIndex projects a downstream multi-index onto the upstream state
// space.
func (c *Connection) srcIndex(idx []int) []int {
	srcIdx := make([]int, c.src.space.NDim())
	for _, p := range c.pairs {
		srcIdx[p[0]] = idx[p[1]]
	}
	return srcIdx
}

// readyAt reports whether the upstream result this connection needs for
// the given downstream index exists yet.
func (c *Connection) readyAt(idx []int) bool {
	if c.fromJoin {
		return c.src.JoinDone()
	}
	_, ok := c.src.ResultAt(c.srcOutput, c.src.space.Rank(c.srcIndex(idx)))
	return ok
}

// valueAt resolves the upstream value for the given downstream index.
func (c *Connection) valueAt(idx []int) (cty.Value, bool) {
	if c.fromJoin {
		r, ok := c.src.JoinResult(c.srcOutput)
		return r.Value, ok
	}
	return c.src.ResultAt(c.srcOutput, c.src.space.Rank(c.srcIndex(idx)))
}
