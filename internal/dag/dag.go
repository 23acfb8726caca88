// Package dag provides the dependency graph a workflow keeps over its
// nodes: producers before consumers, with cycle rejection.
package dag

import (
	"fmt"
	"sync"
)

// Graph is a directed acyclic graph of string-identified nodes. All
// operations are concurrency-safe.
type Graph struct {
	mu    sync.RWMutex
	order []string                       // insertion order, for stable sorts
	deps  map[string]map[string]struct{} // node -> set of dependencies
	dents map[string]map[string]struct{} // node -> set of dependents
}

// New creates an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		deps:  make(map[string]map[string]struct{}),
		dents: make(map[string]map[string]struct{}),
	}
}

// AddNode registers a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.deps[id]; ok {
		return
	}
	g.order = append(g.order, id)
	g.deps[id] = make(map[string]struct{})
	g.dents[id] = make(map[string]struct{})
}

// AddEdge records that toID depends on fromID. An error is returned if
// either node is unknown or the edge is self-referential.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, toID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.deps[fromID]; !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	if _, ok := g.deps[toID]; !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}
	g.deps[toID][fromID] = struct{}{}
	g.dents[fromID][toID] = struct{}{}
	return nil
}

// Dependencies returns the IDs the given node depends on.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set, ok := g.deps[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return keysInOrder(g.order, set), nil
}

// Dependents returns the IDs that depend on the given node.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set, ok := g.dents[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return keysInOrder(g.order, set), nil
}

// TopoSort returns every node in dependency order: each node appears
// after all of its dependencies. Ties break on insertion order, so the
// result is stable. An error is returned if the graph has a cycle.
func (g *Graph) TopoSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	indegree := make(map[string]int, len(g.deps))
	for id, set := range g.deps {
		indegree[id] = len(set)
	}

	var ready []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	sorted := make([]string, 0, len(g.deps))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		sorted = append(sorted, id)
		for _, dent := range keysInOrder(g.order, g.dents[id]) {
			indegree[dent]--
			if indegree[dent] == 0 {
				ready = append(ready, dent)
			}
		}
	}

	if len(sorted) != len(g.deps) {
		remaining := make([]string, 0)
		for _, id := range g.order {
			if indegree[id] > 0 {
				remaining = append(remaining, id)
			}
		}
		return nil, fmt.Errorf("cycle detected involving node(s) %v", remaining)
	}
	return sorted, nil
}

// DetectCycles reports an error if the graph contains a cycle.
func (g *Graph) DetectCycles() error {
	_, err := g.TopoSort()
	return err
}

func keysInOrder(order []string, set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for _, id := range order {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
