// Package graph provides dependency graph snapshots for module linking.
//
// It records which node requires which, and groups nodes into strongly
// connected components so callers can report cycles and linking order.
package graph

// Graph is a directed dependency graph over comparable nodes.
// Thread-safe for reads after Build(). Designed to be built once per query.
type Graph[T comparable] struct {
	// index maps a node to its position in nodes
	index map[T]int

	// nodes lists nodes in discovery order
	nodes []T

	// edges[i] lists the positions node i requires, in declaration order
	edges [][]int
}

// New creates an empty graph
func New[T comparable]() *Graph[T] {
	return &Graph[T]{index: make(map[T]int)}
}

// Build walks everything reachable from roots using next to list each
// node's dependencies. Build is the main entry point - call once and
// query the result.
func Build[T comparable](roots []T, next func(T) []T) *Graph[T] {
	g := New[T]()
	var visit func(n T)
	visit = func(n T) {
		if _, ok := g.index[n]; ok {
			return
		}
		g.AddNode(n)
		for _, dep := range next(n) {
			visit(dep)
			g.AddEdge(n, dep)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	return g
}

// AddNode adds n if absent and returns its position
func (g *Graph[T]) AddNode(n T) int {
	if i, ok := g.index[n]; ok {
		return i
	}
	g.nodes = append(g.nodes, n)
	g.edges = append(g.edges, nil)
	g.index[n] = len(g.nodes) - 1
	return len(g.nodes) - 1
}

// AddEdge records that from requires to. Duplicate edges are ignored.
func (g *Graph[T]) AddEdge(from, to T) {
	f, t := g.AddNode(from), g.AddNode(to)
	for _, e := range g.edges[f] {
		if e == t {
			return
		}
	}
	g.edges[f] = append(g.edges[f], t)
}

// Len returns the number of nodes
func (g *Graph[T]) Len() int {
	return len(g.nodes)
}

// Nodes returns nodes in discovery order
func (g *Graph[T]) Nodes() []T {
	result := make([]T, len(g.nodes))
	copy(result, g.nodes)
	return result
}

// Requires returns the direct dependencies of n
func (g *Graph[T]) Requires(n T) []T {
	i, ok := g.index[n]
	if !ok {
		return nil
	}
	result := make([]T, len(g.edges[i]))
	for j, e := range g.edges[i] {
		result[j] = g.nodes[e]
	}
	return result
}

// RequiredBy returns the nodes that directly require n
func (g *Graph[T]) RequiredBy(n T) []T {
	t, ok := g.index[n]
	if !ok {
		return nil
	}
	var result []T
	for i, edges := range g.edges {
		for _, e := range edges {
			if e == t {
				result = append(result, g.nodes[i])
				break
			}
		}
	}
	return result
}

// Components returns the strongly connected components using Tarjan's
// algorithm. Components come out dependencies first; within a component
// nodes are in stack pop order, ending with the component root.
func (g *Graph[T]) Components() [][]T {
	const unvisited = -1
	index := make([]int, len(g.nodes))
	lowlink := make([]int, len(g.nodes))
	onStack := make([]bool, len(g.nodes))
	for i := range index {
		index[i] = unvisited
	}

	var (
		stack  []int
		next   int
		result [][]T
	)

	var strongConnect func(v int)
	strongConnect = func(v int) {
		index[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if index[w] == unvisited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], index[w])
			}
		}

		if lowlink[v] != index[v] {
			return
		}
		var component []T
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			component = append(component, g.nodes[w])
			if w == v {
				break
			}
		}
		result = append(result, component)
	}

	for v := range g.nodes {
		if index[v] == unvisited {
			strongConnect(v)
		}
	}
	return result
}

// Cycles returns only components with more than one node or a self edge
func (g *Graph[T]) Cycles() [][]T {
	var result [][]T
	for _, c := range g.Components() {
		if len(c) > 1 {
			result = append(result, c)
			continue
		}
		i := g.index[c[0]]
		for _, e := range g.edges[i] {
			if e == i {
				result = append(result, c)
				break
			}
		}
	}
	return result
}
