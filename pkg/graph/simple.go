package graph

import (
	"sort"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// EdgeAttrs are the attributes carried by an edge of the simple view.
type EdgeAttrs struct {
	Label       string
	Description string
}

// SimpleGraph is the undirected simple view of a Store used for
// partitioning. Node ids are assigned in sorted name order, so the same
// entity set always yields the same ids.
type SimpleGraph struct {
	g     *simple.UndirectedGraph
	names []string
	ids   map[string]int64
	attrs map[[2]int64]EdgeAttrs
}

// ToSimpleGraph builds the simple view: one node per entity and one edge per
// unordered pair of distinct endpoints. When several relationships join the
// same pair, the last one in insertion order provides the attributes.
// Self-loops are dropped.
func (s *Store) ToSimpleGraph() *SimpleGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.order))
	copy(names, s.order)
	sort.Strings(names)

	sg := &SimpleGraph{
		g:     simple.NewUndirectedGraph(),
		names: names,
		ids:   make(map[string]int64, len(names)),
		attrs: make(map[[2]int64]EdgeAttrs),
	}
	for i, name := range names {
		id := int64(i)
		sg.ids[name] = id
		sg.g.AddNode(simple.Node(id))
	}

	for _, r := range s.rels {
		u, v := sg.ids[r.SourceID], sg.ids[r.TargetID]
		if u == v {
			continue
		}
		if sg.g.Edge(u, v) == nil {
			sg.g.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(v)})
		}
		sg.attrs[pairKey(u, v)] = EdgeAttrs{Label: r.Label, Description: r.Description}
	}
	return sg
}

func pairKey(u, v int64) [2]int64 {
	if u > v {
		u, v = v, u
	}
	return [2]int64{u, v}
}

// Undirected exposes the graph to gonum algorithms.
func (sg *SimpleGraph) Undirected() gonum.Undirected {
	return sg.g
}

// Names returns the node names in id order.
func (sg *SimpleGraph) Names() []string {
	out := make([]string, len(sg.names))
	copy(out, sg.names)
	return out
}

// Name returns the name of node id.
func (sg *SimpleGraph) Name(id int64) string {
	return sg.names[id]
}

// ID returns the node id of name.
func (sg *SimpleGraph) ID(name string) (int64, bool) {
	id, ok := sg.ids[name]
	return id, ok
}

// NumNodes returns the number of nodes.
func (sg *SimpleGraph) NumNodes() int {
	return len(sg.names)
}

// NumEdges returns the number of edges.
func (sg *SimpleGraph) NumEdges() int {
	return len(sg.attrs)
}

// Edge returns the attributes of the edge between a and b.
func (sg *SimpleGraph) Edge(a, b string) (EdgeAttrs, bool) {
	u, ok := sg.ids[a]
	if !ok {
		return EdgeAttrs{}, false
	}
	v, ok := sg.ids[b]
	if !ok {
		return EdgeAttrs{}, false
	}
	attrs, ok := sg.attrs[pairKey(u, v)]
	return attrs, ok
}

// Neighbors returns the ids adjacent to id, ascending.
func (sg *SimpleGraph) Neighbors(id int64) []int64 {
	var out []int64
	nodes := sg.g.From(id)
	for nodes.Next() {
		out = append(out, nodes.Node().ID())
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
