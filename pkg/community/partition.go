package community

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/soundprediction/go-graphrag/pkg/graph"
	"github.com/soundprediction/go-graphrag/pkg/types"
	"github.com/soundprediction/go-graphrag/pkg/utils"
)

// Algorithm names the community detection step run at each level.
type Algorithm string

const (
	// AlgorithmLeiden is Louvain modularity optimization followed by a
	// connectivity refinement, so every community is connected.
	AlgorithmLeiden Algorithm = "leiden"
	// AlgorithmLabelPropagation is weighted label propagation.
	AlgorithmLabelPropagation Algorithm = "label-propagation"
)

// ParseAlgorithm parses an algorithm name. Empty selects Leiden.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return AlgorithmLeiden, nil
	case AlgorithmLeiden, AlgorithmLabelPropagation:
		return a, nil
	default:
		return "", fmt.Errorf("unknown community algorithm %q", s)
	}
}

const (
	DefaultMaxClusterSize = 5
	DefaultResolution     = 1.0
	DefaultSeed           = 42
	DefaultMaxLevels      = 16

	// resolutionAttempts bounds how often the resolution is doubled when an
	// oversized community will not split.
	resolutionAttempts = 4
)

// Config controls partitioning.
type Config struct {
	MaxClusterSize int
	Resolution     float64
	Seed           uint64
	MaxLevels      int
	Algorithm      Algorithm
}

// DefaultConfig returns the default partitioning settings.
func DefaultConfig() Config {
	return Config{
		MaxClusterSize: DefaultMaxClusterSize,
		Resolution:     DefaultResolution,
		Seed:           DefaultSeed,
		MaxLevels:      DefaultMaxLevels,
		Algorithm:      AlgorithmLeiden,
	}
}

// Partitioner computes a hierarchical partition with bounded leaf size.
type Partitioner struct {
	config Config
	logger *slog.Logger
}

// NewPartitioner creates a partitioner. Zero fields take their defaults.
func NewPartitioner(config Config, logger *slog.Logger) (*Partitioner, error) {
	if config.MaxClusterSize == 0 {
		config.MaxClusterSize = DefaultMaxClusterSize
	}
	if err := utils.ValidateMaxClusterSize(config.MaxClusterSize); err != nil {
		return nil, err
	}
	if config.Resolution <= 0 {
		config.Resolution = DefaultResolution
	}
	if config.MaxLevels <= 0 {
		config.MaxLevels = DefaultMaxLevels
	}
	algo, err := ParseAlgorithm(string(config.Algorithm))
	if err != nil {
		return nil, err
	}
	config.Algorithm = algo
	if logger == nil {
		logger = slog.Default()
	}
	return &Partitioner{config: config, logger: logger}, nil
}

// Config returns the effective configuration.
func (p *Partitioner) Config() Config {
	return p.config
}

// Partition splits sg into a hierarchy of communities. Level 0 partitions
// the whole graph; each further level re-partitions every community larger
// than MaxClusterSize on its induced subgraph and carries the others down
// unchanged, so every level covers every node exactly once and the deepest
// level respects the size bound. The result depends only on the graph and
// the configuration.
func (p *Partitioner) Partition(ctx context.Context, sg *graph.SimpleGraph) (*types.Hierarchy, error) {
	h := &types.Hierarchy{MaxClusterSize: p.config.MaxClusterSize}
	if sg == nil || sg.NumNodes() == 0 {
		return h, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := rand.NewPCG(p.config.Seed, p.config.Seed^0x9e3779b97f4a7c15)
	g := sg.Undirected()

	all := make([]int64, sg.NumNodes())
	for i := range all {
		all[i] = int64(i)
	}

	groups := p.detect(g, all, p.config.Resolution, src)
	h.Modularity = modularity(g, sg.NumEdges(), groups, p.config.Resolution)

	nextID := 0
	level := make([]types.Community, 0, len(groups))
	for _, grp := range groups {
		level = append(level, p.newCommunity(sg, &nextID, 0, types.NoParent, grp))
	}
	h.Levels = append(h.Levels, level)

	for depth := 1; oversized(level, p.config.MaxClusterSize); depth++ {
		// The last allowed level chunks whatever is still too large.
		forceChunk := depth >= p.config.MaxLevels-1

		var next [][]int64
		var parents []int
		for _, c := range level {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			members := memberIDs(sg, c.Members)
			if c.Size() <= p.config.MaxClusterSize {
				next = append(next, members)
				parents = append(parents, c.ID)
				continue
			}

			var split [][]int64
			if forceChunk {
				split = bfsChunks(g, members, p.config.MaxClusterSize)
			} else {
				split = p.splitOversized(g, members, src)
			}
			for _, grp := range split {
				next = append(next, grp)
				parents = append(parents, c.ID)
			}
		}

		order := make([]int, len(next))
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(i, j int) bool { return next[order[i]][0] < next[order[j]][0] })

		level = make([]types.Community, 0, len(next))
		for _, i := range order {
			level = append(level, p.newCommunity(sg, &nextID, depth, parents[i], next[i]))
		}
		h.Levels = append(h.Levels, level)
	}

	for depth, lvl := range h.Levels {
		for _, c := range lvl {
			for _, m := range c.Members {
				h.Records = append(h.Records, types.ClusterRecord{
					Node:          m,
					Cluster:       c.ID,
					ParentCluster: c.ParentID,
					Level:         depth,
					IsFinal:       c.Final,
				})
			}
		}
	}

	p.logger.InfoContext(ctx, "graph partitioned",
		"nodes", sg.NumNodes(),
		"edges", sg.NumEdges(),
		"levels", len(h.Levels),
		"communities", len(h.Finest()),
		"modularity", h.Modularity,
		"algorithm", string(p.config.Algorithm))
	return h, nil
}

func (p *Partitioner) newCommunity(sg *graph.SimpleGraph, nextID *int, level, parent int, ids []int64) types.Community {
	members := make([]string, len(ids))
	for i, id := range ids {
		members[i] = sg.Name(id)
	}
	c := types.Community{
		ID:       *nextID,
		Level:    level,
		ParentID: parent,
		Members:  members,
		Final:    len(members) <= p.config.MaxClusterSize,
	}
	*nextID++
	return c
}

func oversized(level []types.Community, limit int) bool {
	for _, c := range level {
		if c.Size() > limit {
			return true
		}
	}
	return false
}

func memberIDs(sg *graph.SimpleGraph, names []string) []int64 {
	ids := make([]int64, len(names))
	for i, n := range names {
		ids[i], _ = sg.ID(n)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// splitOversized partitions one community's induced subgraph into at least
// two groups. The resolution doubles while detection keeps returning a
// single group; members are chunked in BFS order as a last resort.
func (p *Partitioner) splitOversized(g gonum.Undirected, members []int64, src rand.Source) [][]int64 {
	res := p.config.Resolution
	for attempt := 0; attempt < resolutionAttempts; attempt++ {
		groups := p.detect(g, members, res, src)
		if len(groups) > 1 {
			return groups
		}
		res *= 2
	}
	p.logger.Debug("community did not split, chunking", "size", len(members))
	return bfsChunks(g, members, p.config.MaxClusterSize)
}

// detect runs the configured algorithm on the subgraph induced by members and
// splits every resulting community into its connected components. Groups
// are sorted internally and ordered by smallest member.
func (p *Partitioner) detect(g gonum.Undirected, members []int64, resolution float64, src rand.Source) [][]int64 {
	sub := induced(g, members)

	var raw [][]int64
	switch {
	case sub.Edges().Len() == 0:
		// Nothing to optimize; components below are the singletons.
		raw = [][]int64{members}
	case p.config.Algorithm == AlgorithmLabelPropagation:
		raw = labelPropagation(sub, members, src)
	default:
		reduced := community.Modularize(sub, resolution, src)
		for _, comm := range reduced.Communities() {
			raw = append(raw, nodeIDs(comm))
		}
	}

	var groups [][]int64
	for _, comm := range raw {
		groups = append(groups, components(sub, comm)...)
	}
	sortGroups(groups)
	return groups
}

// induced returns the subgraph of g on members.
func induced(g gonum.Undirected, members []int64) *simple.UndirectedGraph {
	in := make(map[int64]struct{}, len(members))
	sub := simple.NewUndirectedGraph()
	for _, id := range members {
		in[id] = struct{}{}
		sub.AddNode(simple.Node(id))
	}
	for _, u := range members {
		nodes := g.From(u)
		for nodes.Next() {
			v := nodes.Node().ID()
			if _, ok := in[v]; !ok || v <= u {
				continue
			}
			sub.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(v)})
		}
	}
	return sub
}

// components splits comm into the connected components of the subgraph of
// g it induces.
func components(g gonum.Undirected, comm []int64) [][]int64 {
	if len(comm) == 1 {
		return [][]int64{comm}
	}
	var out [][]int64
	for _, cc := range topo.ConnectedComponents(induced(g, comm)) {
		out = append(out, nodeIDs(cc))
	}
	return out
}

// bfsChunks lists members in breadth-first order, starting each component
// from its smallest id and visiting neighbours in ascending order, and cuts
// the sequence into groups of at most size.
func bfsChunks(g gonum.Undirected, members []int64, size int) [][]int64 {
	sub := induced(g, members)
	visited := make(map[int64]bool, len(members))
	order := make([]int64, 0, len(members))

	for _, start := range members {
		if visited[start] {
			continue
		}
		visited[start] = true
		queue := []int64{start}
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			order = append(order, u)

			next := nodeIDs(gonum.NodesOf(sub.From(u)))
			for _, v := range next {
				if !visited[v] {
					visited[v] = true
					queue = append(queue, v)
				}
			}
		}
	}

	var groups [][]int64
	for i := 0; i < len(order); i += size {
		end := min(i+size, len(order))
		grp := append([]int64(nil), order[i:end]...)
		sort.Slice(grp, func(a, b int) bool { return grp[a] < grp[b] })
		groups = append(groups, grp)
	}
	sortGroups(groups)
	return groups
}

func nodeIDs(nodes []gonum.Node) []int64 {
	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID()
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortGroups(groups [][]int64) {
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
}

func modularity(g gonum.Undirected, numEdges int, groups [][]int64, resolution float64) float64 {
	if numEdges == 0 {
		return 0
	}
	comms := make([][]gonum.Node, len(groups))
	for i, grp := range groups {
		comms[i] = make([]gonum.Node, len(grp))
		for j, id := range grp {
			comms[i][j] = simple.Node(id)
		}
	}
	q := community.Q(g, comms, resolution)
	if math.IsNaN(q) {
		return 0
	}
	return q
}
