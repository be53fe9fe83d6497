package types

import "sort"

// NoParent is the parent cluster id of root communities.
const NoParent = -1

// Community is one cluster of the hierarchical partition. Level 0 is the
// coarsest level; every deeper level refines the one above it.
type Community struct {
	ID       int      `json:"id"`
	Level    int      `json:"level"`
	ParentID int      `json:"parent_id"`
	Members  []string `json:"members"`
	// Final is true when the community was not split any further.
	Final bool `json:"final"`
}

// Size returns the number of member entities.
func (c Community) Size() int {
	return len(c.Members)
}

// Contains reports whether id is a member of the community. Members are
// kept sorted.
func (c Community) Contains(id string) bool {
	i := sort.SearchStrings(c.Members, id)
	return i < len(c.Members) && c.Members[i] == id
}

// ClusterRecord is one (node, cluster) assignment at one hierarchy level.
type ClusterRecord struct {
	Node          string `json:"node"`
	Cluster       int    `json:"cluster"`
	ParentCluster int    `json:"parent_cluster"`
	Level         int    `json:"level"`
	IsFinal       bool   `json:"is_final"`
}

// Hierarchy is the result of hierarchical partitioning.
type Hierarchy struct {
	Records        []ClusterRecord `json:"records"`
	Levels         [][]Community   `json:"levels"`
	MaxClusterSize int             `json:"max_cluster_size"`
	// Modularity is the modularity of the level 0 partition.
	Modularity float64 `json:"modularity"`
}

// Empty reports whether the hierarchy holds no communities.
func (h *Hierarchy) Empty() bool {
	return h == nil || len(h.Levels) == 0
}

// Finest returns the communities of the deepest level, the level used for
// summarization.
func (h *Hierarchy) Finest() []Community {
	if h.Empty() {
		return nil
	}
	return h.Levels[len(h.Levels)-1]
}

// Community looks up a community of any level by id.
func (h *Hierarchy) Community(id int) (Community, bool) {
	if h.Empty() {
		return Community{}, false
	}
	for _, level := range h.Levels {
		for _, c := range level {
			if c.ID == id {
				return c, true
			}
		}
	}
	return Community{}, false
}

// FinalAssignment maps every node to its community at the finest level.
func (h *Hierarchy) FinalAssignment() map[string]int {
	assignment := make(map[string]int)
	for _, c := range h.Finest() {
		for _, m := range c.Members {
			assignment[m] = c.ID
		}
	}
	return assignment
}
