package dto

// CommunityResponse describes one community.
type CommunityResponse struct {
	ID       int      `json:"id"`
	Level    int      `json:"level"`
	ParentID int      `json:"parent_id"`
	Size     int      `json:"size"`
	Final    bool     `json:"final"`
	Members  []string `json:"members,omitempty"`
	Summary  string   `json:"summary,omitempty"`
}

// CommunitiesResponse lists the communities of the finest level.
type CommunitiesResponse struct {
	Communities []CommunityResponse `json:"communities"`
	Total       int                 `json:"total"`
	Levels      int                 `json:"levels"`
	Modularity  float64             `json:"modularity"`
}

// SummariesResponse maps community ids to summaries. JSON object keys are
// the decimal ids.
type SummariesResponse struct {
	Summaries map[int]string `json:"summaries"`
	Total     int            `json:"total"`
}

// EntityResponse describes one entity and the community that holds it.
type EntityResponse struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Placeholder bool     `json:"placeholder"`
	CommunityID *int     `json:"community_id,omitempty"`
	Neighbors   []string `json:"neighbors,omitempty"`
}
