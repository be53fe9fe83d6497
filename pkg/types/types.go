package types

import "fmt"

// PlaceholderEntityType is the type given to relationship endpoints that could
// not be resolved to any explicitly extracted entity.
const PlaceholderEntityType = "Resource"

// Mention is a raw (name, type, description) tuple produced by extraction.
// Mentions are consumed during resolution.
type Mention struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// RawRelationship is a relationship as produced by extraction, before its
// endpoints are resolved to canonical entities.
type RawRelationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Label       string `json:"relation"`
	Description string `json:"description"`
}

// Entity is a canonical node of the knowledge graph. ID is the canonical name
// and is unique within a graph.
type Entity struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// IsPlaceholder reports whether the entity was materialized for an
// unresolved relationship endpoint.
func (e Entity) IsPlaceholder() bool {
	return e.Type == PlaceholderEntityType && e.Description == ""
}

// NewPlaceholderEntity returns the placeholder entity for an unresolved name.
func NewPlaceholderEntity(name string) Entity {
	return Entity{ID: name, Type: PlaceholderEntityType}
}

// EntityFromMention converts an explicitly extracted mention to an entity.
func EntityFromMention(m Mention) Entity {
	return Entity{ID: m.Name, Type: m.Type, Description: m.Description}
}

// Relationship is a directed, labelled edge between two entities.
type Relationship struct {
	SourceID    string `json:"source_id"`
	TargetID    string `json:"target_id"`
	Label       string `json:"relation"`
	Description string `json:"description"`
}

// String renders the relationship for diagnostics.
func (r Relationship) String() string {
	return fmt.Sprintf("(%s)-[%s]->(%s)", r.SourceID, r.Label, r.TargetID)
}

// RelationshipFromRaw converts an extracted relationship to a graph edge
// without resolving its endpoints.
func RelationshipFromRaw(r RawRelationship) Relationship {
	return Relationship{
		SourceID:    r.Source,
		TargetID:    r.Target,
		Label:       r.Label,
		Description: r.Description,
	}
}

// Fact renders a relationship from the perspective of node towards
// neighbor in the "source -> target -> relation -> description" form used
// by community summarization.
func Fact(node, neighbor, label, description string) string {
	return node + " -> " + neighbor + " -> " + label + " -> " + description
}
