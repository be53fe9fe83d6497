package prompts

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/soundprediction/go-graphrag/pkg/types"
	"github.com/soundprediction/go-graphrag/pkg/utils"
)

// DefaultMaxPathsPerChunk bounds the number of relationships kept per chunk.
const DefaultMaxPathsPerChunk = 2

const extractionTemplate = `
Extract entities and their relationships from the text below.

For each entity, provide:
- entity_name: (capitalize it)
- entity_type: (one or two words)
- entity_description: (short summary)

For each relationship between two entities, provide:
- source_entity: (name of the source entity)
- target_entity: (name of the target entity)
- relation: (short label)
- relationship_description: (brief reason for the relation)

TEXT:
####################
{text}
####################

OUTPUT FORMAT:
First list all entities, then list all relationships.

Example:

entity_name: Apple
entity_type: Company
entity_description: A technology company known for iPhones.

entity_name: iPhone
entity_type: Product
entity_description: A smartphone designed and sold by Apple.

source_entity: Apple
target_entity: iPhone
relation: Produces
relationship_description: Apple designs and sells the iPhone.

(Your output starts here:)
`

// ExtractionPrompt renders the entity/relationship extraction prompt for one
// text chunk.
func ExtractionPrompt(text string) string {
	return strings.Replace(extractionTemplate, "{text}", text, 1)
}

// The name and type fields may span lines; descriptions end at the line end.
var (
	entityPattern = regexp.MustCompile(
		`(?s)entity_name:\s*(.*?)\s*entity_type:\s*(.*?)\s*entity_description:\s*([^\n]*)`)
	relationshipPattern = regexp.MustCompile(
		`(?s)source_entity:\s*(.*?)\s*target_entity:\s*(.*?)\s*relation:\s*(.*?)\s*relationship_description:\s*([^\n]*)`)
)

// jsonExtraction is the structured alternative some models produce when
// asked for the line format.
type jsonExtraction struct {
	Entities []struct {
		Name        string `json:"entity_name"`
		Type        string `json:"entity_type"`
		Description string `json:"entity_description"`
	} `json:"entities"`
	Relationships []struct {
		Source      string `json:"source_entity"`
		Target      string `json:"target_entity"`
		Relation    string `json:"relation"`
		Description string `json:"relationship_description"`
	} `json:"relationships"`
}

// ParseExtraction parses the output of the extraction prompt. Fields are
// normalized with utils.NormalizeMention. Entities without a name and
// relationships without both endpoints are dropped. When the output holds no
// line patterns, a (possibly malformed) JSON document is attempted instead.
func ParseExtraction(output string) ([]types.Mention, []types.RawRelationship) {
	mentions, rels := parseLines(output)
	if len(mentions) == 0 && len(rels) == 0 {
		return parseJSON(output)
	}
	return mentions, rels
}

func parseLines(output string) ([]types.Mention, []types.RawRelationship) {
	var mentions []types.Mention
	for _, m := range entityPattern.FindAllStringSubmatch(output, -1) {
		mentions = appendMention(mentions, m[1], m[2], m[3])
	}

	var rels []types.RawRelationship
	for _, m := range relationshipPattern.FindAllStringSubmatch(output, -1) {
		rels = appendRelationship(rels, m[1], m[2], m[3], m[4])
	}
	return mentions, rels
}

func parseJSON(output string) ([]types.Mention, []types.RawRelationship) {
	start := strings.Index(output, "{")
	if start < 0 {
		return nil, nil
	}
	repaired, err := jsonrepair.JSONRepair(output[start:])
	if err != nil {
		return nil, nil
	}

	var doc jsonExtraction
	if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
		return nil, nil
	}

	var mentions []types.Mention
	for _, e := range doc.Entities {
		mentions = appendMention(mentions, e.Name, e.Type, e.Description)
	}
	var rels []types.RawRelationship
	for _, r := range doc.Relationships {
		rels = appendRelationship(rels, r.Source, r.Target, r.Relation, r.Description)
	}
	return mentions, rels
}

func appendMention(dst []types.Mention, name, typ, desc string) []types.Mention {
	m := types.Mention{
		Name:        utils.NormalizeMention(name),
		Type:        utils.NormalizeMention(typ),
		Description: utils.NormalizeMention(desc),
	}
	if utils.ValidateMention(m) != nil {
		return dst
	}
	return append(dst, m)
}

func appendRelationship(dst []types.RawRelationship, source, target, label, desc string) []types.RawRelationship {
	r := types.RawRelationship{
		Source:      utils.NormalizeMention(source),
		Target:      utils.NormalizeMention(target),
		Label:       utils.NormalizeMention(label),
		Description: utils.NormalizeMention(desc),
	}
	if utils.ValidateRawRelationship(r) != nil {
		return dst
	}
	return append(dst, r)
}
