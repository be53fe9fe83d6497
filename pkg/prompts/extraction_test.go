package prompts_test

import (
	"strings"
	"testing"

	"github.com/soundprediction/go-graphrag/pkg/prompts"
	"github.com/soundprediction/go-graphrag/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appleOutput = `entity_name: Apple
entity_type: Company
entity_description: A technology company known for iPhones.

entity_name: iPhone
entity_type: Product
entity_description: A smartphone designed and sold by Apple.

source_entity: Apple
target_entity: iPhone
relation: Produces
relationship_description: Apple designs and sells the iPhone.
`

func TestParseExtraction(t *testing.T) {
	mentions, rels := prompts.ParseExtraction(appleOutput)

	assert.Equal(t, []types.Mention{
		{Name: "Apple", Type: "Company", Description: "A technology company known for iPhones."},
		{Name: "iPhone", Type: "Product", Description: "A smartphone designed and sold by Apple."},
	}, mentions)
	assert.Equal(t, []types.RawRelationship{
		{Source: "Apple", Target: "iPhone", Label: "Produces", Description: "Apple designs and sells the iPhone."},
	}, rels)
}

func TestParseExtraction_NormalizesFields(t *testing.T) {
	out := "entity_name: Apple \n Inc\nentity_type: Tech-Company\nentity_description: Makes phones\n"

	mentions, rels := prompts.ParseExtraction(out)

	require.Len(t, mentions, 1)
	assert.Equal(t, "Apple Inc", mentions[0].Name)
	assert.Equal(t, "Tech Company", mentions[0].Type)
	assert.Empty(t, rels)
}

func TestParseExtraction_DescriptionEndsAtLineEnd(t *testing.T) {
	out := "source_entity: A\ntarget_entity: B\nrelation: Knows\nrelationship_description: first line\nsecond line"

	_, rels := prompts.ParseExtraction(out)

	require.Len(t, rels, 1)
	assert.Equal(t, "first line", rels[0].Description)
}

func TestParseExtraction_CaseSensitive(t *testing.T) {
	out := "Entity_Name: Apple\nEntity_Type: Company\nEntity_Description: nope\n"

	mentions, rels := prompts.ParseExtraction(out)

	assert.Empty(t, mentions)
	assert.Empty(t, rels)
}

func TestParseExtraction_JSONFallback(t *testing.T) {
	out := `Here you go:
{"entities": [{"entity_name": "Apple", "entity_type": "Company", "entity_description": "tech co"}],
 "relationships": [{"source_entity": "Apple", "target_entity": "iPhone", "relation": "Produces", "relationship_description": "makes it"}]`

	mentions, rels := prompts.ParseExtraction(out)

	require.Len(t, mentions, 1)
	assert.Equal(t, "Apple", mentions[0].Name)
	require.Len(t, rels, 1)
	assert.Equal(t, "iPhone", rels[0].Target)
}

func TestParseExtraction_Garbage(t *testing.T) {
	mentions, rels := prompts.ParseExtraction("I could not find anything.")
	assert.Empty(t, mentions)
	assert.Empty(t, rels)
}

func TestExtractionPrompt(t *testing.T) {
	p := prompts.ExtractionPrompt("Apple makes the iPhone.")
	assert.Contains(t, p, "####################\nApple makes the iPhone.\n####################")
	assert.NotContains(t, p, "{text}")
}

func TestCommunitySummaryPrompt(t *testing.T) {
	facts := prompts.FactsText([]string{
		types.Fact("Apple", "iPhone", "Produces", "Apple designs and sells the iPhone"),
		types.Fact("iPhone", "Apple", "Produces", "Apple designs and sells the iPhone"),
	})
	assert.True(t, strings.HasSuffix(facts, "iPhone."))
	assert.Equal(t, 1, strings.Count(facts, "\n"))

	p := prompts.CommunitySummaryPrompt(facts)
	assert.Contains(t, p, "Apple -> iPhone -> Produces -> Apple designs and sells the iPhone")
	assert.True(t, strings.HasSuffix(p, "Output:"))
}

func TestStripRoleLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"assistant: Apple makes the iPhone.", "Apple makes the iPhone."},
		{"  Assistant:   Apple makes the iPhone.  ", "Apple makes the iPhone."},
		{"Apple makes the iPhone.", "Apple makes the iPhone."},
		{"The assistant: said", "The assistant: said"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, prompts.StripRoleLabel(tt.in))
	}
}
