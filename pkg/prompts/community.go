package prompts

import (
	"regexp"
	"strings"
)

const communitySummaryInstructions = "Given relationships from a knowledge graph in the form: " +
	"entity1 -> entity2 -> relation -> description, write a concise summary. " +
	"Include the entity names and key points from the descriptions to explain the nature and importance of each relationship clearly and coherently. " +
	"Examples:\n" +
	"1.\n" +
	"Input: Einstein -> Theory of Relativity -> developed -> Einstein formulated the theory to explain how space and time are linked for objects moving at a constant speed.\n" +
	"Output: Einstein developed the Theory of Relativity to explain the connection between space and time for objects in uniform motion.\n\n" +
	"2.\n" +
	"Input: Apple Inc. -> iPhone -> manufactures -> Apple designs and produces the iPhone, a widely used smartphone that revolutionized mobile technology.\n" +
	"Output: Apple Inc. manufactures the iPhone, a groundbreaking smartphone that transformed mobile technology."

// CommunitySummaryPrompt renders the summarization prompt for the facts of
// one community.
func CommunitySummaryPrompt(facts string) string {
	var b strings.Builder
	b.WriteString(communitySummaryInstructions)
	b.WriteString("\n\nInput: ")
	b.WriteString(facts)
	b.WriteString("\nOutput:")
	return b.String()
}

// FactsText joins community facts one per line and terminates the block
// with a period.
func FactsText(facts []string) string {
	return strings.Join(facts, "\n") + "."
}

var roleLabel = regexp.MustCompile(`(?i)^\s*assistant:\s*`)

// StripRoleLabel removes a leading "assistant:" artifact that chat models
// sometimes prepend to completions.
func StripRoleLabel(s string) string {
	return strings.TrimSpace(roleLabel.ReplaceAllString(s, ""))
}
