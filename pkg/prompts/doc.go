/*
Package prompts holds the prompts sent to the text-generation service and the
grammar used to read its answers.

It provides:

  - the entity/relationship extraction prompt for one text chunk
  - the community summarization prompt
  - ParseExtraction, a line-oriented parser for the
    entity_name:/entity_type:/entity_description: and
    source_entity:/target_entity:/relation:/relationship_description: patterns
  - StripRoleLabel for cleaning completions

Usage:

	prompt := prompts.ExtractionPrompt(chunk)
	out, err := generator.Generate(ctx, prompt)
	if err != nil {
		// handle error
	}
	mentions, relationships := prompts.ParseExtraction(out)

The parser is independent of any service call so it can be tested against
literal fixtures.
*/
package prompts
