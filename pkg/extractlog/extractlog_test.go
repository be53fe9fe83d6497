package extractlog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/soundprediction/go-graphrag/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	in := `some header text
[('Apple', 'Company', 'Tech company'), ('iPhone', 'Product', 'Smartphone'), ('Apple', 'iPhone', 'Produces', 'Apple makes iPhone')]
   [('Apple Computer', 'Company', "Jobs' company"), ('Apple Computer', 'Mac', 'Produces', 'makes the Mac')]
not a list line
`
	log, err := Parse(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, 2, log.Lines)
	assert.Zero(t, log.SkippedLines)
	assert.Equal(t, []types.Mention{
		{Name: "Apple", Type: "Company", Description: "Tech company"},
		{Name: "iPhone", Type: "Product", Description: "Smartphone"},
		{Name: "Apple Computer", Type: "Company", Description: "Jobs' company"},
	}, log.Entities)
	assert.Equal(t, []types.RawRelationship{
		{Source: "Apple", Target: "iPhone", Label: "Produces", Description: "Apple makes iPhone"},
		{Source: "Apple Computer", Target: "Mac", Label: "Produces", Description: "makes the Mac"},
	}, log.Relationships)
}

func TestParse_SkipsMalformedLines(t *testing.T) {
	in := "[('Apple', 'Company', 'ok')]\n[('broken', 'line'\n[1, 2\n{'a': 1}\n"

	log, err := Parse(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, 3, log.Lines)
	assert.Equal(t, 2, log.SkippedLines)
	require.Len(t, log.LineErrors, 2)
	for _, e := range log.LineErrors {
		assert.ErrorIs(t, e, ErrMalformedLine)
	}
	require.Len(t, log.Entities, 1)
}

func TestParse_IgnoresOtherArities(t *testing.T) {
	in := "[('a',), ('a', 'b'), ('a', 'b', 'c', 'd', 'e'), 'loose', ['x', 'y', 'z']]\n"

	log, err := Parse(strings.NewReader(in))
	require.NoError(t, err)

	assert.Empty(t, log.Entities)
	assert.Empty(t, log.Relationships)
	assert.Zero(t, log.SkippedLines)
}

func TestParse_LastEntityWins(t *testing.T) {
	in := "[('Apple', 'Company', 'first'), ('iPhone', 'Product', 'phone')]\n[('Apple', 'Fruit', 'second')]\n"

	log, err := Parse(strings.NewReader(in))
	require.NoError(t, err)

	require.Len(t, log.Entities, 2)
	assert.Equal(t, types.Mention{Name: "Apple", Type: "Fruit", Description: "second"}, log.Entities[0])
	assert.Equal(t, "iPhone", log.Entities[1].Name)
}

func TestParse_NormalizesAndDropsEmpty(t *testing.T) {
	in := `[('Coca-Cola\n', 'Drink', 'soda'), ('  ', 'X', 'y'), ('Coca-Cola', '', 'Sells', 'd'), (None, 'Company', 'n')]` + "\n"

	log, err := Parse(strings.NewReader(in))
	require.NoError(t, err)

	require.Len(t, log.Entities, 1)
	assert.Equal(t, "Coca Cola", log.Entities[0].Name)
	assert.Empty(t, log.Relationships)
}

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"escaped quote", `'it\'s'`, "it's"},
		{"double quoted", `"say 'hi'"`, "say 'hi'"},
		{"escapes", `'a\tb\\c'`, "a\tb\\c"},
		{"hex", `'caf\xe9'`, "café"},
		{"unicode", `'über'`, "über"},
		{"adjacent literals", `'ab' "cd"`, "abcd"},
		{"prefix", `u'text'`, "text"},
		{"unknown escape", `'a\qb'`, `a\qb`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseLiteral(tt.in)
			require.NoError(t, err)
			assert.Equal(t, kindString, v.kind)
			assert.Equal(t, tt.want, v.text)
		})
	}
}

func TestParseLiteral_Errors(t *testing.T) {
	for _, in := range []string{`'open`, `('a' 'b'`, `['a',, 'b']`, `['a'] trailing`, `'\x4'`, ``} {
		_, err := parseLiteral(in)
		assert.ErrorIs(t, err, ErrMalformedLine, "input %q", in)
	}
}

func TestWriteParseRoundTrip(t *testing.T) {
	mentions := []types.Mention{
		{Name: "Apple", Type: "Company", Description: `Jobs' "garage" company \ est. 1976`},
		{Name: "iPhone", Type: "Product", Description: "Smartphone"},
	}
	rels := []types.RawRelationship{
		{Source: "Apple", Target: "iPhone", Label: "Produces", Description: "makes it"},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, mentions, rels))
	require.NoError(t, Write(&buf, nil, nil))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	log, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, mentions, log.Entities)
	assert.Equal(t, rels, log.Relationships)
	assert.Equal(t, 2, log.Lines)
}
