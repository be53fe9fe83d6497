package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soundprediction/go-graphrag/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testEntities = []types.Entity{
		{ID: "Apple Inc", Type: "Company", Description: `tech co, "fruit" logo`},
		{ID: "Cupertino", Type: "Resource"},
	}
	testRels = []types.Relationship{
		{SourceID: "Apple Inc", TargetID: "Cupertino", Label: "Located In", Description: "HQ"},
	}
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteSimple(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteSimple(dir, testEntities, testRels))

	assert.Equal(t, [][]string{
		{"entity", "type", "description"},
		{"Apple Inc", "Company", `tech co, "fruit" logo`},
		{"Cupertino", "Resource", ""},
	}, readCSV(t, filepath.Join(dir, SimpleEntitiesFile)))

	assert.Equal(t, [][]string{
		{"source", "target", "relationship", "originalText"},
		{"Apple Inc", "Cupertino", "Located In", "HQ"},
	}, readCSV(t, filepath.Join(dir, SimpleRelationshipsFile)))
}

func TestWriteNeo4j(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteNeo4j(dir, testEntities, testRels))

	nodes := readCSV(t, filepath.Join(dir, Neo4jNodesFile))
	assert.Equal(t, []string{"id:ID", ":LABEL", "description"}, nodes[0])
	assert.Len(t, nodes, 3)

	assert.Equal(t, [][]string{
		{":START_ID", ":END_ID", ":TYPE"},
		{"Apple Inc", "Cupertino", "Located In"},
	}, readCSV(t, filepath.Join(dir, Neo4jRelationshipsFile)))
}

func TestWriteSimple_MissingDir(t *testing.T) {
	err := WriteSimple(filepath.Join(t.TempDir(), "missing"), testEntities, testRels)
	assert.Error(t, err)
}

func TestWriteNTriples(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteNTriples(&buf, testEntities, testRels, NTriplesOptions{}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		`<http://graphrag.example.com/resource/Apple_Inc> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://graphrag.example.com/ontology/Company> .`,
		`<http://graphrag.example.com/resource/Apple_Inc> <http://graphrag.example.com/ontology/description> "tech co, \"fruit\" logo" .`,
		`<http://graphrag.example.com/resource/Cupertino> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://graphrag.example.com/ontology/Resource> .`,
		`<http://graphrag.example.com/resource/Cupertino> <http://graphrag.example.com/ontology/description> "" .`,
		`<http://graphrag.example.com/resource/Apple_Inc> <http://graphrag.example.com/ontology/Located_In> <http://graphrag.example.com/resource/Cupertino> .`,
	}, lines)
}

func TestWriteNTriples_Escaping(t *testing.T) {
	var buf bytes.Buffer
	entities := []types.Entity{{ID: "AT&T/Bell Labs", Type: "R&D Lab", Description: "line1\nline2 \\ end"}}
	require.NoError(t, WriteNTriples(&buf, entities, nil, NTriplesOptions{EntityBase: "urn:e:", OntologyBase: "urn:o:"}))

	out := buf.String()
	assert.Contains(t, out, "<urn:e:AT%26T%2FBell_Labs> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <urn:o:R%26D_Lab> .")
	assert.Contains(t, out, `<urn:o:description> "line1\nline2 \\ end" .`)
}

func TestWriteNTriplesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteNTriplesFile(dir, testEntities, testRels, NTriplesOptions{}))

	data, err := os.ReadFile(filepath.Join(dir, NTriplesFile))
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(string(data), "\n"))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatSimple, false},
		{"NTriples", FormatNTriples, false},
		{"neo4j", FormatNeo4j, false},
		{"duckdb", FormatDuckDB, false},
		{"parquet", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
