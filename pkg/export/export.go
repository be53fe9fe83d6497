// Package export writes the resolved graph to files.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/soundprediction/go-graphrag/pkg/types"
)

// Format selects an output layout.
type Format string

const (
	FormatSimple   Format = "simple"
	FormatNTriples Format = "ntriples"
	FormatNeo4j    Format = "neo4j"
	FormatDuckDB   Format = "duckdb"
)

// ParseFormat parses a format name. Empty selects FormatSimple.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatSimple, nil
	case FormatSimple, FormatNTriples, FormatNeo4j, FormatDuckDB:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want simple, ntriples, neo4j or duckdb)", s)
	}
}

// File names written by the exporters.
const (
	SimpleEntitiesFile      = "entities.csv"
	SimpleRelationshipsFile = "relationships.csv"
	NTriplesFile            = "data.nt"
	Neo4jNodesFile          = "nodes.csv"
	Neo4jRelationshipsFile  = "relationships.csv"
)

const (
	DefaultEntityBase   = "http://graphrag.example.com/resource/"
	DefaultOntologyBase = "http://graphrag.example.com/ontology/"

	rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
)

// WriteSimple writes entities.csv (entity,type,description) and
// relationships.csv (source,target,relationship,originalText) into dir.
func WriteSimple(dir string, entities []types.Entity, rels []types.Relationship) error {
	entityRows := make([][]string, 0, len(entities))
	for _, e := range entities {
		entityRows = append(entityRows, []string{e.ID, e.Type, e.Description})
	}
	if err := writeCSV(filepath.Join(dir, SimpleEntitiesFile),
		[]string{"entity", "type", "description"}, entityRows); err != nil {
		return err
	}

	relRows := make([][]string, 0, len(rels))
	for _, r := range rels {
		relRows = append(relRows, []string{r.SourceID, r.TargetID, r.Label, r.Description})
	}
	return writeCSV(filepath.Join(dir, SimpleRelationshipsFile),
		[]string{"source", "target", "relationship", "originalText"}, relRows)
}

// WriteNeo4j writes the CSV pair expected by neo4j-admin import into dir.
func WriteNeo4j(dir string, entities []types.Entity, rels []types.Relationship) error {
	nodeRows := make([][]string, 0, len(entities))
	for _, e := range entities {
		nodeRows = append(nodeRows, []string{e.ID, e.Type, e.Description})
	}
	if err := writeCSV(filepath.Join(dir, Neo4jNodesFile),
		[]string{"id:ID", ":LABEL", "description"}, nodeRows); err != nil {
		return err
	}

	relRows := make([][]string, 0, len(rels))
	for _, r := range rels {
		relRows = append(relRows, []string{r.SourceID, r.TargetID, r.Label})
	}
	return writeCSV(filepath.Join(dir, Neo4jRelationshipsFile),
		[]string{":START_ID", ":END_ID", ":TYPE"}, relRows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// NTriplesOptions sets the URI prefixes of N-Triples output.
type NTriplesOptions struct {
	EntityBase   string
	OntologyBase string
}

func (o NTriplesOptions) withDefaults() NTriplesOptions {
	if o.EntityBase == "" {
		o.EntityBase = DefaultEntityBase
	}
	if o.OntologyBase == "" {
		o.OntologyBase = DefaultOntologyBase
	}
	return o
}

// WriteNTriples writes an rdf:type triple and a description literal per
// entity, then one triple per relationship.
func WriteNTriples(w io.Writer, entities []types.Entity, rels []types.Relationship, opts NTriplesOptions) error {
	opts = opts.withDefaults()
	bw := bufio.NewWriter(w)

	for _, e := range entities {
		subject := uri(opts.EntityBase, e.ID)
		fmt.Fprintf(bw, "%s <%s> %s .\n", subject, rdfType, uri(opts.OntologyBase, e.Type))
		fmt.Fprintf(bw, "%s <%sdescription> %s .\n", subject, opts.OntologyBase, literal(e.Description))
	}
	for _, r := range rels {
		fmt.Fprintf(bw, "%s %s %s .\n",
			uri(opts.EntityBase, r.SourceID),
			uri(opts.OntologyBase, r.Label),
			uri(opts.EntityBase, r.TargetID))
	}
	return bw.Flush()
}

// WriteNTriplesFile writes data.nt into dir.
func WriteNTriplesFile(dir string, entities []types.Entity, rels []types.Relationship, opts NTriplesOptions) error {
	path := filepath.Join(dir, NTriplesFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteNTriples(f, entities, rels, opts); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// uri builds an IRI from base and a name with spaces turned into
// underscores and every reserved character percent-encoded.
func uri(base, name string) string {
	return "<" + base + url.QueryEscape(strings.ReplaceAll(name, " ", "_")) + ">"
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
)

func literal(s string) string {
	return `"` + literalEscaper.Replace(s) + `"`
}
