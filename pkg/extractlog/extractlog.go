package extractlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/soundprediction/go-graphrag/pkg/types"
	"github.com/soundprediction/go-graphrag/pkg/utils"
)

// ErrMalformedLine is wrapped by errors describing a line that is not a
// valid literal list.
var ErrMalformedLine = errors.New("malformed extraction log line")

// maxLineSize bounds a single log line. One line holds one chunk's extraction.
const maxLineSize = 16 * 1024 * 1024

// Log is the content of an extraction log.
type Log struct {
	// Entities holds one mention per distinct name in order of first
	// appearance. A repeated name takes the fields of its last occurrence.
	Entities []types.Mention
	// Relationships holds every relationship in file order.
	Relationships []types.RawRelationship
	// Lines counts the lines that started with '['.
	Lines int
	// SkippedLines counts those that could not be parsed.
	SkippedLines int
	// LineErrors holds the parse error of each skipped line.
	LineErrors []error
}

// Parse reads an extraction log. Only lines whose first non-blank character
// is '[' are considered; each must be a list of tuples. Tuples of three
// strings are entities (name, type, description) and tuples of four are
// relationships (source, target, label, description); other items are
// ignored. Lines that fail to parse are skipped and counted, never fatal.
// The returned error reports I/O failures only.
func Parse(r io.Reader) (*Log, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	log := &Log{}
	index := make(map[string]int)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "[") {
			continue
		}
		log.Lines++

		v, err := parseLiteral(line)
		if err == nil && v.kind != kindList {
			err = fmt.Errorf("%w: not a list", ErrMalformedLine)
		}
		if err != nil {
			log.SkippedLines++
			log.LineErrors = append(log.LineErrors, fmt.Errorf("line %d: %w", lineNo, err))
			continue
		}

		for _, item := range v.items {
			if item.kind != kindTuple {
				continue
			}
			switch len(item.items) {
			case 3:
				log.addEntity(index, item.items)
			case 4:
				log.addRelationship(item.items)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return log, fmt.Errorf("failed to read extraction log: %w", err)
	}
	return log, nil
}

func (l *Log) addEntity(index map[string]int, fields []value) {
	m := types.Mention{
		Name:        field(fields[0]),
		Type:        field(fields[1]),
		Description: field(fields[2]),
	}
	if utils.ValidateMention(m) != nil {
		return
	}
	if i, ok := index[m.Name]; ok {
		l.Entities[i] = m
		return
	}
	index[m.Name] = len(l.Entities)
	l.Entities = append(l.Entities, m)
}

func (l *Log) addRelationship(fields []value) {
	r := types.RawRelationship{
		Source:      field(fields[0]),
		Target:      field(fields[1]),
		Label:       field(fields[2]),
		Description: field(fields[3]),
	}
	if utils.ValidateRawRelationship(r) != nil {
		return
	}
	l.Relationships = append(l.Relationships, r)
}

// field normalizes a string item. Atoms keep their literal text; None
// becomes empty.
func field(v value) string {
	switch v.kind {
	case kindString:
		return utils.NormalizeMention(v.text)
	case kindAtom:
		if v.text == "None" {
			return ""
		}
		return utils.NormalizeMention(v.text)
	default:
		return ""
	}
}

// Write appends one log line holding the given entities followed by the
// given relationships. Parse reads it back.
func Write(w io.Writer, mentions []types.Mention, rels []types.RawRelationship) error {
	var b strings.Builder
	b.WriteByte('[')
	n := 0
	sep := func() {
		if n > 0 {
			b.WriteString(", ")
		}
		n++
	}
	for _, m := range mentions {
		sep()
		fmt.Fprintf(&b, "(%s, %s, %s)",
			quotePython(m.Name), quotePython(m.Type), quotePython(m.Description))
	}
	for _, r := range rels {
		sep()
		fmt.Fprintf(&b, "(%s, %s, %s, %s)",
			quotePython(r.Source), quotePython(r.Target), quotePython(r.Label), quotePython(r.Description))
	}
	b.WriteString("]\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write extraction log line: %w", err)
	}
	return nil
}
