package extractlog

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type valueKind int

const (
	kindString valueKind = iota
	kindAtom
	kindTuple
	kindList
)

// value is a parsed Python literal: a string, a bare atom (number, None,
// True, False) or a tuple/list of values.
type value struct {
	kind  valueKind
	text  string
	items []value
}

// literalParser is a recursive-descent reader for the subset of Python
// literal syntax that extraction logs contain.
type literalParser struct {
	src string
	pos int
}

func parseLiteral(src string) (value, error) {
	p := &literalParser{src: src}
	v, err := p.value()
	if err != nil {
		return value{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return value{}, p.errorf("unexpected trailing input")
	}
	return v, nil
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrMalformedLine, p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) value() (value, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return value{}, p.errorf("unexpected end of input")
	}

	switch c := p.src[p.pos]; c {
	case '(':
		items, err := p.sequence('(', ')')
		return value{kind: kindTuple, items: items}, err
	case '[':
		items, err := p.sequence('[', ']')
		return value{kind: kindList, items: items}, err
	case '\'', '"':
		return p.strings()
	default:
		return p.atom()
	}
}

func (p *literalParser) sequence(open, close byte) ([]value, error) {
	p.pos++ // open
	var items []value
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated %q", open)
		}
		if p.src[p.pos] == close {
			p.pos++
			return items, nil
		}

		v, err := p.value()
		if err != nil {
			return nil, err
		}
		items = append(items, v)

		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated %q", open)
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case close:
		default:
			return nil, p.errorf("expected ',' or %q", close)
		}
	}
}

// strings reads one string literal and any adjacent literals, which Python
// concatenates.
func (p *literalParser) strings() (value, error) {
	var b strings.Builder
	for {
		s, err := p.quoted()
		if err != nil {
			return value{}, err
		}
		b.WriteString(s)

		save := p.pos
		p.skipSpace()
		if p.pos < len(p.src) && (p.src[p.pos] == '\'' || p.src[p.pos] == '"') {
			continue
		}
		p.pos = save
		return value{kind: kindString, text: b.String()}, nil
	}
}

func (p *literalParser) quoted() (string, error) {
	quote := p.src[p.pos]
	p.pos++

	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\':
			if err := p.escape(&b); err != nil {
				return "", err
			}
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			b.WriteRune(r)
			p.pos += size
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *literalParser) escape(b *strings.Builder) error {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return p.errorf("dangling escape")
	}
	c := p.src[p.pos]
	p.pos++

	switch c {
	case '\\', '\'', '"':
		b.WriteByte(c)
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'x':
		return p.codepoint(b, 2)
	case 'u':
		return p.codepoint(b, 4)
	case 'U':
		return p.codepoint(b, 8)
	default:
		// Python keeps unknown escapes verbatim.
		b.WriteByte('\\')
		b.WriteByte(c)
	}
	return nil
}

func (p *literalParser) codepoint(b *strings.Builder, digits int) error {
	if p.pos+digits > len(p.src) {
		return p.errorf("truncated escape")
	}
	n, err := strconv.ParseUint(p.src[p.pos:p.pos+digits], 16, 32)
	if err != nil {
		return p.errorf("bad escape %q", p.src[p.pos:p.pos+digits])
	}
	p.pos += digits
	b.WriteRune(rune(n))
	return nil
}

func (p *literalParser) atom() (value, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ',' || c == ')' || c == ']' || c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
			c == '(' || c == '[' || c == '\'' || c == '"' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return value{}, p.errorf("unexpected %q", p.src[p.pos])
	}

	text := p.src[start:p.pos]
	// String prefixes such as u'...' or b'...'.
	if p.pos < len(p.src) && (p.src[p.pos] == '\'' || p.src[p.pos] == '"') && isStringPrefix(text) {
		return p.strings()
	}
	return value{kind: kindAtom, text: text}, nil
}

func isStringPrefix(s string) bool {
	switch strings.ToLower(s) {
	case "u", "b", "r", "br", "rb":
		return true
	}
	return false
}

// quotePython renders s as a single-quoted Python string literal.
func quotePython(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
