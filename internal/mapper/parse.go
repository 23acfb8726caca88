package mapper

import (
	"fmt"
	"strings"
	"unicode"
)

// Parse reads the textual mapper syntax: an identifier, a zip "(l,r)",
// or an outer "[l,r]", nested arbitrarily. Identifiers may be qualified
// ("node.input") or reference a foreign node ("_node"). An empty or
// all-whitespace string yields a nil spec, meaning the node has no
// mapper at all.
func Parse(text string) (Spec, error) {
	p := &parser{src: text}
	p.skipSpace()
	if p.eof() {
		return nil, nil
	}
	spec, err := p.parseSpec()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, fmt.Errorf("%w: trailing input %q in %q", ErrMalformed, p.rest(), p.src)
	}
	return spec, nil
}

// MustParse is Parse for tests and static declarations; it panics on error.
func MustParse(text string) Spec {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

type parser struct {
	src string
	pos int
}

func (p *parser) parseSpec() (Spec, error) {
	p.skipSpace()
	switch {
	case p.eof():
		return nil, fmt.Errorf("%w: unexpected end of input in %q", ErrMalformed, p.src)
	case p.peek() == '(':
		l, r, err := p.parsePair('(', ')')
		if err != nil {
			return nil, err
		}
		return Zip{L: l, R: r}, nil
	case p.peek() == '[':
		l, r, err := p.parsePair('[', ']')
		if err != nil {
			return nil, err
		}
		return Outer{L: l, R: r}, nil
	default:
		return p.parseName()
	}
}

func (p *parser) parsePair(open, close byte) (Spec, Spec, error) {
	p.pos++ // consume open
	l, err := p.parseSpec()
	if err != nil {
		return nil, nil, err
	}
	p.skipSpace()
	if p.eof() || p.peek() != ',' {
		return nil, nil, fmt.Errorf("%w: expected ',' after %q in %q", ErrMalformed, l, p.src)
	}
	p.pos++ // consume comma
	r, err := p.parseSpec()
	if err != nil {
		return nil, nil, err
	}
	p.skipSpace()
	if p.eof() || p.peek() != close {
		return nil, nil, fmt.Errorf("%w: expected %q closing combinator in %q", ErrMalformed, string(close), p.src)
	}
	p.pos++ // consume close
	return l, r, nil
}

func (p *parser) parseName() (Spec, error) {
	start := p.pos
	for !p.eof() && isNameRune(rune(p.peek())) {
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "" {
		return nil, fmt.Errorf("%w: unexpected character %q in %q", ErrMalformed, string(p.peek()), p.src)
	}
	if name == "_" {
		return nil, fmt.Errorf("%w: bare foreign marker %q in %q", ErrMalformed, name, p.src)
	}
	return Name(name), nil
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

func (p *parser) eof() bool    { return p.pos >= len(p.src) }
func (p *parser) peek() byte   { return p.src[p.pos] }
func (p *parser) rest() string { return strings.TrimSpace(p.src[p.pos:]) }
