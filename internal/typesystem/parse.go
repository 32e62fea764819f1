package typesystem

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseType parses a type expression in interchange syntax:
//
//	Int
//	Stack<Int, String>
//	(Int, Bool)
//	T.Element
//	opaque Collection & Equatable where Element == Int
//
// Every identifier parses as a TCon; the document loader rebinds generic
// parameters to TVars during name resolution. A trailing where-clause
// always binds to the innermost opaque marker (maximal munch), which is
// how the surface grammar resolves the comma ambiguity inside generic
// argument lists.
func ParseType(src string) (Type, error) {
	p := &typeParser{src: src}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected trailing %q", p.src[p.pos:])
	}
	return t, nil
}

// ParseRequirement parses a single where-list entry. A conformance entry
// may name several capabilities at once (`T: Ordered & Equatable`), which
// expands to one requirement per capability.
func ParseRequirement(src string) ([]Requirement, error) {
	p := &typeParser{src: src}
	subject, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	switch {
	case p.consume(':'):
		reqs := []Requirement{}
		for {
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, Requirement{Subject: subject, Capability: name})
			p.skipSpace()
			if !p.consume('&') {
				break
			}
		}
		p.skipSpace()
		if p.pos < len(p.src) {
			return nil, p.errorf("unexpected trailing %q", p.src[p.pos:])
		}
		return reqs, nil
	case p.consumeEq():
		equals, err := p.parseType()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos < len(p.src) {
			return nil, p.errorf("unexpected trailing %q", p.src[p.pos:])
		}
		return []Requirement{{Subject: subject, Equals: equals}}, nil
	default:
		return nil, p.errorf("expected ':' or '==' after requirement subject")
	}
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) errorf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("type expression %q: %s at offset %d", p.src, msg, p.pos)
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *typeParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *typeParser) consume(ch byte) bool {
	if p.peek() == ch {
		p.pos++
		return true
	}
	return false
}

// consumeEq consumes the '==' operator.
func (p *typeParser) consumeEq() bool {
	if strings.HasPrefix(p.src[p.pos:], "==") {
		p.pos += 2
		return true
	}
	return false
}

func isIdentStart(ch byte) bool {
	return ch == '_' || unicode.IsLetter(rune(ch))
}

func isIdentPart(ch byte) bool {
	return ch == '_' || unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch))
}

func (p *typeParser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	if p.pos >= len(p.src) || !isIdentStart(p.src[p.pos]) {
		return "", p.errorf("expected identifier")
	}
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos], nil
}

// peekIdent reads an identifier without consuming it.
func (p *typeParser) peekIdent() string {
	save := p.pos
	name, err := p.ident()
	p.pos = save
	if err != nil {
		return ""
	}
	return name
}

func (p *typeParser) parseType() (Type, error) {
	p.skipSpace()
	if p.peekIdent() == "opaque" {
		return p.parseOpaque()
	}
	return p.parsePostfix()
}

func (p *typeParser) parseOpaque() (Type, error) {
	if _, err := p.ident(); err != nil { // consume 'opaque'
		return nil, err
	}
	names := []string{}
	for {
		name, err := p.ident()
		if err != nil {
			return nil, p.errorf("expected capability name")
		}
		if name == "where" {
			return nil, p.errorf("expected capability name before 'where'")
		}
		names = append(names, name)
		p.skipSpace()
		if !p.consume('&') {
			break
		}
	}

	bindings := []AssocBinding{}
	if p.peekIdent() == "where" {
		if _, err := p.ident(); err != nil { // consume 'where'
			return nil, err
		}
		for {
			name, err := p.ident()
			if err != nil {
				return nil, p.errorf("expected associated type name")
			}
			p.skipSpace()
			if !p.consumeEq() {
				return nil, p.errorf("expected '==' in associated type binding")
			}
			typ, err := p.parseType()
			if err != nil {
				return nil, err
			}
			bindings = append(bindings, AssocBinding{Name: name, Type: typ})

			// Maximal munch: a comma continues the where-list only when a
			// further `name ==` binding actually follows.
			save := p.pos
			p.skipSpace()
			if !p.consume(',') {
				p.pos = save
				break
			}
			probe := p.pos
			if _, err := p.ident(); err != nil {
				p.pos = save
				break
			}
			p.skipSpace()
			if !strings.HasPrefix(p.src[p.pos:], "==") {
				p.pos = save
				break
			}
			p.pos = probe
		}
	}

	return TMarker{Caps: NewCapabilitySet(names, bindings)}, nil
}

func (p *typeParser) parsePostfix() (Type, error) {
	base, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		save := p.pos
		p.skipSpace()
		if !p.consume('.') {
			p.pos = save
			return base, nil
		}
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		base = TAssoc{Base: base, Name: name}
	}
}

func (p *typeParser) parseAtom() (Type, error) {
	p.skipSpace()
	if p.consume('(') {
		elems := []Type{}
		for {
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			elems = append(elems, t)
			p.skipSpace()
			if p.consume(',') {
				continue
			}
			if p.consume(')') {
				break
			}
			return nil, p.errorf("expected ',' or ')' in tuple")
		}
		if len(elems) == 1 {
			// Parenthesized grouping, not a tuple.
			return elems[0], nil
		}
		return TTuple{Elements: elems}, nil
	}

	name, err := p.ident()
	if err != nil {
		return nil, p.errorf("expected type")
	}
	if name == "opaque" {
		return nil, p.errorf("opaque marker not allowed in this position")
	}

	p.skipSpace()
	if p.consume('<') {
		args := []Type{}
		for {
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			args = append(args, t)
			p.skipSpace()
			if p.consume(',') {
				continue
			}
			if p.consume('>') {
				break
			}
			return nil, p.errorf("expected ',' or '>' in type arguments")
		}
		return TApp{Constructor: TCon{Name: name}, Args: args}, nil
	}
	return TCon{Name: name}, nil
}
