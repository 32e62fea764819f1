package token

import "fmt"

// Token anchors a definition or diagnostic to a position in an interface
// document. The loader synthesizes tokens from YAML node positions; Lexeme
// holds the text being reported on (a declaration name, a type expression).
type Token struct {
	Lexeme string
	Line   int
	Column int
}

// At builds a token for the given lexeme and position.
func At(lexeme string, line, column int) Token {
	return Token{Lexeme: lexeme, Line: line, Column: column}
}

func (t Token) String() string {
	if t.Line == 0 {
		return t.Lexeme
	}
	return fmt.Sprintf("%s@%d:%d", t.Lexeme, t.Line, t.Column)
}
