package diagnostics

import (
	"fmt"
	"sort"

	"github.com/opaline-lang/opaline/internal/token"
)

// ErrorCode identifies a diagnostic kind. Codes are grouped by phase:
// D - declaration registration, L - document loading, R - resolution,
// V - verification, K - identity and use-site checks.
type ErrorCode string

const (
	// Registration (internal/opaque registry).
	ErrD001 ErrorCode = "D001" // more than one opaque marker in a result type
	ErrD002 ErrorCode = "D002" // opaque result in an illegal declaration context
	ErrD003 ErrorCode = "D003" // duplicate declaration name in one module

	// Document loading (internal/manifest).
	ErrL001 ErrorCode = "L001" // malformed type expression
	ErrL002 ErrorCode = "L002" // reference to an unknown type
	ErrL003 ErrorCode = "L003" // reference to an unknown capability
	ErrL004 ErrorCode = "L004" // wrong number of generic arguments
	ErrL005 ErrorCode = "L005" // duplicate definition
	ErrL006 ErrorCode = "L006" // exit calls an unknown declaration
	ErrL007 ErrorCode = "L007" // malformed document structure

	// Resolution (internal/opaque resolver).
	ErrR101 ErrorCode = "R101" // exits disagree on the underlying type
	ErrR102 ErrorCode = "R102" // declaration has no exit points
	ErrR103 ErrorCode = "R103" // every exit is recursive, no concrete basis
	ErrR104 ErrorCode = "R104" // resolution depth limit exceeded
	ErrR105 ErrorCode = "R105" // exit depends on a declaration that failed
	ErrR106 ErrorCode = "R106" // underlying type defined in terms of itself

	// Verification (internal/opaque verifier).
	ErrV201 ErrorCode = "V201" // underlying type does not satisfy a capability
	ErrV202 ErrorCode = "V202" // associated type equality does not hold
	ErrV203 ErrorCode = "V203" // associated name not declared by any capability in the set

	// Identity and use sites.
	ErrK301 ErrorCode = "K301" // values of distinct opaque keys treated as one type
	ErrK302 ErrorCode = "K302" // concrete type assumed for a key outside its boundary
)

// DiagnosticError is the error type every phase reports. It carries the
// stable code, the document position and the file it came from.
type DiagnosticError struct {
	Code    ErrorCode
	Token   token.Token
	File    string
	Message string
	Cause   error
}

// NewError creates a diagnostic at the given token.
func NewError(code ErrorCode, tok token.Token, message string) *DiagnosticError {
	return &DiagnosticError{Code: code, Token: tok, Message: message}
}

// WithFile attaches the originating file path.
func (e *DiagnosticError) WithFile(file string) *DiagnosticError {
	e.File = file
	return e
}

// WithCause chains the underlying failure (e.g. the callee's diagnostic for R105).
func (e *DiagnosticError) WithCause(cause error) *DiagnosticError {
	e.Cause = cause
	return e
}

func (e *DiagnosticError) Error() string {
	pos := ""
	if e.Token.Line > 0 {
		pos = fmt.Sprintf("%d:%d: ", e.Token.Line, e.Token.Column)
	}
	if e.File != "" {
		return fmt.Sprintf("%s:%serror[%s]: %s", e.File, " "+pos, e.Code, e.Message)
	}
	return fmt.Sprintf("%serror[%s]: %s", pos, e.Code, e.Message)
}

func (e *DiagnosticError) Unwrap() error {
	return e.Cause
}

// Collector accumulates diagnostics across phases, deduplicating by
// position and code so repeated resolutions of the same declaration do
// not multiply reports.
type Collector struct {
	errs []*DiagnosticError
	seen map[string]bool
}

func NewCollector() *Collector {
	return &Collector{seen: make(map[string]bool)}
}

func (c *Collector) Add(err *DiagnosticError) {
	if err == nil {
		return
	}
	key := fmt.Sprintf("%s:%d:%d:%s:%s", err.File, err.Token.Line, err.Token.Column, err.Code, err.Message)
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.errs = append(c.errs, err)
}

// AddError records any error, promoting plain errors to L007 diagnostics.
func (c *Collector) AddError(err error) {
	if err == nil {
		return
	}
	if diag, ok := err.(*DiagnosticError); ok {
		c.Add(diag)
		return
	}
	c.Add(NewError(ErrL007, token.Token{}, err.Error()))
}

func (c *Collector) HasErrors() bool {
	return len(c.errs) > 0
}

// Errors returns the collected diagnostics sorted by file, position and code
// for deterministic reporting.
func (c *Collector) Errors() []*DiagnosticError {
	out := make([]*DiagnosticError, len(c.errs))
	copy(out, c.errs)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Token.Line != b.Token.Line {
			return a.Token.Line < b.Token.Line
		}
		if a.Token.Column != b.Token.Column {
			return a.Token.Column < b.Token.Column
		}
		return a.Code < b.Code
	})
	return out
}
