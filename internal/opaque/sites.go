package opaque

import (
	"fmt"

	"github.com/opaline-lang/opaline/internal/diagnostics"
	"github.com/opaline-lang/opaline/internal/token"
	"github.com/opaline-lang/opaline/internal/typesystem"
)

// Use-site kinds as they appear in interface documents.
const (
	SiteSameType = "same_type"
	SiteAssign   = "assign"
)

// HandleRef names one opaque value occurrence: a call to an opaque
// declaration with explicit type arguments.
type HandleRef struct {
	Decl string
	Args []typesystem.Type
}

// UseSite is one place in client code that consumes opaque values. The
// front end reduces expressions down to these forms; the engine checks
// the assumption each site makes against the session's bindings.
//
// A same_type site assumes the values of A and B share one type. An
// assign site assumes the value of A can be stored as the concrete
// Target type.
type UseSite struct {
	Kind   string
	Module string
	InDecl string
	A, B   HandleRef
	Target typesystem.Type
	Token  token.Token
	File   string
}

// CheckSite verifies one use site.
func (s *Session) CheckSite(site UseSite) []*diagnostics.DiagnosticError {
	switch site.Kind {
	case SiteSameType:
		return s.checkSameType(site)
	case SiteAssign:
		return s.checkAssign(site)
	default:
		return []*diagnostics.DiagnosticError{diagnostics.NewError(diagnostics.ErrL007, site.Token,
			fmt.Sprintf("unknown use-site kind %q", site.Kind)).WithFile(site.File)}
	}
}

func (s *Session) siteKey(ref HandleRef, site UseSite) (OpaqueKey, *OpaqueDeclaration, *diagnostics.DiagnosticError) {
	decl, ok := s.Registry.LookupName(ref.Decl)
	if !ok {
		return OpaqueKey{}, nil, diagnostics.NewError(diagnostics.ErrL006, site.Token, fmt.Sprintf(
			"use site references unknown opaque declaration %s", ref.Decl)).WithFile(site.File)
	}
	if len(ref.Args) != len(decl.Params) {
		return OpaqueKey{}, nil, diagnostics.NewError(diagnostics.ErrL004, site.Token, fmt.Sprintf(
			"%s takes %d type arguments, got %d",
			decl.Name, len(decl.Params), len(ref.Args))).WithFile(site.File)
	}
	return NewKey(decl.ID, ref.Args), decl, nil
}

// checkSameType rejects sites that treat two handles as one type unless
// their keys agree: same declaration, same arguments.
func (s *Session) checkSameType(site UseSite) []*diagnostics.DiagnosticError {
	keyA, declA, diag := s.siteKey(site.A, site)
	if diag != nil {
		return []*diagnostics.DiagnosticError{diag}
	}
	keyB, declB, diag := s.siteKey(site.B, site)
	if diag != nil {
		return []*diagnostics.DiagnosticError{diag}
	}
	if keyA.Fingerprint() == keyB.Fingerprint() {
		return nil
	}

	var msg string
	if declA.ID == declB.ID {
		msg = fmt.Sprintf(
			"two calls to %s %s with different type arguments produce distinct opaque types: %s vs %s",
			declA.Kind, declA.Name, keyA, keyB)
	} else {
		msg = fmt.Sprintf(
			"the opaque results of %s and %s are distinct types even when their capabilities agree",
			declA.Name, declB.Name)
	}
	return []*diagnostics.DiagnosticError{
		diagnostics.NewError(diagnostics.ErrK301, site.Token, msg).WithFile(site.File),
	}
}

// checkAssign rejects sites that store an opaque value as a concrete
// type from outside the opacity boundary, and sites inside the boundary
// that name the wrong concrete type.
func (s *Session) checkAssign(site UseSite) []*diagnostics.DiagnosticError {
	key, decl, diag := s.siteKey(site.A, site)
	if diag != nil {
		return []*diagnostics.DiagnosticError{diag}
	}

	inBody := site.InDecl != "" && site.InDecl == decl.QualifiedName()
	if !s.boundary.ConcreteVisible(key, site.Module, inBody) {
		return []*diagnostics.DiagnosticError{diagnostics.NewError(diagnostics.ErrK302, site.Token, fmt.Sprintf(
			"the concrete type behind %s %s is not visible here; the value can only be used through %s",
			decl.Kind, decl.Name, s.ActiveCaps(key))).WithFile(site.File)}
	}

	revealed, err := s.boundary.Reveal(key)
	if err != nil {
		return []*diagnostics.DiagnosticError{promote(err)}
	}
	if !typesystem.Equal(revealed, site.Target) {
		return []*diagnostics.DiagnosticError{diagnostics.NewError(diagnostics.ErrK302, site.Token, fmt.Sprintf(
			"the value of %s %s has underlying type %s, not %s",
			decl.Kind, decl.Name, revealed, site.Target)).WithFile(site.File)}
	}
	return nil
}
