package opaque

import (
	"testing"

	"github.com/opaline-lang/opaline/internal/config"
	"github.com/opaline-lang/opaline/internal/diagnostics"
	"github.com/opaline-lang/opaline/internal/symbols"
	"github.com/opaline-lang/opaline/internal/typesystem"
)

func mustParse(t *testing.T, src string) typesystem.Type {
	t.Helper()
	typ, err := typesystem.ParseType(src)
	if err != nil {
		t.Fatalf("ParseType(%q) error: %v", src, err)
	}
	return typ
}

// testTable builds the world the engine tests run against: a capability
// hierarchy, nominal types and their conformances.
func testTable(t *testing.T) *symbols.Table {
	t.Helper()
	table := symbols.New()

	caps := []symbols.CapabilityDef{
		{Name: "Equatable", Public: true},
		{Name: "Hashable", Extends: []string{"Equatable"}, Public: true},
		{Name: "Collection", Assoc: []string{"Element", "Index"}, Public: true},
		{Name: "BidirectionalCollection", Extends: []string{"Collection"}, Public: true},
		{Name: "RandomAccessCollection", Extends: []string{"BidirectionalCollection"}, Public: true},
		{Name: "Drawable", Public: true},
		{Name: "Initializable", Public: true},
		{Name: "Container", Assoc: []string{"Item"}, Public: true},
	}
	for _, def := range caps {
		if err := table.DefineCapability(def); err != nil {
			t.Fatalf("DefineCapability(%s) error: %v", def.Name, err)
		}
	}

	types := []symbols.TypeDef{
		{Name: "Array", Params: []string{"E"}, Module: "core", Public: true},
		{Name: "Stack", Params: []string{"E"}, Module: "core", Public: true},
		{Name: "ReversedView", Params: []string{"C"}, Module: "core", Public: true},
		{Name: "Square", Module: "core", Public: true},
		{Name: "Circle", Module: "core", Public: true},
		{Name: "Box", Module: "core", Public: true},
		{Name: "Pair", Module: "core", Public: true},
		{Name: "Secret", Module: "vault"},
	}
	for _, def := range types {
		if err := table.DefineType(def); err != nil {
			t.Fatalf("DefineType(%s) error: %v", def.Name, err)
		}
	}

	conformances := []symbols.ConformanceDef{
		{Capability: "Equatable", Target: mustParse(t, "Int")},
		{Capability: "Equatable", Target: mustParse(t, "String")},
		{Capability: "Drawable", Target: mustParse(t, "Square")},
		{Capability: "Drawable", Target: mustParse(t, "Circle")},
		{Capability: "Drawable", Target: mustParse(t, "Secret")},
		{
			Capability: "Collection",
			Target:     mustParse(t, "Array<E>"),
			Assoc: []typesystem.AssocBinding{
				{Name: "Element", Type: typesystem.TVar{Name: "E"}},
				{Name: "Index", Type: typesystem.TCon{Name: "Int"}},
			},
		},
		{Capability: "RandomAccessCollection", Target: mustParse(t, "Array<E>")},
		{
			Capability: "Collection",
			Target:     mustParse(t, "Stack<E>"),
			Assoc: []typesystem.AssocBinding{
				{Name: "Element", Type: typesystem.TVar{Name: "E"}},
				{Name: "Index", Type: typesystem.TCon{Name: "Int"}},
			},
		},
		{
			Capability: "Equatable",
			Target:     mustParse(t, "Stack<E>"),
			Requirements: []typesystem.Requirement{
				{Subject: typesystem.TVar{Name: "E"}, Capability: "Equatable"},
			},
		},
		{
			Capability: "Collection",
			Target:     mustParse(t, "ReversedView<C>"),
			Assoc: []typesystem.AssocBinding{
				{Name: "Element", Type: mustParse(t, "C.Element")},
				{Name: "Index", Type: typesystem.TCon{Name: "Int"}},
			},
			Requirements: []typesystem.Requirement{
				{Subject: typesystem.TVar{Name: "C"}, Capability: "Collection"},
			},
		},
		{
			Capability: "RandomAccessCollection",
			Target:     mustParse(t, "ReversedView<C>"),
			Requirements: []typesystem.Requirement{
				{Subject: typesystem.TVar{Name: "C"}, Capability: "RandomAccessCollection"},
			},
		},
		{
			Capability: "Container",
			Target:     mustParse(t, "Box"),
			Assoc:      []typesystem.AssocBinding{{Name: "Item", Type: typesystem.TCon{Name: "Box"}}},
		},
		{
			Capability: "Container",
			Target:     mustParse(t, "Pair"),
			Assoc:      []typesystem.AssocBinding{{Name: "Item", Type: typesystem.TCon{Name: "Int"}}},
		},
	}
	for _, def := range conformances {
		if err := table.RegisterConformance(def); err != nil {
			t.Fatalf("RegisterConformance(%s) error: %v", def, err)
		}
	}
	return table
}

func testSession(t *testing.T) *Session {
	t.Helper()
	return NewSession(testTable(t))
}

func mkFunc(t *testing.T, name, shape string, exits ...ExitPoint) *OpaqueDeclaration {
	t.Helper()
	return &OpaqueDeclaration{
		Name:   name,
		Kind:   config.KindFunc,
		Module: "core",
		Shape:  mustParse(t, shape),
		Exits:  exits,
	}
}

func exitType(t *testing.T, src string) ExitPoint {
	t.Helper()
	return ExitPoint{Type: mustParse(t, src)}
}

func exitCall(t *testing.T, name string, args ...string) ExitPoint {
	t.Helper()
	e := ExitPoint{Call: name}
	for _, a := range args {
		e.CallArgs = append(e.CallArgs, mustParse(t, a))
	}
	return e
}

func register(t *testing.T, s *Session, decl *OpaqueDeclaration) {
	t.Helper()
	if err := s.Registry.Register(decl); err != nil {
		t.Fatalf("Register(%s) error: %v", decl.Name, err)
	}
}

func diagCode(t *testing.T, err error) diagnostics.ErrorCode {
	t.Helper()
	diag, ok := err.(*diagnostics.DiagnosticError)
	if !ok {
		t.Fatalf("error %v is not a diagnostic", err)
	}
	return diag.Code
}

func hasCode(errs []*diagnostics.DiagnosticError, code diagnostics.ErrorCode) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}
