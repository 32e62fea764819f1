package symbols

import (
	"fmt"

	"github.com/opaline-lang/opaline/internal/config"
	"github.com/opaline-lang/opaline/internal/token"
	"github.com/opaline-lang/opaline/internal/typesystem"
)

type ScopeType int

const (
	ScopePrelude ScopeType = iota // Built-in types available to every document
	ScopeGlobal                   // Document-level definitions
)

// TypeDef describes a nominal type known to the table.
type TypeDef struct {
	Name    string
	Params  []string
	Module  string
	Public  bool
	Builtin bool
	Token   token.Token
}

func (d TypeDef) Arity() int { return len(d.Params) }

// OpaqueSource answers conformance questions for opaque handles. A handle
// conforms to exactly its active capability set, and only the resolution
// engine knows that set, so the engine registers itself here.
type OpaqueSource interface {
	HandleConforms(h typesystem.TOpaque, capability string) bool
	HandleAssociatedType(h typesystem.TOpaque, name string) (typesystem.Type, bool)
	HandleVisibleFrom(h typesystem.TOpaque, module string) bool
}

// Table is the engine's view of the ordinary type world: nominal types,
// capabilities and conformances. Opaque declarations live in the registry;
// the table answers the checks resolution delegates to the surrounding
// type system.
type Table struct {
	outer     *Table
	scopeType ScopeType

	types        map[string]TypeDef
	capabilities map[string]CapabilityDef
	conformances map[string][]ConformanceDef

	opaque OpaqueSource
}

func newTable(outer *Table, scope ScopeType) *Table {
	return &Table{
		outer:        outer,
		scopeType:    scope,
		types:        make(map[string]TypeDef),
		capabilities: make(map[string]CapabilityDef),
		conformances: make(map[string][]ConformanceDef),
	}
}

// New creates a document scope enclosing a fresh prelude with the builtin
// types registered.
func New() *Table {
	prelude := newTable(nil, ScopePrelude)
	for _, name := range config.BuiltinTypeNames {
		prelude.types[name] = TypeDef{Name: name, Public: true, Builtin: true}
	}
	return newTable(prelude, ScopeGlobal)
}

// Outer returns the outer scope table.
func (s *Table) Outer() *Table {
	return s.outer
}

// IsPrelude returns true if this table is the builtin prelude scope.
func (s *Table) IsPrelude() bool {
	return s.scopeType == ScopePrelude
}

// SetOpaqueSource wires the resolution engine in.
func (s *Table) SetOpaqueSource(src OpaqueSource) {
	s.opaque = src
}

func (s *Table) opaqueSource() OpaqueSource {
	if s.opaque != nil {
		return s.opaque
	}
	if s.outer != nil {
		return s.outer.opaqueSource()
	}
	return nil
}

func (s *Table) DefineType(def TypeDef) error {
	if existing, ok := s.ResolveType(def.Name); ok {
		if existing.Builtin {
			return fmt.Errorf("type %s shadows a builtin type", def.Name)
		}
		return fmt.Errorf("type %s already defined", def.Name)
	}
	s.types[def.Name] = def
	return nil
}

// ResolveType looks the name up in this scope or any outer scope.
func (s *Table) ResolveType(name string) (TypeDef, bool) {
	if def, ok := s.types[name]; ok {
		return def, true
	}
	if s.outer != nil {
		return s.outer.ResolveType(name)
	}
	return TypeDef{}, false
}

func (s *Table) TypeExists(name string) bool {
	_, ok := s.ResolveType(name)
	return ok
}

// TypeVisibleFrom reports whether every nominal component of t can be
// named from the given module. The boundary controller uses this to decide
// whether a use site may see through an opaque handle.
func (s *Table) TypeVisibleFrom(t typesystem.Type, module string) bool {
	switch typ := t.(type) {
	case typesystem.TVar:
		return true
	case typesystem.TCon:
		def, ok := s.ResolveType(typ.Name)
		if !ok {
			return false
		}
		return def.Public || def.Module == module
	case typesystem.TApp:
		if !s.TypeVisibleFrom(typ.Constructor, module) {
			return false
		}
		for _, arg := range typ.Args {
			if !s.TypeVisibleFrom(arg, module) {
				return false
			}
		}
		return true
	case typesystem.TTuple:
		for _, e := range typ.Elements {
			if !s.TypeVisibleFrom(e, module) {
				return false
			}
		}
		return true
	case typesystem.TAssoc:
		return s.TypeVisibleFrom(typ.Base, module)
	case typesystem.TOpaque:
		if src := s.opaqueSource(); src != nil {
			return src.HandleVisibleFrom(typ, module)
		}
		return false
	default:
		return false
	}
}
