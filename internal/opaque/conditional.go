package opaque

import (
	"github.com/opaline-lang/opaline/internal/symbols"
	"github.com/opaline-lang/opaline/internal/typesystem"
)

// ActiveCapabilities computes the capability set a handle carries for one
// instantiation: the declared base set plus every conditional clause
// whose guards hold for the given arguments. Clauses are evaluated
// independently against the same instantiation, so the order they were
// written in never changes the result; the set itself is canonicalized
// on construction.
func ActiveCapabilities(decl *OpaqueDeclaration, args []typesystem.Type, table *symbols.Table, asm symbols.Assumptions) typesystem.CapabilitySet {
	subst := decl.ParamSubst(args)
	active := decl.Caps.Apply(subst)

	for _, clause := range decl.Conditional {
		holds := true
		for _, guard := range clause.Guards {
			if !table.Satisfied(guard.Apply(subst), asm) {
				holds = false
				break
			}
		}
		if holds {
			active = active.Union(clause.Adds.Apply(subst))
		}
	}
	return active
}
