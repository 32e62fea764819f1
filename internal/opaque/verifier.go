package opaque

import (
	"fmt"

	"github.com/opaline-lang/opaline/internal/config"
	"github.com/opaline-lang/opaline/internal/diagnostics"
	"github.com/opaline-lang/opaline/internal/symbols"
	"github.com/opaline-lang/opaline/internal/typesystem"
)

// Verifier checks a resolved underlying type against the capability set
// its handle advertises. Verification runs after resolution and never
// changes a binding.
type Verifier struct {
	table *symbols.Table
}

func NewVerifier(table *symbols.Table) *Verifier {
	return &Verifier{table: table}
}

// Verify checks that underlying conforms to every capability in the
// active set and that every associated-type binding on the marker holds.
// Binding right-hand sides may name Self; the underlying type stands in
// for it. Parameter bounds of the declaration back any rigid arguments
// still present in the underlying type.
func (v *Verifier) Verify(decl *OpaqueDeclaration, underlying typesystem.Type, caps typesystem.CapabilitySet) []*diagnostics.DiagnosticError {
	var errs []*diagnostics.DiagnosticError
	asm := decl.BoundAssumptions()
	selfSubst := typesystem.Subst{config.SelfTypeName: underlying}

	for _, name := range caps.Names {
		if !v.table.Conforms(underlying, name, asm) {
			errs = append(errs, diagnostics.NewError(diagnostics.ErrV201, decl.Token, fmt.Sprintf(
				"the underlying type %s of %s %s does not conform to %s",
				underlying, decl.Kind, decl.Name, name)).WithFile(decl.File))
		}
	}

	for _, binding := range caps.Bindings {
		if _, ok := v.table.AssocOwnerInSet(caps, binding.Name); !ok {
			errs = append(errs, diagnostics.NewError(diagnostics.ErrV203, decl.Token, fmt.Sprintf(
				"no capability of %s %s declares an associated type %s",
				decl.Kind, decl.Name, binding.Name)).WithFile(decl.File))
			continue
		}

		got, ok := v.table.AssociatedType(underlying, binding.Name, asm)
		if !ok {
			errs = append(errs, diagnostics.NewError(diagnostics.ErrV202, decl.Token, fmt.Sprintf(
				"%s does not provide an associated type %s",
				underlying, binding.Name)).WithFile(decl.File))
			continue
		}

		want := v.table.NormalizeProjection(binding.Type.Apply(selfSubst), asm)
		gotNorm := v.table.NormalizeProjection(got, asm)
		if !typesystem.Equal(gotNorm, want) {
			errs = append(errs, diagnostics.NewError(diagnostics.ErrV202, decl.Token, fmt.Sprintf(
				"associated type %s of %s is %s, but the declaration requires %s",
				binding.Name, underlying, gotNorm, want)).WithFile(decl.File))
		}
	}
	return errs
}
