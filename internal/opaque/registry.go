package opaque

import (
	"fmt"

	"github.com/opaline-lang/opaline/internal/diagnostics"
	"github.com/opaline-lang/opaline/internal/typesystem"
)

// Registry owns every opaque declaration in a session, keyed by ID and by
// qualified name. Registration performs the declaration-form checks once;
// resolution never revisits them.
type Registry struct {
	byID   map[typesystem.DeclID]*OpaqueDeclaration
	byName map[string]*OpaqueDeclaration
	order  []typesystem.DeclID
	nextID typesystem.DeclID
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[typesystem.DeclID]*OpaqueDeclaration),
		byName: make(map[string]*OpaqueDeclaration),
	}
}

// Register validates the declaration form, assigns its ID and extracts
// the marker's capability set. The declaration is rejected when it
// carries more than one marker, sits in a context that permits dynamic
// dispatch, or collides with an already registered name.
func (r *Registry) Register(decl *OpaqueDeclaration) error {
	switch n := typesystem.CountMarkers(decl.Shape); {
	case n == 0:
		return fmt.Errorf("declaration %s has no opaque result marker", decl.Name)
	case n > 1:
		return diagnostics.NewError(diagnostics.ErrD001, decl.Token, fmt.Sprintf(
			"%s %s declares %d opaque result markers, only one is allowed",
			decl.Kind, decl.Name, n)).WithFile(decl.File)
	}

	if decl.Context.InProtocol {
		return diagnostics.NewError(diagnostics.ErrD002, decl.Token, fmt.Sprintf(
			"%s %s is a protocol requirement and cannot return an opaque type",
			decl.Kind, decl.Name)).WithFile(decl.File)
	}
	if decl.Context.InOpenClass && !decl.Context.Final {
		return diagnostics.NewError(diagnostics.ErrD002, decl.Token, fmt.Sprintf(
			"%s %s can be overridden and cannot return an opaque type",
			decl.Kind, decl.Name)).WithFile(decl.File)
	}

	qualified := decl.QualifiedName()
	if _, ok := r.byName[qualified]; ok {
		return diagnostics.NewError(diagnostics.ErrD003, decl.Token, fmt.Sprintf(
			"%s is already declared in module %s", decl.Name, decl.Module)).WithFile(decl.File)
	}

	caps, _ := typesystem.MarkerCaps(decl.Shape)
	decl.Caps = caps

	r.nextID++
	decl.ID = r.nextID
	r.byID[decl.ID] = decl
	r.byName[qualified] = decl
	r.order = append(r.order, decl.ID)
	return nil
}

func (r *Registry) Lookup(id typesystem.DeclID) (*OpaqueDeclaration, bool) {
	decl, ok := r.byID[id]
	return decl, ok
}

// LookupName resolves a qualified declaration name, falling back to the
// bare name when it is unambiguous.
func (r *Registry) LookupName(name string) (*OpaqueDeclaration, bool) {
	if decl, ok := r.byName[name]; ok {
		return decl, true
	}
	var found *OpaqueDeclaration
	for _, id := range r.order {
		if decl := r.byID[id]; decl.Name == name {
			if found != nil {
				return nil, false
			}
			found = decl
		}
	}
	return found, found != nil
}

// Decls returns every declaration in registration order.
func (r *Registry) Decls() []*OpaqueDeclaration {
	out := make([]*OpaqueDeclaration, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
