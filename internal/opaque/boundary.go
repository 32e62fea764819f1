package opaque

import (
	"fmt"

	"github.com/opaline-lang/opaline/internal/config"
	"github.com/opaline-lang/opaline/internal/diagnostics"
	"github.com/opaline-lang/opaline/internal/symbols"
	"github.com/opaline-lang/opaline/internal/typesystem"
)

// Representation says how a value of an opaque type is handled at a site.
type Representation int

const (
	// Indirect values are reached through the handle's capability set.
	Indirect Representation = iota
	// Direct values expose the underlying concrete layout.
	Direct
)

func (r Representation) String() string {
	if r == Direct {
		return "direct"
	}
	return "indirect"
}

// Boundary decides whether a use site may see through an opaque handle
// to its underlying concrete type.
type Boundary struct {
	registry *Registry
	resolver *Resolver
	table    *symbols.Table
}

func NewBoundary(registry *Registry, resolver *Resolver, table *symbols.Table) *Boundary {
	return &Boundary{registry: registry, resolver: resolver, table: table}
}

// ConcreteVisible reports whether the underlying type behind key is
// visible at a use site. The defining body always sees its own
// underlying type. Any other site sees through only when the declaration
// is inlinable and every component of the underlying type can be named
// from the site's module.
func (b *Boundary) ConcreteVisible(key OpaqueKey, siteModule string, inDefiningBody bool) bool {
	if inDefiningBody {
		return true
	}
	decl, ok := b.registry.Lookup(key.Decl)
	if !ok || !decl.Context.Inlinable {
		return false
	}
	underlying, err := b.resolver.Resolve(key)
	if err != nil {
		return false
	}
	return b.table.TypeVisibleFrom(underlying, siteModule)
}

// RepresentationFor returns Direct when the site may rely on the
// concrete layout and Indirect otherwise.
func (b *Boundary) RepresentationFor(key OpaqueKey, siteModule string, inDefiningBody bool) Representation {
	if b.ConcreteVisible(key, siteModule, inDefiningBody) {
		return Direct
	}
	return Indirect
}

// Reveal follows the binding chain behind key until it reaches an
// underlying type that is not itself an opaque handle. A chain that
// returns to the starting declaration cannot terminate and reports
// self-definition; chains longer than the resolution depth limit report
// overflow; a failed binding partway down reports a dependency failure
// against the starting key.
func (b *Boundary) Reveal(key OpaqueKey) (typesystem.Type, error) {
	start, ok := b.registry.Lookup(key.Decl)
	if !ok {
		return nil, fmt.Errorf("no opaque declaration for key %s", key)
	}

	current := key
	for depth := 0; depth < config.MaxResolveDepth; depth++ {
		underlying, err := b.resolver.Resolve(current)
		if err != nil {
			if depth == 0 {
				return nil, err
			}
			through, _ := b.registry.Lookup(current.Decl)
			name := current.String()
			if through != nil {
				name = through.Name
			}
			return nil, diagnostics.NewError(diagnostics.ErrR105, start.Token, fmt.Sprintf(
				"the underlying type of %s %s depends on %s, which failed to resolve",
				start.Kind, start.Name, name)).WithFile(start.File).WithCause(err)
		}
		h, ok := underlying.(typesystem.TOpaque)
		if !ok {
			return underlying, nil
		}
		if typesystem.ContainsDecl(underlying, key.Decl) {
			return nil, diagnostics.NewError(diagnostics.ErrR106, start.Token, fmt.Sprintf(
				"the opaque result of %s %s is defined in terms of itself",
				start.Kind, start.Name)).WithFile(start.File)
		}
		current = KeyFor(h)
	}
	return nil, diagnostics.NewError(diagnostics.ErrR104, start.Token, fmt.Sprintf(
		"the opaque binding chain behind %s %s exceeds %d levels",
		start.Kind, start.Name, config.MaxResolveDepth)).WithFile(start.File)
}
