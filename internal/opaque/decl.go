package opaque

import (
	"github.com/opaline-lang/opaline/internal/symbols"
	"github.com/opaline-lang/opaline/internal/token"
	"github.com/opaline-lang/opaline/internal/typesystem"
)

// GenericParam is one generic parameter of a declaration together with
// the capability bounds it carries.
type GenericParam struct {
	Name   string
	Bounds []string
}

// ExitPoint is one way control leaves the declaration body with a result.
// Either Type is set (the exit returns a value of that static type) or
// Call names another opaque declaration whose handle this exit returns.
type ExitPoint struct {
	Type     typesystem.Type
	Call     string
	CallArgs []typesystem.Type
	Token    token.Token
}

func (e ExitPoint) IsCall() bool { return e.Call != "" }

// ConditionalClause adds capabilities to the opaque result for
// instantiations whose guards hold.
type ConditionalClause struct {
	Guards []typesystem.Requirement
	Adds   typesystem.CapabilitySet
}

// DeclContext captures where a declaration appears. Opaque results are
// only legal where a single underlying type can exist, so protocol
// requirements and overridable class members are rejected at
// registration.
type DeclContext struct {
	InProtocol  bool
	InOpenClass bool
	Final       bool
	Inlinable   bool
}

// OpaqueDeclaration is a declaration whose result type carries an opaque
// marker. Shape is the declared result with the marker embedded; Caps is
// the marker's declared capability set, extracted at registration.
type OpaqueDeclaration struct {
	ID          typesystem.DeclID
	Name        string
	Kind        string
	Module      string
	Params      []GenericParam
	Shape       typesystem.Type
	Caps        typesystem.CapabilitySet
	Conditional []ConditionalClause
	Exits       []ExitPoint
	Context     DeclContext
	Token       token.Token
	File        string
}

func (d *OpaqueDeclaration) QualifiedName() string {
	if d.Module == "" {
		return d.Name
	}
	return d.Module + "." + d.Name
}

// ParamSubst maps the declaration's generic parameters positionally onto
// the given instantiation arguments.
func (d *OpaqueDeclaration) ParamSubst(args []typesystem.Type) typesystem.Subst {
	subst := make(typesystem.Subst, len(d.Params))
	for i, p := range d.Params {
		if i < len(args) {
			subst[p.Name] = args[i]
		}
	}
	return subst
}

// ParamVars returns the declaration's own parameters as rigid type
// variables, the instantiation used when checking the declaration once
// for all arguments.
func (d *OpaqueDeclaration) ParamVars() []typesystem.Type {
	if len(d.Params) == 0 {
		return nil
	}
	vars := make([]typesystem.Type, len(d.Params))
	for i, p := range d.Params {
		vars[i] = typesystem.TVar{Name: p.Name}
	}
	return vars
}

// BoundAssumptions returns the capability assumptions granted by the
// declaration's parameter bounds.
func (d *OpaqueDeclaration) BoundAssumptions() symbols.Assumptions {
	asm := make(symbols.Assumptions)
	for _, p := range d.Params {
		for _, bound := range p.Bounds {
			asm[p.Name] = append(asm[p.Name], bound)
		}
	}
	return asm
}

// Handle returns the opaque handle type for an instantiation of the
// declaration.
func (d *OpaqueDeclaration) Handle(args []typesystem.Type) typesystem.TOpaque {
	return typesystem.TOpaque{Decl: d.ID, DeclName: d.Name, Args: args}
}
