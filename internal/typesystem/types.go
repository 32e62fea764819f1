package typesystem

import (
	"fmt"
	"reflect"
	"strings"
)

// Type is the interface for all types in our system.
type Type interface {
	String() string
	Apply(Subst) Type
	FreeTypeVariables() []TVar
}

// DeclID identifies a registered opaque declaration. The registry assigns
// IDs densely starting at 1; the zero value is never a valid declaration.
type DeclID uint32

// TVar represents a generic parameter used rigidly (e.g. 'T' inside the
// declaration that introduces it) or the binding variable of a conformance
// target (e.g. 'E' in Stack<E>).
type TVar struct {
	Name string
}

func (t TVar) String() string { return t.Name }

func (t TVar) Apply(s Subst) Type {
	return ApplyWithCycleCheck(t, s, make(map[string]bool))
}

func (t TVar) FreeTypeVariables() []TVar {
	return []TVar{t}
}

// TCon represents a nominal type constant (e.g. Int, String, Self).
type TCon struct {
	Name   string
	Module string // Optional module qualifier for imported types
}

func (t TCon) String() string {
	if t.Module != "" {
		return t.Module + "." + t.Name
	}
	return t.Name
}

func (t TCon) Apply(s Subst) Type {
	return ApplyWithCycleCheck(t, s, make(map[string]bool))
}

func (t TCon) FreeTypeVariables() []TVar {
	return []TVar{}
}

// TApp represents a generic type application (e.g. Stack<Int>).
type TApp struct {
	Constructor Type
	Args        []Type
}

func (t TApp) String() string {
	args := []string{}
	for _, arg := range t.Args {
		args = append(args, arg.String())
	}
	if len(args) == 0 {
		return t.Constructor.String()
	}
	return fmt.Sprintf("%s<%s>", t.Constructor.String(), strings.Join(args, ", "))
}

func (t TApp) Apply(s Subst) Type {
	return ApplyWithCycleCheck(t, s, make(map[string]bool))
}

func (t TApp) FreeTypeVariables() []TVar {
	vars := []TVar{}
	vars = append(vars, t.Constructor.FreeTypeVariables()...)
	for _, arg := range t.Args {
		vars = append(vars, arg.FreeTypeVariables()...)
	}
	return uniqueTVars(vars)
}

// TTuple represents a tuple type (e.g. (Int, Bool)).
type TTuple struct {
	Elements []Type
}

func (t TTuple) String() string {
	args := []string{}
	for _, el := range t.Elements {
		args = append(args, el.String())
	}
	return fmt.Sprintf("(%s)", strings.Join(args, ", "))
}

func (t TTuple) Apply(s Subst) Type {
	return ApplyWithCycleCheck(t, s, make(map[string]bool))
}

func (t TTuple) FreeTypeVariables() []TVar {
	vars := []TVar{}
	for _, el := range t.Elements {
		vars = append(vars, el.FreeTypeVariables()...)
	}
	return uniqueTVars(vars)
}

// TAssoc represents an associated-type projection (e.g. T.Element,
// Self.Index). Projections appear inside requirements and are normalized
// away against the conformance table before any unification.
type TAssoc struct {
	Base Type
	Name string
}

func (t TAssoc) String() string {
	return t.Base.String() + "." + t.Name
}

func (t TAssoc) Apply(s Subst) Type {
	return ApplyWithCycleCheck(t, s, make(map[string]bool))
}

func (t TAssoc) FreeTypeVariables() []TVar {
	return t.Base.FreeTypeVariables()
}

// TOpaque is the caller-visible handle of a resolved opaque result type.
// Identity is the declaration plus the generic-argument tuple; the
// underlying concrete type is never part of the handle.
type TOpaque struct {
	Decl     DeclID
	DeclName string
	Args     []Type
}

func (t TOpaque) String() string {
	if len(t.Args) == 0 {
		return "opaque " + t.DeclName
	}
	args := []string{}
	for _, arg := range t.Args {
		args = append(args, arg.String())
	}
	return fmt.Sprintf("opaque %s<%s>", t.DeclName, strings.Join(args, ", "))
}

func (t TOpaque) Apply(s Subst) Type {
	return ApplyWithCycleCheck(t, s, make(map[string]bool))
}

func (t TOpaque) FreeTypeVariables() []TVar {
	vars := []TVar{}
	for _, arg := range t.Args {
		vars = append(vars, arg.FreeTypeVariables()...)
	}
	return uniqueTVars(vars)
}

// TMarker is the `opaque C1 & C2 where A == T` marker inside a declared
// result type. It only exists between parsing and registration; the
// registry replaces it with a TOpaque handle.
type TMarker struct {
	Caps CapabilitySet
}

func (t TMarker) String() string {
	return "opaque " + t.Caps.String()
}

func (t TMarker) Apply(s Subst) Type {
	return ApplyWithCycleCheck(t, s, make(map[string]bool))
}

func (t TMarker) FreeTypeVariables() []TVar {
	vars := []TVar{}
	for _, b := range t.Caps.Bindings {
		vars = append(vars, b.Type.FreeTypeVariables()...)
	}
	return uniqueTVars(vars)
}

// ApplyWithCycleCheck applies substitution with cycle detection.
// This is the main entry point for substitution application.
func ApplyWithCycleCheck(t Type, s Subst, visited map[string]bool) Type {
	if t == nil {
		return nil
	}

	switch typ := t.(type) {
	case TVar:
		if visited[typ.Name] {
			return typ // Break cycle - return the variable as-is
		}
		if replacement, ok := s[typ.Name]; ok {
			if tv, ok := replacement.(TVar); ok && tv.Name == typ.Name {
				return typ
			}
			newVisited := copyVisited(visited)
			newVisited[typ.Name] = true
			return ApplyWithCycleCheck(replacement, s, newVisited)
		}
		return typ

	case TCon:
		// TCons substitute by name too: Self and skolemized parameters are
		// represented as rigid constants and bound at evaluation time.
		if replacement, ok := s[typ.Name]; ok {
			if tCon, ok := replacement.(TCon); ok && tCon.Name == typ.Name {
				return typ
			}
			if visited[typ.Name] {
				return typ
			}
			newVisited := copyVisited(visited)
			newVisited[typ.Name] = true
			return ApplyWithCycleCheck(replacement, s, newVisited)
		}
		return typ

	case TApp:
		newArgs := make([]Type, len(typ.Args))
		for i, arg := range typ.Args {
			newArgs[i] = ApplyWithCycleCheck(arg, s, visited)
		}
		return TApp{
			Constructor: ApplyWithCycleCheck(typ.Constructor, s, visited),
			Args:        newArgs,
		}

	case TTuple:
		newElems := make([]Type, len(typ.Elements))
		for i, e := range typ.Elements {
			newElems[i] = ApplyWithCycleCheck(e, s, visited)
		}
		return TTuple{Elements: newElems}

	case TAssoc:
		return TAssoc{
			Base: ApplyWithCycleCheck(typ.Base, s, visited),
			Name: typ.Name,
		}

	case TOpaque:
		newArgs := make([]Type, len(typ.Args))
		for i, arg := range typ.Args {
			newArgs[i] = ApplyWithCycleCheck(arg, s, visited)
		}
		return TOpaque{Decl: typ.Decl, DeclName: typ.DeclName, Args: newArgs}

	case TMarker:
		return TMarker{Caps: typ.Caps.Apply(s)}

	default:
		return t.Apply(s)
	}
}

func copyVisited(m map[string]bool) map[string]bool {
	newMap := make(map[string]bool, len(m))
	for k, v := range m {
		newMap[k] = v
	}
	return newMap
}

// Equal reports strict structural equality of two types. The engine's
// identity rules (exit agreement, uniqueness keys) come down to this.
func Equal(t1, t2 Type) bool {
	return reflect.DeepEqual(t1, t2)
}

// Subst is a mapping from type parameter names to Types.
type Subst map[string]Type

// Compose combines two substitutions.
func (s1 Subst) Compose(s2 Subst) Subst {
	subst := Subst{}
	for k, v := range s2 {
		subst[k] = v
	}
	for k, v := range s1 {
		subst[k] = v.Apply(s2)
	}
	return subst
}

func uniqueTVars(vars []TVar) []TVar {
	unique := []TVar{}
	seen := map[string]bool{}
	for _, v := range vars {
		if !seen[v.Name] {
			seen[v.Name] = true
			unique = append(unique, v)
		}
	}
	return unique
}
