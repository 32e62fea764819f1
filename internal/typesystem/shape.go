package typesystem

import "fmt"

// CountMarkers returns the number of opaque markers structurally contained
// in a declared result type. Registration requires exactly one.
func CountMarkers(t Type) int {
	if t == nil {
		return 0
	}
	switch typ := t.(type) {
	case TMarker:
		return 1
	case TApp:
		n := CountMarkers(typ.Constructor)
		for _, arg := range typ.Args {
			n += CountMarkers(arg)
		}
		return n
	case TTuple:
		n := 0
		for _, e := range typ.Elements {
			n += CountMarkers(e)
		}
		return n
	case TAssoc:
		return CountMarkers(typ.Base)
	default:
		return 0
	}
}

// MarkerCaps returns the capability set of the first marker found in t.
func MarkerCaps(t Type) (CapabilitySet, bool) {
	if t == nil {
		return CapabilitySet{}, false
	}
	switch typ := t.(type) {
	case TMarker:
		return typ.Caps, true
	case TApp:
		if c, ok := MarkerCaps(typ.Constructor); ok {
			return c, true
		}
		for _, arg := range typ.Args {
			if c, ok := MarkerCaps(arg); ok {
				return c, true
			}
		}
	case TTuple:
		for _, e := range typ.Elements {
			if c, ok := MarkerCaps(e); ok {
				return c, true
			}
		}
	case TAssoc:
		return MarkerCaps(typ.Base)
	}
	return CapabilitySet{}, false
}

// ReplaceMarker replaces every opaque marker in t with the replacement type.
// The registry uses it to install the handle into the declared result; the
// resolver uses it to rebuild a callee's caller-visible result type.
func ReplaceMarker(t Type, replacement Type) Type {
	if t == nil {
		return nil
	}
	switch typ := t.(type) {
	case TMarker:
		return replacement
	case TApp:
		newCtor := ReplaceMarker(typ.Constructor, replacement)
		newArgs := make([]Type, len(typ.Args))
		for i, arg := range typ.Args {
			newArgs[i] = ReplaceMarker(arg, replacement)
		}
		return TApp{Constructor: newCtor, Args: newArgs}
	case TTuple:
		newElements := make([]Type, len(typ.Elements))
		for i, e := range typ.Elements {
			newElements[i] = ReplaceMarker(e, replacement)
		}
		return TTuple{Elements: newElements}
	case TAssoc:
		return TAssoc{Base: ReplaceMarker(typ.Base, replacement), Name: typ.Name}
	default:
		return t
	}
}

// MatchShape matches an exit type against a result shape (the declared
// result with its generic parameters already substituted) and extracts the
// type standing at the marker position. Outside the marker the exit type
// must be identical to the shape. Returns nil without error when the shape
// contains no marker and the types agree.
func MatchShape(shape, concrete Type) (Type, error) {
	if _, ok := shape.(TMarker); ok {
		return concrete, nil
	}
	switch s := shape.(type) {
	case TApp:
		c, ok := concrete.(TApp)
		if !ok || !Equal(s.Constructor, c.Constructor) || len(s.Args) != len(c.Args) {
			return nil, errShape(shape, concrete)
		}
		return matchShapeChildren(s.Args, c.Args, shape, concrete)
	case TTuple:
		c, ok := concrete.(TTuple)
		if !ok || len(s.Elements) != len(c.Elements) {
			return nil, errShape(shape, concrete)
		}
		return matchShapeChildren(s.Elements, c.Elements, shape, concrete)
	default:
		if Equal(shape, concrete) {
			return nil, nil
		}
		return nil, errShape(shape, concrete)
	}
}

func matchShapeChildren(ss, cs []Type, shape, concrete Type) (Type, error) {
	var found Type
	for i := range ss {
		if CountMarkers(ss[i]) == 0 {
			if !Equal(ss[i], cs[i]) {
				return nil, errShape(shape, concrete)
			}
			continue
		}
		got, err := MatchShape(ss[i], cs[i])
		if err != nil {
			return nil, err
		}
		found = got
	}
	return found, nil
}

// HandlesIn collects every opaque handle in t in preorder, including
// handles nested inside other handles' arguments.
func HandlesIn(t Type) []TOpaque {
	var out []TOpaque
	collectHandles(t, &out)
	return out
}

func collectHandles(t Type, out *[]TOpaque) {
	if t == nil {
		return
	}
	switch typ := t.(type) {
	case TOpaque:
		*out = append(*out, typ)
		for _, arg := range typ.Args {
			collectHandles(arg, out)
		}
	case TApp:
		collectHandles(typ.Constructor, out)
		for _, arg := range typ.Args {
			collectHandles(arg, out)
		}
	case TTuple:
		for _, e := range typ.Elements {
			collectHandles(e, out)
		}
	case TAssoc:
		collectHandles(typ.Base, out)
	}
}

// ContainsDecl reports whether t contains the opaque handle of the given
// declaration anywhere in its structure.
func ContainsDecl(t Type, id DeclID) bool {
	if t == nil {
		return false
	}
	switch typ := t.(type) {
	case TOpaque:
		if typ.Decl == id {
			return true
		}
		for _, arg := range typ.Args {
			if ContainsDecl(arg, id) {
				return true
			}
		}
		return false
	case TApp:
		if ContainsDecl(typ.Constructor, id) {
			return true
		}
		for _, arg := range typ.Args {
			if ContainsDecl(arg, id) {
				return true
			}
		}
		return false
	case TTuple:
		for _, e := range typ.Elements {
			if ContainsDecl(e, id) {
				return true
			}
		}
		return false
	case TAssoc:
		return ContainsDecl(typ.Base, id)
	default:
		return false
	}
}

func errShape(shape, concrete Type) error {
	return fmt.Errorf("type %s does not fit result shape %s", concrete, shape)
}
