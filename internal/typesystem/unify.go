package typesystem

import (
	"fmt"
	"reflect"
)

// Unify attempts to find a substitution that makes t1 and t2 equal.
// It enforces strict equality (invariant): the only flexible positions are
// type variables, which bind with an occurs check. The conformance table
// uses this to match generic conformance targets (Stack<E>) against
// concrete types (Stack<Int>) and derive E = Int.
func Unify(t1, t2 Type) (Subst, error) {
	// If types are strictly equal
	if reflect.DeepEqual(t1, t2) {
		return Subst{}, nil
	}

	switch t1 := t1.(type) {
	case TVar:
		return Bind(t1, t2)

	case TCon:
		switch t2 := t2.(type) {
		case TVar:
			return Bind(t2, t1)
		case TCon:
			// Same name (ignoring module when one side is unqualified)
			if t1.Name == t2.Name && (t1.Module == t2.Module || t1.Module == "" || t2.Module == "") {
				return Subst{}, nil
			}
			return nil, errUnifyMsg(t1, t2, "type constant mismatch")
		default:
			return nil, errUnify(t1, t2)
		}

	case TApp:
		switch t2 := t2.(type) {
		case TVar:
			return Bind(t2, t1)
		case TApp:
			s1, err := Unify(t1.Constructor, t2.Constructor)
			if err != nil {
				return nil, err
			}
			if len(t1.Args) != len(t2.Args) {
				return nil, errMismatch(fmt.Sprintf("type arguments length mismatch: %d vs %d", len(t1.Args), len(t2.Args)))
			}
			for i := 0; i < len(t1.Args); i++ {
				arg1 := t1.Args[i].Apply(s1)
				arg2 := t2.Args[i].Apply(s1)
				s2, err := Unify(arg1, arg2)
				if err != nil {
					return nil, err
				}
				s1 = s1.Compose(s2)
			}
			return s1, nil
		default:
			return nil, errUnify(t1, t2)
		}

	case TTuple:
		switch t2 := t2.(type) {
		case TVar:
			return Bind(t2, t1)
		case TTuple:
			if len(t1.Elements) != len(t2.Elements) {
				return nil, errMismatch(fmt.Sprintf("tuple length mismatch: %d vs %d", len(t1.Elements), len(t2.Elements)))
			}
			s1 := Subst{}
			for i := 0; i < len(t1.Elements); i++ {
				arg1 := t1.Elements[i].Apply(s1)
				arg2 := t2.Elements[i].Apply(s1)
				s2, err := Unify(arg1, arg2)
				if err != nil {
					return nil, err
				}
				s1 = s1.Compose(s2)
			}
			return s1, nil
		default:
			return nil, errUnifyMsg(t1, t2, "cannot unify tuple")
		}

	case TOpaque:
		switch t2 := t2.(type) {
		case TVar:
			return Bind(t2, t1)
		case TOpaque:
			// Two handles are the same type only when they share the
			// declaration; structural similarity of underlying types is
			// deliberately irrelevant here.
			if t1.Decl != t2.Decl {
				return nil, errUnifyMsg(t1, t2, "distinct opaque types")
			}
			if len(t1.Args) != len(t2.Args) {
				return nil, errMismatch(fmt.Sprintf("opaque argument length mismatch: %d vs %d", len(t1.Args), len(t2.Args)))
			}
			s1 := Subst{}
			for i := 0; i < len(t1.Args); i++ {
				s2, err := Unify(t1.Args[i].Apply(s1), t2.Args[i].Apply(s1))
				if err != nil {
					return nil, err
				}
				s1 = s1.Compose(s2)
			}
			return s1, nil
		default:
			return nil, errUnify(t1, t2)
		}

	case TAssoc:
		switch t2 := t2.(type) {
		case TVar:
			return Bind(t2, t1)
		case TAssoc:
			if t1.Name != t2.Name {
				return nil, errUnifyMsg(t1, t2, "associated type mismatch")
			}
			return Unify(t1.Base, t2.Base)
		default:
			return nil, errUnify(t1, t2)
		}

	case TMarker:
		return nil, errMismatch("opaque marker cannot participate in unification")

	default:
		return nil, errMismatch(fmt.Sprintf("unknown type kind: %T", t1))
	}
}

// Bind binds a type variable to a type, performing the occurs check.
func Bind(tv TVar, t Type) (Subst, error) {
	// If t is the same variable, return empty substitution
	if tVal, ok := t.(TVar); ok && tVal.Name == tv.Name {
		return Subst{}, nil
	}

	// Occurs check: ensure tv does not appear in t (to avoid infinite types like a = Stack<a>)
	if OccursCheck(tv, t) {
		return nil, errMismatch(fmt.Sprintf("infinite type detected: %s in %s", tv, t))
	}

	return Subst{tv.Name: t}, nil
}

// OccursCheck returns true if tv appears free in t.
func OccursCheck(tv TVar, t Type) bool {
	for _, v := range t.FreeTypeVariables() {
		if v.Name == tv.Name {
			return true
		}
	}
	return false
}

func errUnify(t1, t2 Type) error {
	return fmt.Errorf("cannot unify %s with %s", t1, t2)
}

func errUnifyMsg(t1, t2 Type, msg string) error {
	return fmt.Errorf("%s: %s vs %s", msg, t1, t2)
}

func errMismatch(msg string) error {
	return fmt.Errorf("type mismatch: %s", msg)
}
