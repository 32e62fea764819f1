package opaque

import (
	"testing"

	"github.com/opaline-lang/opaline/internal/typesystem"
)

func mustRequirements(t *testing.T, src string) []typesystem.Requirement {
	t.Helper()
	reqs, err := typesystem.ParseRequirement(src)
	if err != nil {
		t.Fatalf("ParseRequirement(%q) error: %v", src, err)
	}
	return reqs
}

// reversedDecl mirrors a reversed() helper: the result is always a
// Collection, and additionally random access when the source is.
func reversedDecl(t *testing.T) *OpaqueDeclaration {
	decl := mkFunc(t, "reversed", "opaque Collection where Element == C.Element", exitType(t, "ReversedView<C>"))
	decl.Params = []GenericParam{{Name: "C", Bounds: []string{"Collection"}}}
	decl.Conditional = []ConditionalClause{
		{
			Guards: mustRequirements(t, "C: RandomAccessCollection"),
			Adds:   typesystem.NewCapabilitySet([]string{"RandomAccessCollection"}, nil),
		},
	}
	return decl
}

func TestConditionalCapabilitiesActivate(t *testing.T) {
	s := testSession(t)
	decl := reversedDecl(t)
	register(t, s, decl)

	// Array is random access, so the clause fires.
	arrayKey := NewKey(decl.ID, []typesystem.Type{mustParse(t, "Array<Int>")})
	if caps := s.ActiveCaps(arrayKey); !caps.Contains("RandomAccessCollection") {
		t.Errorf("ActiveCaps(Array<Int>) = %s, want RandomAccessCollection included", caps)
	}

	// Stack is only a Collection, so the clause stays inactive.
	stackKey := NewKey(decl.ID, []typesystem.Type{mustParse(t, "Stack<Int>")})
	caps := s.ActiveCaps(stackKey)
	if caps.Contains("RandomAccessCollection") {
		t.Errorf("ActiveCaps(Stack<Int>) = %s, want base set only", caps)
	}
	if !caps.Contains("Collection") {
		t.Errorf("ActiveCaps(Stack<Int>) = %s, want Collection", caps)
	}
}

func TestConditionalRigidArguments(t *testing.T) {
	s := testSession(t)
	decl := reversedDecl(t)
	register(t, s, decl)

	// Against the declaration's own parameters only the bounds hold, and
	// C: Collection does not imply random access.
	caps := s.ActiveCaps(NewKey(decl.ID, decl.ParamVars()))
	if caps.Contains("RandomAccessCollection") {
		t.Errorf("ActiveCaps(C) = %s, want base set only", caps)
	}
}

func TestConditionalVerifiesAddedCapability(t *testing.T) {
	s := testSession(t)
	decl := reversedDecl(t)
	register(t, s, decl)

	// ReversedView<Array<Int>> is random access because Array<Int> is, so
	// the activated promise verifies.
	errs := s.VerifyKey(NewKey(decl.ID, []typesystem.Type{mustParse(t, "Array<Int>")}))
	if len(errs) != 0 {
		t.Fatalf("VerifyKey(Array<Int>) reported %v", errs)
	}

	errs = s.VerifyKey(NewKey(decl.ID, []typesystem.Type{mustParse(t, "Stack<Int>")}))
	if len(errs) != 0 {
		t.Fatalf("VerifyKey(Stack<Int>) reported %v", errs)
	}
}

func TestConditionalOrderIndependence(t *testing.T) {
	s := testSession(t)

	forward := reversedDecl(t)
	forward.Conditional = append(forward.Conditional, ConditionalClause{
		Guards: mustRequirements(t, "C: Equatable"),
		Adds:   typesystem.NewCapabilitySet([]string{"Equatable"}, nil),
	})
	register(t, s, forward)

	backward := reversedDecl(t)
	backward.Name = "reversedSwapped"
	backward.Conditional = []ConditionalClause{forward.Conditional[1], forward.Conditional[0]}
	register(t, s, backward)

	args := []typesystem.Type{mustParse(t, "Array<Int>")}
	capsForward := s.ActiveCaps(NewKey(forward.ID, args))
	capsBackward := s.ActiveCaps(NewKey(backward.ID, args))
	if !capsForward.Equal(capsBackward) {
		t.Errorf("clause order changed the active set: %s vs %s", capsForward, capsBackward)
	}
}
