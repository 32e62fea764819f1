package typesystem

import (
	"testing"
)

func mustParse(t *testing.T, src string) Type {
	t.Helper()
	typ, err := ParseType(src)
	if err != nil {
		t.Fatalf("ParseType(%q) error = %v", src, err)
	}
	return typ
}

func TestReplaceMarker(t *testing.T) {
	handle := TOpaque{Decl: 1, DeclName: "f"}

	tests := []struct {
		name  string
		shape string
		want  string
	}{
		{"top level", "opaque Equatable", "opaque f"},
		{"nested in application", "Stack<opaque Equatable>", "Stack<opaque f>"},
		{"nested in tuple", "(Int, opaque Equatable)", "(Int, opaque f)"},
		{"no marker", "Stack<Int>", "Stack<Int>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReplaceMarker(mustParse(t, tt.shape), handle)
			if got.String() != tt.want {
				t.Errorf("ReplaceMarker(%q) = %q, want %q", tt.shape, got, tt.want)
			}
		})
	}
}

func TestMatchShape(t *testing.T) {
	tests := []struct {
		name     string
		shape    string
		concrete string
		want     string
		wantErr  bool
	}{
		{"top level", "opaque Equatable", "Int", "Int", false},
		{"nested", "Stack<opaque Equatable>", "Stack<Int>", "Int", false},
		{"tuple position", "(Int, opaque Equatable)", "(Int, String)", "String", false},
		{"deep", "Map<String, Stack<opaque Equatable>>", "Map<String, Stack<Bool>>", "Bool", false},
		{"fixed part differs", "(Int, opaque Equatable)", "(Bool, String)", "", true},
		{"constructor differs", "Stack<opaque Equatable>", "Queue<Int>", "", true},
		{"arity differs", "Stack<opaque Equatable>", "Map<Int, Int>", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchShape(mustParse(t, tt.shape), mustParse(t, tt.concrete))
			if (err != nil) != tt.wantErr {
				t.Fatalf("MatchShape() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.String() != tt.want {
				t.Errorf("MatchShape() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContainsDecl(t *testing.T) {
	inner := TOpaque{Decl: 7, DeclName: "f"}

	tests := []struct {
		name string
		typ  Type
		id   DeclID
		want bool
	}{
		{"direct handle", inner, 7, true},
		{"other id", inner, 8, false},
		{"inside application", TApp{Constructor: TCon{Name: "Stack"}, Args: []Type{inner}}, 7, true},
		{"inside tuple", TTuple{Elements: []Type{TCon{Name: "Int"}, inner}}, 7, true},
		{"inside handle args", TOpaque{Decl: 9, DeclName: "g", Args: []Type{inner}}, 7, true},
		{"plain type", TCon{Name: "Int"}, 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainsDecl(tt.typ, tt.id); got != tt.want {
				t.Errorf("ContainsDecl() = %v, want %v", got, tt.want)
			}
		})
	}
}
