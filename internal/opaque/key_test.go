package opaque

import (
	"testing"

	"github.com/opaline-lang/opaline/internal/typesystem"
)

func TestKeyEquality(t *testing.T) {
	intArg := []typesystem.Type{mustParse(t, "Int")}
	tests := []struct {
		name string
		a, b OpaqueKey
		want bool
	}{
		{"same declaration, no arguments", NewKey(1, nil), NewKey(1, nil), true},
		{"same declaration, same arguments", NewKey(1, intArg), NewKey(1, intArg), true},
		{
			"structurally equal arguments",
			NewKey(1, []typesystem.Type{mustParse(t, "Array<Int>")}),
			NewKey(1, []typesystem.Type{mustParse(t, "Array<Int>")}),
			true,
		},
		{"different declarations", NewKey(1, intArg), NewKey(2, intArg), false},
		{
			"different arguments",
			NewKey(1, intArg),
			NewKey(1, []typesystem.Type{mustParse(t, "String")}),
			false,
		},
		{"different arity", NewKey(1, intArg), NewKey(1, nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
			if got := tt.a.Fingerprint() == tt.b.Fingerprint(); got != tt.want {
				t.Errorf("fingerprints agree = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeyCopiesArguments(t *testing.T) {
	args := []typesystem.Type{mustParse(t, "Int")}
	key := NewKey(1, args)
	before := key.Fingerprint()

	args[0] = mustParse(t, "String")
	if got := key.Fingerprint(); got != before {
		t.Errorf("mutating the input slice changed the key: %s -> %s", before, got)
	}
}

func TestKeyForHandle(t *testing.T) {
	h := typesystem.TOpaque{Decl: 7, DeclName: "makeList", Args: []typesystem.Type{mustParse(t, "Int")}}
	key := KeyFor(h)
	if key.Decl != 7 || len(key.Args) != 1 {
		t.Fatalf("KeyFor() = %+v", key)
	}
	if key.Fingerprint() != NewKey(7, h.Args).Fingerprint() {
		t.Error("KeyFor disagrees with NewKey on the same handle")
	}
}
