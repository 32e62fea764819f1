package opaque

import (
	"strings"
	"testing"

	"github.com/opaline-lang/opaline/internal/config"
	"github.com/opaline-lang/opaline/internal/diagnostics"
)

func TestRegisterExtractsCapabilities(t *testing.T) {
	s := testSession(t)
	decl := mkFunc(t, "makeList", "opaque Collection where Element == Int", exitType(t, "Array<Int>"))
	register(t, s, decl)

	if decl.ID == 0 {
		t.Error("Register left ID unset")
	}
	if got := decl.Caps.String(); got != "Collection where Element == Int" {
		t.Errorf("Caps = %q, want %q", got, "Collection where Element == Int")
	}
}

func TestRegisterDuplicateMarker(t *testing.T) {
	s := testSession(t)
	decl := mkFunc(t, "twice", "(opaque Drawable, opaque Equatable)", exitType(t, "(Square, Int)"))

	err := s.Registry.Register(decl)
	if err == nil {
		t.Fatal("two markers should be rejected")
	}
	if code := diagCode(t, err); code != diagnostics.ErrD001 {
		t.Errorf("code = %s, want %s", code, diagnostics.ErrD001)
	}
}

func TestRegisterNoMarker(t *testing.T) {
	s := testSession(t)
	decl := mkFunc(t, "plain", "Int", exitType(t, "Int"))

	err := s.Registry.Register(decl)
	if err == nil {
		t.Fatal("a result without a marker should be rejected")
	}
	if !strings.Contains(err.Error(), "no opaque result marker") {
		t.Errorf("error = %q, want mention of missing marker", err)
	}
}

func TestRegisterIllegalContext(t *testing.T) {
	tests := []struct {
		name    string
		context DeclContext
		wantErr bool
	}{
		{"protocol requirement", DeclContext{InProtocol: true}, true},
		{"open class method", DeclContext{InOpenClass: true}, true},
		{"final method of open class", DeclContext{InOpenClass: true, Final: true}, false},
		{"free function", DeclContext{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSession(t)
			decl := mkFunc(t, "shape", "opaque Drawable", exitType(t, "Square"))
			decl.Context = tt.context

			err := s.Registry.Register(decl)
			if tt.wantErr {
				if err == nil {
					t.Fatal("context should be rejected")
				}
				if code := diagCode(t, err); code != diagnostics.ErrD002 {
					t.Errorf("code = %s, want %s", code, diagnostics.ErrD002)
				}
			} else if err != nil {
				t.Errorf("Register error: %v", err)
			}
		})
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	s := testSession(t)
	register(t, s, mkFunc(t, "makeShape", "opaque Drawable", exitType(t, "Square")))

	err := s.Registry.Register(mkFunc(t, "makeShape", "opaque Drawable", exitType(t, "Circle")))
	if err == nil {
		t.Fatal("duplicate name in one module should be rejected")
	}
	if code := diagCode(t, err); code != diagnostics.ErrD003 {
		t.Errorf("code = %s, want %s", code, diagnostics.ErrD003)
	}

	// The same name in another module is a different declaration.
	other := mkFunc(t, "makeShape", "opaque Drawable", exitType(t, "Circle"))
	other.Module = "app"
	if err := s.Registry.Register(other); err != nil {
		t.Errorf("Register in second module error: %v", err)
	}
}

func TestLookupName(t *testing.T) {
	s := testSession(t)
	register(t, s, mkFunc(t, "makeShape", "opaque Drawable", exitType(t, "Square")))

	if _, ok := s.Registry.LookupName("core.makeShape"); !ok {
		t.Error("qualified lookup failed")
	}
	if decl, ok := s.Registry.LookupName("makeShape"); !ok || decl.Module != "core" {
		t.Error("unambiguous bare lookup failed")
	}

	other := mkFunc(t, "makeShape", "opaque Drawable", exitType(t, "Circle"))
	other.Module = "app"
	register(t, s, other)

	if _, ok := s.Registry.LookupName("makeShape"); ok {
		t.Error("ambiguous bare lookup should fail")
	}
	if _, ok := s.Registry.LookupName("app.makeShape"); !ok {
		t.Error("qualified lookup of second module failed")
	}
}

func TestRegistryOrder(t *testing.T) {
	s := testSession(t)
	names := []string{"first", "second", "third"}
	for _, name := range names {
		register(t, s, mkFunc(t, name, "opaque Drawable", exitType(t, "Square")))
	}

	decls := s.Registry.Decls()
	if len(decls) != len(names) {
		t.Fatalf("Decls() returned %d declarations, want %d", len(decls), len(names))
	}
	for i, decl := range decls {
		if decl.Name != names[i] {
			t.Errorf("Decls()[%d] = %s, want %s", i, decl.Name, names[i])
		}
		if decl.Kind != config.KindFunc {
			t.Errorf("Decls()[%d].Kind = %s, want %s", i, decl.Kind, config.KindFunc)
		}
	}
}
