package manifest

import (
	"testing"

	"github.com/opaline-lang/opaline/internal/diagnostics"
)

// FuzzLoad feeds arbitrary bytes to the document loader. Whatever the
// input, Load must not panic and must answer with either a document or a
// malformed-document diagnostic carrying the file name.
func FuzzLoad(f *testing.F) {
	f.Add([]byte("module: m\n"))
	f.Add([]byte("module: m\ntypes: [{name: Square}]\n"))
	f.Add([]byte(""))
	f.Add([]byte("not yaml: ["))
	f.Add([]byte("- just\n- a\n- list\n"))
	f.Add([]byte("module: m\nunknown_section: 1\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) > 4096 {
			return
		}

		doc, err := Load(data, "fuzz.oli.yaml")
		if err != nil {
			if doc != nil {
				t.Fatal("Load returned both a document and an error")
			}
			if err.Code != diagnostics.ErrL007 {
				t.Fatalf("loader diagnostic has code %s, want %s", err.Code, diagnostics.ErrL007)
			}
			if err.File != "fuzz.oli.yaml" {
				t.Fatalf("loader diagnostic lost the file name: %q", err.File)
			}
			return
		}
		if doc == nil {
			t.Fatal("Load returned neither a document nor an error")
		}
		if doc.Module == "" {
			t.Fatal("Load accepted a document without a module name")
		}
	})
}
