package manifest

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"
)

// TestCorpus replays the fixtures under testdata. Each archive holds a
// document set plus an expect file naming the diagnostic codes and
// bindings a full analysis of the set must produce.
func TestCorpus(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	if err != nil {
		t.Fatalf("globbing testdata: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("no corpus archives under testdata")
	}
	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".txtar"), func(t *testing.T) {
			runCorpusArchive(t, path)
		})
	}
}

func runCorpusArchive(t *testing.T, path string) {
	ar, err := txtar.ParseFile(path)
	if err != nil {
		t.Fatalf("parsing %s: %v", path, err)
	}
	builder := NewBuilder()
	var wantCodes, wantBindings []string
	for _, f := range ar.Files {
		if f.Name == "expect" {
			wantCodes, wantBindings = parseExpect(t, string(f.Data))
			continue
		}
		doc, derr := Load(f.Data, f.Name)
		if derr != nil {
			builder.Collector().Add(derr)
			continue
		}
		builder.Add(doc)
	}

	result := builder.Build()
	report := result.Session.AnalyzeAll(context.Background())
	for _, site := range result.Sites {
		for _, diag := range result.Session.CheckSite(site) {
			builder.Collector().Add(diag)
		}
	}

	codes := map[string]bool{}
	for _, diag := range builder.Collector().Errors() {
		codes[string(diag.Code)] = true
	}
	for _, diag := range report.Errors {
		codes[string(diag.Code)] = true
	}
	if got := sortedSet(codes); !equalStrings(got, wantCodes) {
		t.Errorf("diagnostic codes = %v, want %v", got, wantCodes)
		for _, diag := range builder.Collector().Errors() {
			t.Logf("  load: %v", diag)
		}
		for _, diag := range report.Errors {
			t.Logf("  analysis: %v", diag)
		}
	}

	bindings := map[string]bool{}
	for _, b := range report.Bindings {
		bindings[b.Decl+" = "+b.Underlying] = true
	}
	if got := sortedSet(bindings); !equalStrings(got, wantBindings) {
		t.Errorf("bindings = %v, want %v", got, wantBindings)
	}
}

// parseExpect reads expect lines of the forms
//
//	error R101
//	binding shapes.makeSquare = Square
//
// Blank lines and # comments are skipped.
func parseExpect(t *testing.T, src string) (codes, bindings []string) {
	t.Helper()
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		verb, rest, _ := strings.Cut(line, " ")
		switch verb {
		case "error":
			codes = append(codes, strings.TrimSpace(rest))
		case "binding":
			bindings = append(bindings, strings.TrimSpace(rest))
		default:
			t.Fatalf("unknown expect line %q", line)
		}
	}
	sort.Strings(codes)
	sort.Strings(bindings)
	return codes, bindings
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
