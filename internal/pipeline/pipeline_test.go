package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opaline-lang/opaline/internal/diagnostics"
)

const cleanDoc = `
module: shapes
types:
  - name: Square
    public: true
capabilities:
  - name: Drawable
    public: true
conformances:
  - capability: Drawable
    target: Square
declarations:
  - name: makeSquare
    result: opaque Drawable
    exits:
      - type: Square
        line: 14
`

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func hasCode(errs []*diagnostics.DiagnosticError, code diagnostics.ErrorCode) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestCheckCleanRun(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "shapes.oli.yaml", cleanDoc)
	ctx := Check(NewPipelineContext(path), "")

	if ctx.Failed() {
		t.Fatalf("clean run failed: %v / %v", ctx.Collector.Errors(), ctx.Errors)
	}
	if ctx.Report == nil || len(ctx.Report.Bindings) != 1 {
		t.Fatalf("report = %+v, want one binding", ctx.Report)
	}
	if ctx.Report.Bindings[0].Underlying != "Square" {
		t.Errorf("underlying = %s, want Square", ctx.Report.Bindings[0].Underlying)
	}
}

func TestCheckCollectsAcrossStages(t *testing.T) {
	dir := t.TempDir()
	bad := writeDoc(t, dir, "bad.oli.yaml", `
module: bad
capabilities:
  - name: Drawable
declarations:
  - name: broken
    result: opaque Drawable
    exits:
      - type: Missing
        line: 8
`)
	inconsistent := writeDoc(t, dir, "pick.oli.yaml", `
module: pick
types:
  - name: Square
  - name: Circle
capabilities:
  - name: Drawable
conformances:
  - capability: Drawable
    target: Square
  - capability: Drawable
    target: Circle
declarations:
  - name: pickShape
    result: opaque Drawable
    exits:
      - type: Square
        line: 16
      - type: Circle
        line: 18
`)
	ctx := Check(NewPipelineContext(bad, inconsistent), "")

	errs := ctx.Collector.Errors()
	if !hasCode(errs, diagnostics.ErrL002) {
		t.Errorf("errors = %v, want the loader's L002", errs)
	}
	if !hasCode(errs, diagnostics.ErrR101) {
		t.Errorf("errors = %v, want the resolver's R101", errs)
	}
}

func TestCheckMissingFile(t *testing.T) {
	ctx := Check(NewPipelineContext(filepath.Join(t.TempDir(), "absent.oli.yaml")), "")
	if !hasCode(ctx.Collector.Errors(), diagnostics.ErrL007) {
		t.Errorf("errors = %v, want L007 for the unreadable document", ctx.Collector.Errors())
	}
}

func TestCheckInMemorySource(t *testing.T) {
	ctx := Check(NewPipelineContext().WithSource("shapes.oli.yaml", []byte(cleanDoc)), "")
	if ctx.Failed() {
		t.Fatalf("in-memory run failed: %v", ctx.Collector.Errors())
	}
	if len(ctx.Report.Bindings) != 1 {
		t.Fatalf("got %d bindings, want 1", len(ctx.Report.Bindings))
	}
}

func TestCheckArchiveDrift(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "bindings.db")
	v1 := writeDoc(t, dir, "v1.oli.yaml", cleanDoc)

	first := Check(NewPipelineContext(v1), dbPath)
	if first.Failed() {
		t.Fatalf("first run failed: %v / %v", first.Collector.Errors(), first.Errors)
	}

	v2 := writeDoc(t, dir, "v2.oli.yaml", `
module: shapes
types:
  - name: Square
    public: true
  - name: Circle
    public: true
capabilities:
  - name: Drawable
    public: true
conformances:
  - capability: Drawable
    target: Square
  - capability: Drawable
    target: Circle
declarations:
  - name: makeSquare
    result: opaque Drawable
    exits:
      - type: Circle
        line: 18
`)
	second := Check(NewPipelineContext(v2), dbPath)
	if len(second.Errors) != 0 {
		t.Fatalf("archive errors: %v", second.Errors)
	}
	if len(second.Drifts) != 1 {
		t.Fatalf("got %d drifts, want 1: %v", len(second.Drifts), second.Drifts)
	}
	d := second.Drifts[0]
	if d.Old != "Square" || d.New != "Circle" {
		t.Errorf("drift = %+v, want Square -> Circle", d)
	}
	if !second.Failed() {
		t.Error("a drifting run did not count as failed")
	}
}

func TestCheckArchiveSkipsDirtyRuns(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "bindings.db")
	clean := writeDoc(t, dir, "clean.oli.yaml", cleanDoc)
	if ctx := Check(NewPipelineContext(clean), dbPath); ctx.Failed() {
		t.Fatalf("seed run failed: %v", ctx.Collector.Errors())
	}

	dirty := writeDoc(t, dir, "dirty.oli.yaml", `
module: shapes
types:
  - name: Square
    public: true
capabilities:
  - name: Drawable
    public: true
conformances:
  - capability: Drawable
    target: Square
declarations:
  - name: makeSquare
    result: opaque Drawable
    exits:
      - type: Square
        line: 14
      - type: Missing
        line: 16
`)
	ctx := Check(NewPipelineContext(dirty), dbPath)
	if !ctx.Collector.HasErrors() {
		t.Fatal("dirty run reported no diagnostics")
	}
	if len(ctx.Drifts) != 0 {
		t.Errorf("dirty run compared against the archive: %v", ctx.Drifts)
	}

	// The dirty run must not have displaced the recorded history.
	again := Check(NewPipelineContext(clean), dbPath)
	if len(again.Drifts) != 0 {
		t.Errorf("clean rerun drifted after a dirty run: %v", again.Drifts)
	}
}

func TestModuleLabel(t *testing.T) {
	dir := t.TempDir()
	a := writeDoc(t, dir, "a.oli.yaml", "module: zeta\n")
	b := writeDoc(t, dir, "b.oli.yaml", "module: alpha\n")
	c := writeDoc(t, dir, "c.oli.yaml", "module: alpha\n")

	ctx := New(&LoadProcessor{}).Run(NewPipelineContext(a, b, c))
	if got := moduleLabel(ctx); got != "alpha+zeta" {
		t.Errorf("moduleLabel() = %q, want alpha+zeta", got)
	}
}
