// Package engine is the embeddable analysis surface. Callers hand it
// interface documents (raw bytes, named sources or paths) and get back a
// Report with every resolved binding and diagnostic. The CLI and the
// analysis daemon are thin shells over this package.
package engine

import (
	"context"
	"errors"
	"os"

	"github.com/opaline-lang/opaline/internal/archive"
	"github.com/opaline-lang/opaline/internal/diagnostics"
	"github.com/opaline-lang/opaline/internal/manifest"
	"github.com/opaline-lang/opaline/internal/opaque"
	"github.com/opaline-lang/opaline/internal/pipeline"
)

// Report is one analysis run's outcome. Diagnostics are data, not errors:
// a run over broken documents still returns a Report.
type Report struct {
	SessionID   string
	Bindings    []opaque.ResolvedBinding
	Diagnostics []*diagnostics.DiagnosticError
	Drifts      []archive.Drift
	Sites       []SiteInfo
}

// SiteInfo describes one use site from the documents and how the engine
// classified the representation of the opaque value it consumes.
type SiteInfo struct {
	Kind           string
	Module         string
	Decl           string
	Representation string
	File           string
	Line           int
}

// Failed reports whether the run found anything a caller should fail on.
func (r *Report) Failed() bool {
	return len(r.Diagnostics) > 0 || len(r.Drifts) > 0
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithArchive records clean runs in the bindings archive at path and
// reports drift against the previous recorded run of the same module.
func WithArchive(path string) Option {
	return func(a *Analyzer) { a.archivePath = path }
}

// Analyzer runs the resolution pipeline.
type Analyzer struct {
	archivePath string
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzeSources checks in-memory documents keyed by name.
func (a *Analyzer) AnalyzeSources(ctx context.Context, sources map[string][]byte) (*Report, error) {
	pctx := pipeline.NewPipelineContext().WithContext(ctx)
	for name, src := range sources {
		pctx.WithSource(name, src)
	}
	return a.run(pctx)
}

// AnalyzeFiles checks documents on disk. A directory is walked for
// interface documents; files are taken as given. A path that does not
// exist surfaces as a loader diagnostic, not a hard error.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, paths ...string) (*Report, error) {
	expanded := make([]string, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			found, err := manifest.Discover(path)
			if err != nil {
				return nil, err
			}
			expanded = append(expanded, found...)
			continue
		}
		expanded = append(expanded, path)
	}

	pctx := pipeline.NewPipelineContext(expanded...).WithContext(ctx)
	return a.run(pctx)
}

func (a *Analyzer) run(pctx *pipeline.PipelineContext) (*Report, error) {
	result := pipeline.Check(pctx, a.archivePath)
	if len(result.Errors) > 0 {
		return nil, errors.Join(result.Errors...)
	}

	report := &Report{
		Diagnostics: result.Collector.Errors(),
		Drifts:      result.Drifts,
	}
	if result.Report != nil {
		report.SessionID = result.Report.SessionID
		report.Bindings = result.Report.Bindings
	}
	if result.Result != nil {
		report.Sites = classifySites(result.Result)
	}
	return report, nil
}

// classifySites asks the boundary for each site's representation. Sites
// whose declaration never registered are skipped here; the site checker
// already reported them.
func classifySites(result *manifest.Result) []SiteInfo {
	session := result.Session
	out := make([]SiteInfo, 0, len(result.Sites))
	for _, site := range result.Sites {
		decl, ok := session.Registry.LookupName(site.A.Decl)
		if !ok || len(site.A.Args) != len(decl.Params) {
			continue
		}
		key := opaque.NewKey(decl.ID, site.A.Args)
		inBody := site.InDecl != "" && site.InDecl == decl.QualifiedName()
		rep := session.Boundary().RepresentationFor(key, site.Module, inBody)
		out = append(out, SiteInfo{
			Kind:           site.Kind,
			Module:         site.Module,
			Decl:           site.A.Decl,
			Representation: rep.String(),
			File:           site.File,
			Line:           site.Token.Line,
		})
	}
	return out
}

// Analyze checks a single in-memory document.
func Analyze(src []byte) (*Report, error) {
	return New().AnalyzeSources(context.Background(), map[string][]byte{"<memory>": src})
}
