package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opaline-lang/opaline/internal/archive"
	"github.com/opaline-lang/opaline/internal/manifest"
)

// LoadProcessor parses every document path and in-memory source into
// the context. Parse failures become L007 diagnostics, not hard stops.
type LoadProcessor struct{}

func (p *LoadProcessor) Process(ctx *PipelineContext) *PipelineContext {
	for _, path := range ctx.Paths {
		doc, err := manifest.LoadFile(path)
		if err != nil {
			ctx.Collector.Add(err)
			continue
		}
		ctx.Documents = append(ctx.Documents, doc)
	}
	names := make([]string, 0, len(ctx.Sources))
	for name := range ctx.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		doc, err := manifest.Load(ctx.Sources[name], name)
		if err != nil {
			ctx.Collector.Add(err)
			continue
		}
		ctx.Documents = append(ctx.Documents, doc)
	}
	return ctx
}

// BindProcessor binds the loaded documents into a session.
type BindProcessor struct{}

func (p *BindProcessor) Process(ctx *PipelineContext) *PipelineContext {
	builder := manifest.NewBuilder()
	for _, doc := range ctx.Documents {
		builder.Add(doc)
	}
	ctx.Result = builder.Build()
	for _, diag := range builder.Collector().Errors() {
		ctx.Collector.Add(diag)
	}
	return ctx
}

// AnalyzeProcessor resolves and verifies every declaration.
type AnalyzeProcessor struct{}

func (p *AnalyzeProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Result == nil {
		return ctx
	}
	ctx.Report = ctx.Result.Session.AnalyzeAll(ctx.Ctx)
	for _, diag := range ctx.Report.Errors {
		ctx.Collector.Add(diag)
	}
	return ctx
}

// SiteProcessor checks every use site against the session's bindings.
type SiteProcessor struct{}

func (p *SiteProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Result == nil {
		return ctx
	}
	for _, site := range ctx.Result.Sites {
		for _, diag := range ctx.Result.Session.CheckSite(site) {
			ctx.Collector.Add(diag)
		}
	}
	return ctx
}

// ArchiveProcessor records the run in the binding archive and surfaces
// identity drift against the previous run. A run with diagnostics is
// not recorded; its bindings are not a state worth comparing against.
type ArchiveProcessor struct {
	Path string
}

func (p *ArchiveProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if p.Path == "" || ctx.Report == nil {
		return ctx
	}
	if ctx.Collector.HasErrors() {
		return ctx
	}
	store, err := archive.Open(p.Path)
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	defer store.Close()

	label := moduleLabel(ctx)
	drifts, err := store.Check(ctx.Ctx, label, ctx.Report)
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	ctx.Drifts = drifts
	if _, err := store.Record(ctx.Ctx, label, ctx.Report); err != nil {
		ctx.Errors = append(ctx.Errors, fmt.Errorf("recording run: %w", err))
	}
	return ctx
}

// moduleLabel names a document set for the archive: the distinct module
// names, sorted and joined, so the same set always maps to one history.
func moduleLabel(ctx *PipelineContext) string {
	seen := map[string]bool{}
	var modules []string
	for _, doc := range ctx.Documents {
		if !seen[doc.Module] {
			seen[doc.Module] = true
			modules = append(modules, doc.Module)
		}
	}
	sort.Strings(modules)
	return strings.Join(modules, "+")
}
