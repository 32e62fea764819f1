package pipeline

import (
	"context"

	"github.com/opaline-lang/opaline/internal/archive"
	"github.com/opaline-lang/opaline/internal/diagnostics"
	"github.com/opaline-lang/opaline/internal/manifest"
	"github.com/opaline-lang/opaline/internal/opaque"
)

// Pipeline represents a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

// Processor is one stage. Stages run even when earlier stages reported
// diagnostics, so one pass collects everything; a stage that cannot run
// without its input checks for that input and passes the context on.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// PipelineContext flows through the stages, accumulating documents,
// the bound session, the analysis report and every diagnostic.
type PipelineContext struct {
	Ctx context.Context

	// Inputs.
	Paths   []string
	Sources map[string][]byte

	// Stage artifacts.
	Documents []*manifest.Document
	Result    *manifest.Result
	Report    *opaque.Report
	Drifts    []archive.Drift

	// Collector holds every diagnostic from loading through use-site
	// checks. Errors holds infrastructure failures (unreadable archive,
	// I/O) that are not document diagnostics.
	Collector *diagnostics.Collector
	Errors    []error
}

// NewPipelineContext prepares a context for the given document paths.
func NewPipelineContext(paths ...string) *PipelineContext {
	return &PipelineContext{
		Ctx:       context.Background(),
		Paths:     paths,
		Sources:   map[string][]byte{},
		Collector: diagnostics.NewCollector(),
	}
}

// WithSource adds an in-memory document, used by the daemon and the
// embeddable engine where no file exists.
func (c *PipelineContext) WithSource(name string, src []byte) *PipelineContext {
	c.Sources[name] = src
	return c
}

// WithContext attaches a cancellation context to the run.
func (c *PipelineContext) WithContext(ctx context.Context) *PipelineContext {
	c.Ctx = ctx
	return c
}

// Failed reports whether the run produced any diagnostic or failure.
func (c *PipelineContext) Failed() bool {
	return c.Collector.HasErrors() || len(c.Errors) > 0 || len(c.Drifts) > 0
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run executes the pipeline.
func (p *Pipeline) Run(initialCtx *PipelineContext) *PipelineContext {
	ctx := initialCtx
	for _, processor := range p.processors {
		ctx = processor.Process(ctx)
		// Continue on errors to collect diagnostics from all stages
		// (a client wants loader and analysis findings in one pass).
	}
	return ctx
}

// Check is the standard analysis pipeline: load, bind, analyze, check
// use sites. archivePath may be empty to skip drift checking.
func Check(ctx *PipelineContext, archivePath string) *PipelineContext {
	return New(
		&LoadProcessor{},
		&BindProcessor{},
		&AnalyzeProcessor{},
		&SiteProcessor{},
		&ArchiveProcessor{Path: archivePath},
	).Run(ctx)
}
