package opaque

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/opaline-lang/opaline/internal/config"
	"github.com/opaline-lang/opaline/internal/diagnostics"
	"github.com/opaline-lang/opaline/internal/symbols"
	"github.com/opaline-lang/opaline/internal/token"
	"github.com/opaline-lang/opaline/internal/typesystem"
)

// Session owns one analysis run: a registry, a conformance table, a
// resolver and the bindings they establish. Bindings never leak across
// sessions; an edited document invalidates its session wholesale and the
// next session starts empty.
type Session struct {
	ID       string
	Registry *Registry
	Table    *symbols.Table

	resolver *Resolver
	boundary *Boundary
	verifier *Verifier

	mu         sync.Mutex
	activeCaps map[string]typesystem.CapabilitySet
}

// NewSession creates a session over the given table and wires the
// session in as the table's opaque source.
func NewSession(table *symbols.Table) *Session {
	s := &Session{
		ID:         uuid.NewString(),
		Registry:   NewRegistry(),
		Table:      table,
		activeCaps: make(map[string]typesystem.CapabilitySet),
	}
	s.resolver = NewResolver(s.Registry)
	s.boundary = NewBoundary(s.Registry, s.resolver, table)
	s.verifier = NewVerifier(table)
	table.SetOpaqueSource(s)
	return s
}

func (s *Session) Resolver() *Resolver { return s.resolver }
func (s *Session) Boundary() *Boundary { return s.boundary }

// ActiveCaps returns the capability set a handle carries for the key's
// instantiation, memoized per session.
func (s *Session) ActiveCaps(key OpaqueKey) typesystem.CapabilitySet {
	fp := key.Fingerprint()
	s.mu.Lock()
	if caps, ok := s.activeCaps[fp]; ok {
		s.mu.Unlock()
		return caps
	}
	s.mu.Unlock()

	decl, ok := s.Registry.Lookup(key.Decl)
	if !ok {
		return typesystem.CapabilitySet{}
	}
	caps := ActiveCapabilities(decl, key.Args, s.Table, decl.BoundAssumptions())

	s.mu.Lock()
	if prior, ok := s.activeCaps[fp]; ok {
		caps = prior
	} else {
		s.activeCaps[fp] = caps
	}
	s.mu.Unlock()
	return caps
}

// HandleConforms answers conformance for a handle: exactly the active
// capability set, closed over capability inheritance. The underlying
// type never informs the answer.
func (s *Session) HandleConforms(h typesystem.TOpaque, capability string) bool {
	caps := s.ActiveCaps(KeyFor(h))
	for _, held := range caps.Names {
		if s.Table.Implies(held, capability) {
			return true
		}
	}
	return false
}

// HandleAssociatedType projects an associated type through a handle.
// Declared bindings answer exactly; names an active capability declares
// but leaves unbound stay abstract.
func (s *Session) HandleAssociatedType(h typesystem.TOpaque, name string) (typesystem.Type, bool) {
	caps := s.ActiveCaps(KeyFor(h))
	for _, b := range caps.Bindings {
		if b.Name == name {
			return b.Type, true
		}
	}
	if _, ok := s.Table.AssocOwnerInSet(caps, name); ok {
		return typesystem.TAssoc{Base: h, Name: name}, true
	}
	return nil, false
}

func (s *Session) HandleVisibleFrom(h typesystem.TOpaque, module string) bool {
	return s.boundary.ConcreteVisible(KeyFor(h), module, false)
}

// VerifyKey resolves one instantiation and checks the binding against
// the capability set active for it.
func (s *Session) VerifyKey(key OpaqueKey) []*diagnostics.DiagnosticError {
	underlying, err := s.resolver.Resolve(key)
	if err != nil {
		return []*diagnostics.DiagnosticError{promote(err)}
	}
	decl, ok := s.Registry.Lookup(key.Decl)
	if !ok {
		return nil
	}
	return s.verifier.Verify(decl, underlying, s.ActiveCaps(key))
}

// Report is the outcome of one full analysis pass.
type Report struct {
	SessionID string
	Bindings  []ResolvedBinding
	Errors    []*diagnostics.DiagnosticError
}

// ResolvedBinding is one key's successful resolution in printable form.
type ResolvedBinding struct {
	Decl       string
	Key        string
	Underlying string
	Caps       string
}

// AnalyzeAll resolves every registered declaration once against its own
// parameters, verifies the bindings, audits the finished binding graph
// and returns the session report. Declarations resolve concurrently; the
// cache coalesces duplicate work.
func (s *Session) AnalyzeAll(ctx context.Context) *Report {
	collector := diagnostics.NewCollector()
	decls := s.Registry.Decls()

	errLists := make([][]*diagnostics.DiagnosticError, len(decls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, decl := range decls {
		i, decl := i, decl
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			errLists[i] = s.VerifyKey(NewKey(decl.ID, decl.ParamVars()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		collector.AddError(err)
	}
	for _, list := range errLists {
		for _, diag := range list {
			collector.Add(diag)
		}
	}

	// Snapshot the sweep's bindings before auditing; the audit resolves
	// deeper keys on demand and those are not session declarations.
	report := &Report{SessionID: s.ID}
	for _, b := range s.resolver.Bindings() {
		if b.Err != nil {
			continue
		}
		decl, ok := s.Registry.Lookup(b.Key.Decl)
		if !ok {
			continue
		}
		report.Bindings = append(report.Bindings, ResolvedBinding{
			Decl:       decl.QualifiedName(),
			Key:        b.Key.Fingerprint(),
			Underlying: b.Underlying.String(),
			Caps:       s.ActiveCaps(b.Key).String(),
		})
	}

	s.auditBindings(collector)
	report.Errors = collector.Errors()
	return report
}

const (
	auditActive = 1
	auditDone   = 2
)

// auditBindings walks the finished binding graph. A binding reached
// again while still on the walk's path is defined in terms of itself; a
// chain that keeps producing fresh keys overflows; a handle pointing at
// a key that fails to resolve is a dependency failure.
func (s *Session) auditBindings(collector *diagnostics.Collector) {
	colors := make(map[string]int)
	for _, b := range s.resolver.Bindings() {
		if b.Err != nil {
			continue
		}
		s.auditKey(nil, b.Key, colors, 0, collector)
	}
}

func (s *Session) auditKey(from *OpaqueDeclaration, key OpaqueKey, colors map[string]int, depth int, collector *diagnostics.Collector) {
	decl, ok := s.Registry.Lookup(key.Decl)
	if !ok {
		return
	}
	fp := key.Fingerprint()
	switch colors[fp] {
	case auditDone:
		return
	case auditActive:
		collector.Add(diagnostics.NewError(diagnostics.ErrR106, decl.Token, fmt.Sprintf(
			"the opaque result of %s %s is defined in terms of itself",
			decl.Kind, decl.Name)).WithFile(decl.File))
		return
	}
	if depth >= config.MaxResolveDepth {
		collector.Add(diagnostics.NewError(diagnostics.ErrR104, decl.Token, fmt.Sprintf(
			"the opaque binding chain behind %s %s exceeds %d levels",
			decl.Kind, decl.Name, config.MaxResolveDepth)).WithFile(decl.File))
		colors[fp] = auditDone
		return
	}

	colors[fp] = auditActive
	underlying, err := s.resolver.Resolve(key)
	switch {
	case err != nil && from != nil:
		collector.Add(diagnostics.NewError(diagnostics.ErrR105, from.Token, fmt.Sprintf(
			"the underlying type of %s %s depends on %s, which failed to resolve",
			from.Kind, from.Name, decl.Name)).WithFile(from.File).WithCause(err))
	case err == nil:
		for _, h := range typesystem.HandlesIn(underlying) {
			s.auditKey(decl, KeyFor(h), colors, depth+1, collector)
		}
	}
	colors[fp] = auditDone
}

func promote(err error) *diagnostics.DiagnosticError {
	if diag, ok := err.(*diagnostics.DiagnosticError); ok {
		return diag
	}
	return diagnostics.NewError(diagnostics.ErrL007, token.Token{}, err.Error())
}
