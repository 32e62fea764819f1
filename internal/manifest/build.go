package manifest

import (
	"fmt"
	"sort"

	"github.com/opaline-lang/opaline/internal/config"
	"github.com/opaline-lang/opaline/internal/diagnostics"
	"github.com/opaline-lang/opaline/internal/opaque"
	"github.com/opaline-lang/opaline/internal/symbols"
	"github.com/opaline-lang/opaline/internal/token"
	"github.com/opaline-lang/opaline/internal/typesystem"
)

// Builder binds interface documents into one analysis session. Each
// binding phase (types, capabilities, conformances, declarations, use
// sites) runs across every added document before the next phase starts,
// so the outcome never depends on the order documents were added in.
type Builder struct {
	table     *symbols.Table
	session   *opaque.Session
	collector *diagnostics.Collector
	docs      []*Document
}

// Result is the bound form of a document set, ready for analysis.
type Result struct {
	Session *opaque.Session
	Table   *symbols.Table
	Sites   []opaque.UseSite
}

func NewBuilder() *Builder {
	table := symbols.New()
	return &Builder{
		table:     table,
		session:   opaque.NewSession(table),
		collector: diagnostics.NewCollector(),
	}
}

func (b *Builder) Add(doc *Document) {
	b.docs = append(b.docs, doc)
}

// Collector exposes the diagnostics gathered during binding. Analysis
// stages append to the same collector so one sorted report comes out.
func (b *Builder) Collector() *diagnostics.Collector { return b.collector }

// Build binds every added document. Diagnostics land in the collector;
// a declaration that fails to bind is dropped from the result rather
// than registered half-formed.
func (b *Builder) Build() *Result {
	for _, doc := range b.docs {
		b.defineTypes(doc)
	}
	for _, doc := range b.docs {
		b.defineCapabilities(doc)
	}
	for _, doc := range b.docs {
		b.checkCapabilityParents(doc)
	}
	for _, doc := range b.docs {
		b.registerConformances(doc)
	}
	for _, doc := range b.docs {
		b.registerDeclarations(doc)
	}
	b.checkCallees()
	return &Result{
		Session: b.session,
		Table:   b.table,
		Sites:   b.bindSites(),
	}
}

func (b *Builder) report(code diagnostics.ErrorCode, tok token.Token, file, format string, args ...interface{}) {
	b.collector.Add(diagnostics.NewError(code, tok, fmt.Sprintf(format, args...)).WithFile(file))
}

func (b *Builder) defineTypes(doc *Document) {
	for _, td := range doc.Types {
		tok := token.At(td.Name, td.Line, 1)
		if td.Name == "" {
			b.report(diagnostics.ErrL007, tok, doc.file, "type entry has no name")
			continue
		}
		def := symbols.TypeDef{
			Name:   td.Name,
			Params: append([]string{}, td.Params...),
			Module: doc.Module,
			Public: td.Public,
			Token:  tok,
		}
		if err := b.table.DefineType(def); err != nil {
			b.report(diagnostics.ErrL005, tok, doc.file, "%v", err)
		}
	}
}

func (b *Builder) defineCapabilities(doc *Document) {
	for _, cd := range doc.Capabilities {
		tok := token.At(cd.Name, cd.Line, 1)
		if cd.Name == "" {
			b.report(diagnostics.ErrL007, tok, doc.file, "capability entry has no name")
			continue
		}
		def := symbols.CapabilityDef{
			Name:    cd.Name,
			Extends: append([]string{}, cd.Extends...),
			Assoc:   append([]string{}, cd.Assoc...),
			Module:  doc.Module,
			Public:  cd.Public,
			Token:   tok,
		}
		if err := b.table.DefineCapability(def); err != nil {
			b.report(diagnostics.ErrL005, tok, doc.file, "%v", err)
		}
	}
}

// checkCapabilityParents runs once every capability is defined, so that
// extends-lists may reference capabilities from documents added later.
func (b *Builder) checkCapabilityParents(doc *Document) {
	for _, cd := range doc.Capabilities {
		tok := token.At(cd.Name, cd.Line, 1)
		for _, parent := range cd.Extends {
			if !b.table.CapabilityExists(parent) {
				b.report(diagnostics.ErrL003, tok, doc.file,
					"capability %s extends unknown capability %s", cd.Name, parent)
			}
		}
	}
}

func (b *Builder) registerConformances(doc *Document) {
	for _, cd := range doc.Conformances {
		tok := token.At(cd.Capability, cd.Line, 1)
		if !b.table.CapabilityExists(cd.Capability) {
			b.report(diagnostics.ErrL003, tok, doc.file, "unknown capability %s", cd.Capability)
			continue
		}
		parsed, err := typesystem.ParseType(cd.Target)
		if err != nil {
			b.report(diagnostics.ErrL001, tok, doc.file, "%v", err)
			continue
		}
		vars := b.patternVars(parsed)
		target, ok := b.bindType(parsed, vars, doc, tok)
		if !ok {
			continue
		}
		if _, bare := target.(typesystem.TVar); bare {
			b.report(diagnostics.ErrL007, tok, doc.file,
				"conformance target %s does not name a type", cd.Target)
			continue
		}

		def := symbols.ConformanceDef{
			Capability: cd.Capability,
			Target:     target,
			Module:     doc.Module,
			Token:      tok,
		}
		bound := true
		for _, clause := range cd.Where {
			reqs, ok := b.bindRequirements(clause, vars, doc, tok)
			if !ok {
				bound = false
				break
			}
			def.Requirements = append(def.Requirements, reqs...)
		}
		if !bound {
			continue
		}
		for _, name := range sortedKeys(cd.Assoc) {
			if !b.table.DeclaresAssoc(cd.Capability, name) {
				b.report(diagnostics.ErrL007, tok, doc.file,
					"capability %s does not declare associated type %s", cd.Capability, name)
				bound = false
				continue
			}
			parsed, err := typesystem.ParseType(cd.Assoc[name])
			if err != nil {
				b.report(diagnostics.ErrL001, tok, doc.file, "%v", err)
				bound = false
				continue
			}
			value, ok := b.bindType(parsed, vars, doc, tok)
			if !ok {
				bound = false
				continue
			}
			def.Assoc = append(def.Assoc, typesystem.AssocBinding{Name: name, Type: value})
		}
		if !bound {
			continue
		}
		if err := b.table.RegisterConformance(def); err != nil {
			b.report(diagnostics.ErrL005, tok, doc.file, "%v", err)
		}
	}
}

func (b *Builder) registerDeclarations(doc *Document) {
	for _, dd := range doc.Declarations {
		tok := token.At(dd.Name, dd.Line, 1)
		if dd.Name == "" {
			b.report(diagnostics.ErrL007, tok, doc.file, "declaration entry has no name")
			continue
		}
		kind := dd.Kind
		if kind == "" {
			kind = config.KindFunc
		}
		if kind != config.KindFunc && kind != config.KindProperty && kind != config.KindSubscript {
			b.report(diagnostics.ErrL007, tok, doc.file,
				"declaration %s has unknown kind %q", dd.Name, dd.Kind)
			continue
		}

		vars := make(map[string]bool, len(dd.Params))
		params := make([]opaque.GenericParam, 0, len(dd.Params))
		declOK := true
		for _, pd := range dd.Params {
			if pd.Name == "" {
				b.report(diagnostics.ErrL007, tok, doc.file,
					"declaration %s has a type parameter with no name", dd.Name)
				declOK = false
				continue
			}
			if vars[pd.Name] {
				b.report(diagnostics.ErrL005, tok, doc.file,
					"declaration %s repeats type parameter %s", dd.Name, pd.Name)
				declOK = false
				continue
			}
			vars[pd.Name] = true
			for _, bound := range pd.Bounds {
				if !b.table.CapabilityExists(bound) {
					b.report(diagnostics.ErrL003, tok, doc.file, "unknown capability %s", bound)
					declOK = false
				}
			}
			params = append(params, opaque.GenericParam{
				Name:   pd.Name,
				Bounds: append([]string{}, pd.Bounds...),
			})
		}

		if dd.Result == "" {
			b.report(diagnostics.ErrL007, tok, doc.file, "declaration %s has no result type", dd.Name)
			continue
		}
		parsed, err := typesystem.ParseType(dd.Result)
		if err != nil {
			b.report(diagnostics.ErrL001, tok, doc.file, "%v", err)
			continue
		}
		shape, ok := b.bindType(parsed, vars, doc, tok)
		if !ok {
			continue
		}

		exits := make([]opaque.ExitPoint, 0, len(dd.Exits))
		for _, ed := range dd.Exits {
			exit, ok := b.bindExit(dd.Name, ed, vars, doc)
			if !ok {
				declOK = false
				continue
			}
			exits = append(exits, exit)
		}

		clauses := make([]opaque.ConditionalClause, 0, len(dd.Conditional))
		for _, cl := range dd.Conditional {
			guards := []typesystem.Requirement{}
			clauseOK := true
			for _, w := range cl.When {
				reqs, ok := b.bindRequirements(w, vars, doc, tok)
				if !ok {
					clauseOK = false
					break
				}
				guards = append(guards, reqs...)
			}
			for _, name := range cl.Adds {
				if !b.table.CapabilityExists(name) {
					b.report(diagnostics.ErrL003, tok, doc.file, "unknown capability %s", name)
					clauseOK = false
				}
			}
			if !clauseOK {
				declOK = false
				continue
			}
			clauses = append(clauses, opaque.ConditionalClause{
				Guards: guards,
				Adds:   typesystem.NewCapabilitySet(cl.Adds, nil),
			})
		}
		if !declOK {
			continue
		}

		decl := &opaque.OpaqueDeclaration{
			Name:        dd.Name,
			Kind:        kind,
			Module:      doc.Module,
			Params:      params,
			Shape:       shape,
			Conditional: clauses,
			Exits:       exits,
			Context: opaque.DeclContext{
				InProtocol:  dd.Context.Protocol,
				InOpenClass: dd.Context.OpenClass,
				Final:       dd.Context.Final,
				Inlinable:   dd.Inlinable,
			},
			Token: tok,
			File:  doc.file,
		}
		if err := b.session.Registry.Register(decl); err != nil {
			if diag, ok := err.(*diagnostics.DiagnosticError); ok {
				b.collector.Add(diag.WithFile(doc.file))
			} else {
				b.report(diagnostics.ErrL007, tok, doc.file, "%v", err)
			}
		}
	}
}

func (b *Builder) bindExit(declName string, ed ExitDecl, vars map[string]bool, doc *Document) (opaque.ExitPoint, bool) {
	switch {
	case ed.Type != "" && ed.Call != "":
		tok := token.At(ed.Type, ed.Line, 1)
		b.report(diagnostics.ErrL007, tok, doc.file,
			"exit of %s both returns a type and calls %s", declName, ed.Call)
		return opaque.ExitPoint{}, false
	case ed.Type != "":
		tok := token.At(ed.Type, ed.Line, 1)
		parsed, err := typesystem.ParseType(ed.Type)
		if err != nil {
			b.report(diagnostics.ErrL001, tok, doc.file, "%v", err)
			return opaque.ExitPoint{}, false
		}
		t, ok := b.bindType(parsed, vars, doc, tok)
		if !ok {
			return opaque.ExitPoint{}, false
		}
		return opaque.ExitPoint{Type: t, Token: tok}, true
	case ed.Call != "":
		tok := token.At(ed.Call, ed.Line, 1)
		args := make([]typesystem.Type, 0, len(ed.Args))
		for _, src := range ed.Args {
			parsed, err := typesystem.ParseType(src)
			if err != nil {
				b.report(diagnostics.ErrL001, tok, doc.file, "%v", err)
				return opaque.ExitPoint{}, false
			}
			arg, ok := b.bindType(parsed, vars, doc, tok)
			if !ok {
				return opaque.ExitPoint{}, false
			}
			args = append(args, arg)
		}
		return opaque.ExitPoint{Call: ed.Call, CallArgs: args, Token: tok}, true
	default:
		tok := token.At(declName, ed.Line, 1)
		b.report(diagnostics.ErrL007, tok, doc.file,
			"exit of %s neither returns a type nor calls a declaration", declName)
		return opaque.ExitPoint{}, false
	}
}

// checkCallees validates call exits once every declaration is registered,
// so forward and cross-document references work.
func (b *Builder) checkCallees() {
	for _, decl := range b.session.Registry.Decls() {
		for _, exit := range decl.Exits {
			if !exit.IsCall() {
				continue
			}
			callee, ok := b.session.Registry.LookupName(exit.Call)
			if !ok {
				b.report(diagnostics.ErrL006, exit.Token, decl.File,
					"%s calls unknown opaque declaration %s", decl.QualifiedName(), exit.Call)
				continue
			}
			if len(exit.CallArgs) != len(callee.Params) {
				b.report(diagnostics.ErrL004, exit.Token, decl.File,
					"%s calls %s with %d type arguments, want %d",
					decl.QualifiedName(), callee.QualifiedName(), len(exit.CallArgs), len(callee.Params))
			}
		}
	}
}

func (b *Builder) bindSites() []opaque.UseSite {
	var sites []opaque.UseSite
	for _, doc := range b.docs {
		for _, sd := range doc.Sites {
			tok := token.At(sd.Kind, sd.Line, 1)
			vars := map[string]bool{}
			if sd.In != "" {
				if host, ok := b.session.Registry.LookupName(sd.In); ok {
					for _, p := range host.Params {
						vars[p.Name] = true
					}
				}
			}
			site := opaque.UseSite{
				Kind:   sd.Kind,
				Module: sd.Module,
				InDecl: sd.In,
				Token:  tok,
				File:   doc.file,
			}
			if site.Module == "" {
				site.Module = doc.Module
			}
			a, ok := b.bindSiteRef(sd.A, vars, doc, tok)
			if !ok {
				continue
			}
			site.A = a
			if sd.B.Decl != "" {
				bRef, ok := b.bindSiteRef(sd.B, vars, doc, tok)
				if !ok {
					continue
				}
				site.B = bRef
			}
			if sd.Target != "" {
				parsed, err := typesystem.ParseType(sd.Target)
				if err != nil {
					b.report(diagnostics.ErrL001, tok, doc.file, "%v", err)
					continue
				}
				target, ok := b.bindType(parsed, vars, doc, tok)
				if !ok {
					continue
				}
				site.Target = target
			}
			sites = append(sites, site)
		}
	}
	return sites
}

func (b *Builder) bindSiteRef(ref SiteRef, vars map[string]bool, doc *Document, tok token.Token) (opaque.HandleRef, bool) {
	if ref.Decl == "" {
		b.report(diagnostics.ErrL007, tok, doc.file, "use site names no declaration")
		return opaque.HandleRef{}, false
	}
	args := make([]typesystem.Type, 0, len(ref.Args))
	for _, src := range ref.Args {
		parsed, err := typesystem.ParseType(src)
		if err != nil {
			b.report(diagnostics.ErrL001, tok, doc.file, "%v", err)
			return opaque.HandleRef{}, false
		}
		arg, ok := b.bindType(parsed, vars, doc, tok)
		if !ok {
			return opaque.HandleRef{}, false
		}
		args = append(args, arg)
	}
	return opaque.HandleRef{Decl: ref.Decl, Args: args}, true
}

// bindType rebinds names in a parsed type expression: generic parameters
// become type variables, known type names stay constants, capability
// names inside opaque markers are checked against the table.
func (b *Builder) bindType(t typesystem.Type, vars map[string]bool, doc *Document, tok token.Token) (typesystem.Type, bool) {
	switch typ := t.(type) {
	case typesystem.TVar:
		return typ, true
	case typesystem.TCon:
		if vars[typ.Name] {
			return typesystem.TVar{Name: typ.Name}, true
		}
		if typ.Name == config.SelfTypeName {
			return typ, true
		}
		def, ok := b.table.ResolveType(typ.Name)
		if !ok {
			b.report(diagnostics.ErrL002, tok, doc.file, "unknown type %s", typ.Name)
			return nil, false
		}
		if def.Arity() != 0 {
			b.report(diagnostics.ErrL004, tok, doc.file,
				"type %s expects %d type arguments, got 0", typ.Name, def.Arity())
			return nil, false
		}
		return typ, true
	case typesystem.TApp:
		ctor, isCon := typ.Constructor.(typesystem.TCon)
		if !isCon {
			b.report(diagnostics.ErrL001, tok, doc.file,
				"malformed type application %s", typ.String())
			return nil, false
		}
		if vars[ctor.Name] {
			b.report(diagnostics.ErrL001, tok, doc.file,
				"type parameter %s cannot take type arguments", ctor.Name)
			return nil, false
		}
		def, found := b.table.ResolveType(ctor.Name)
		if !found {
			b.report(diagnostics.ErrL002, tok, doc.file, "unknown type %s", ctor.Name)
			return nil, false
		}
		if def.Arity() != len(typ.Args) {
			b.report(diagnostics.ErrL004, tok, doc.file,
				"type %s expects %d type arguments, got %d", ctor.Name, def.Arity(), len(typ.Args))
			return nil, false
		}
		args := make([]typesystem.Type, len(typ.Args))
		for i, arg := range typ.Args {
			bound, ok := b.bindType(arg, vars, doc, tok)
			if !ok {
				return nil, false
			}
			args[i] = bound
		}
		return typesystem.TApp{Constructor: ctor, Args: args}, true
	case typesystem.TTuple:
		elems := make([]typesystem.Type, len(typ.Elements))
		for i, el := range typ.Elements {
			bound, ok := b.bindType(el, vars, doc, tok)
			if !ok {
				return nil, false
			}
			elems[i] = bound
		}
		return typesystem.TTuple{Elements: elems}, true
	case typesystem.TAssoc:
		base, ok := b.bindType(typ.Base, vars, doc, tok)
		if !ok {
			return nil, false
		}
		return typesystem.TAssoc{Base: base, Name: typ.Name}, true
	case typesystem.TMarker:
		ok := true
		for _, name := range typ.Caps.Names {
			if !b.table.CapabilityExists(name) {
				b.report(diagnostics.ErrL003, tok, doc.file, "unknown capability %s", name)
				ok = false
			}
		}
		bindings := make([]typesystem.AssocBinding, 0, len(typ.Caps.Bindings))
		for _, bind := range typ.Caps.Bindings {
			bt, bok := b.bindType(bind.Type, vars, doc, tok)
			if !bok {
				ok = false
				continue
			}
			bindings = append(bindings, typesystem.AssocBinding{Name: bind.Name, Type: bt})
		}
		if !ok {
			return nil, false
		}
		return typesystem.TMarker{Caps: typesystem.NewCapabilitySet(typ.Caps.Names, bindings)}, true
	case typesystem.TOpaque:
		args := make([]typesystem.Type, len(typ.Args))
		for i, arg := range typ.Args {
			bound, ok := b.bindType(arg, vars, doc, tok)
			if !ok {
				return nil, false
			}
			args[i] = bound
		}
		return typesystem.TOpaque{Decl: typ.Decl, DeclName: typ.DeclName, Args: args}, true
	default:
		b.report(diagnostics.ErrL001, tok, doc.file, "malformed type %v", t)
		return nil, false
	}
}

// bindRequirements parses and binds one where-list clause, which may
// expand to several requirements (`T: Ordered & Equatable`).
func (b *Builder) bindRequirements(src string, vars map[string]bool, doc *Document, tok token.Token) ([]typesystem.Requirement, bool) {
	reqs, err := typesystem.ParseRequirement(src)
	if err != nil {
		b.report(diagnostics.ErrL001, tok, doc.file, "%v", err)
		return nil, false
	}
	out := make([]typesystem.Requirement, 0, len(reqs))
	for _, req := range reqs {
		subject, ok := b.bindType(req.Subject, vars, doc, tok)
		if !ok {
			return nil, false
		}
		if req.Capability != "" && !b.table.CapabilityExists(req.Capability) {
			b.report(diagnostics.ErrL003, tok, doc.file, "unknown capability %s", req.Capability)
			return nil, false
		}
		bound := typesystem.Requirement{Subject: subject, Capability: req.Capability}
		if req.Equals != nil {
			equals, ok := b.bindType(req.Equals, vars, doc, tok)
			if !ok {
				return nil, false
			}
			bound.Equals = equals
		}
		out = append(out, bound)
	}
	return out, true
}

// patternVars collects the names in a conformance target that do not
// resolve as types; those act as the conformance's type variables, as in
// `Array<E>` where E ranges over element types.
func (b *Builder) patternVars(t typesystem.Type) map[string]bool {
	vars := map[string]bool{}
	b.collectPatternVars(t, vars)
	return vars
}

func (b *Builder) collectPatternVars(t typesystem.Type, vars map[string]bool) {
	switch typ := t.(type) {
	case typesystem.TCon:
		if typ.Name != config.SelfTypeName && !b.table.TypeExists(typ.Name) {
			vars[typ.Name] = true
		}
	case typesystem.TApp:
		for _, arg := range typ.Args {
			b.collectPatternVars(arg, vars)
		}
	case typesystem.TTuple:
		for _, el := range typ.Elements {
			b.collectPatternVars(el, vars)
		}
	case typesystem.TAssoc:
		b.collectPatternVars(typ.Base, vars)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
