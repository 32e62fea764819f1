package symbols

import (
	"fmt"
	"sort"

	"github.com/opaline-lang/opaline/internal/config"
	"github.com/opaline-lang/opaline/internal/token"
	"github.com/opaline-lang/opaline/internal/typesystem"
)

// conformanceDepthLimit bounds recursion through conditional requirements,
// which can otherwise loop on pathological inputs like A<E>: P where A<E>: P.
const conformanceDepthLimit = 32

// ConformanceDef records that a target type pattern conforms to a
// capability, possibly conditional on requirements over the pattern's
// type variables.
type ConformanceDef struct {
	Capability   string
	Target       typesystem.Type
	Assoc        []typesystem.AssocBinding
	Requirements []typesystem.Requirement
	Module       string
	Token        token.Token
}

func (d ConformanceDef) String() string {
	return fmt.Sprintf("%s: %s", d.Target, d.Capability)
}

// Assumptions records the capabilities a rigid subject is known to hold,
// keyed by the subject's canonical string form ("T", "Self", "T.Element").
// Declaration parameter bounds and verification hypotheses both live here.
type Assumptions map[string][]string

// Assume returns a copy with the capability added for the subject.
func (a Assumptions) Assume(subject typesystem.Type, capability string) Assumptions {
	next := make(Assumptions, len(a)+1)
	for k, v := range a {
		next[k] = v
	}
	key := subject.String()
	next[key] = append(append([]string(nil), next[key]...), capability)
	return next
}

// RenameTypeVars renames type variables to avoid collisions during Unify checks
func RenameTypeVars(t typesystem.Type, suffix string) typesystem.Type {
	vars := t.FreeTypeVariables()
	subst := make(typesystem.Subst)
	for _, v := range vars {
		subst[v.Name] = typesystem.TVar{Name: v.Name + "_" + suffix}
	}
	return t.Apply(subst)
}

func renameConformanceVars(def ConformanceDef, suffix string) ConformanceDef {
	subst := make(typesystem.Subst)
	for _, v := range def.Target.FreeTypeVariables() {
		subst[v.Name] = typesystem.TVar{Name: v.Name + "_" + suffix}
	}
	renamed := def
	renamed.Target = def.Target.Apply(subst)
	renamed.Assoc = make([]typesystem.AssocBinding, len(def.Assoc))
	for i, b := range def.Assoc {
		renamed.Assoc[i] = typesystem.AssocBinding{Name: b.Name, Type: b.Type.Apply(subst)}
	}
	renamed.Requirements = make([]typesystem.Requirement, len(def.Requirements))
	for i, r := range def.Requirements {
		renamed.Requirements[i] = r.Apply(subst)
	}
	return renamed
}

// RegisterConformance adds a conformance after checking that no existing
// conformance for the same capability overlaps with it. Overlap is
// detected by unifying the target patterns with variables renamed apart.
func (s *Table) RegisterConformance(def ConformanceDef) error {
	if !s.CapabilityExists(def.Capability) {
		return fmt.Errorf("capability %q does not exist", def.Capability)
	}
	for _, existing := range s.AllConformances()[def.Capability] {
		renamed := RenameTypeVars(def.Target, "new")
		if _, err := typesystem.Unify(existing.Target, renamed); err == nil {
			return fmt.Errorf("overlapping conformances for capability %s: %s and %s",
				def.Capability, existing.Target, def.Target)
		}
	}
	s.conformances[def.Capability] = append(s.conformances[def.Capability], def)
	return nil
}

// AllConformances returns a copy of every registered conformance, outer
// scopes first.
func (s *Table) AllConformances() map[string][]ConformanceDef {
	result := make(map[string][]ConformanceDef)
	if s.outer != nil {
		for capName, defs := range s.outer.AllConformances() {
			result[capName] = append([]ConformanceDef(nil), defs...)
		}
	}
	for capName, defs := range s.conformances {
		result[capName] = append(result[capName], defs...)
	}
	return result
}

// FindConformance finds a conformance whose target pattern matches t and
// returns an instantiated copy together with the substitution derived
// from unification. Requirements on the returned copy are instantiated
// but not checked; callers decide whether they hold.
func (s *Table) FindConformance(t typesystem.Type, capability string) (*ConformanceDef, typesystem.Subst, error) {
	if defs, ok := s.conformances[capability]; ok {
		for i := range defs {
			inst := renameConformanceVars(defs[i], "inst")
			subst, err := typesystem.Unify(inst.Target, t)
			if err != nil {
				continue
			}
			return &inst, subst, nil
		}
	}
	if s.outer != nil {
		return s.outer.FindConformance(t, capability)
	}
	return nil, nil, fmt.Errorf("conformance not found")
}

// Conforms reports whether t holds the capability. Opaque handles are
// delegated to the engine, rigid subjects are answered from the
// assumption set, and everything else is matched against registered
// conformances with capability inheritance and conditional requirements
// taken into account.
func (s *Table) Conforms(t typesystem.Type, capability string, asm Assumptions) bool {
	return s.conforms(t, capability, asm, 0)
}

func (s *Table) conforms(t typesystem.Type, capability string, asm Assumptions, depth int) bool {
	if depth > conformanceDepthLimit {
		return false
	}
	if h, ok := t.(typesystem.TOpaque); ok {
		if src := s.opaqueSource(); src != nil {
			return src.HandleConforms(h, capability)
		}
		return false
	}
	if isRigid(t) {
		for _, held := range asm[t.String()] {
			if s.Implies(held, capability) {
				return true
			}
		}
		return false
	}

	all := s.AllConformances()
	for _, capName := range sortedCapabilityNames(all) {
		if !s.Implies(capName, capability) {
			continue
		}
		for i := range all[capName] {
			inst := renameConformanceVars(all[capName][i], "inst")
			subst, err := typesystem.Unify(inst.Target, t)
			if err != nil {
				continue
			}
			if s.requirementsHold(inst.Requirements, subst, asm, depth+1) {
				return true
			}
		}
	}
	return false
}

func (s *Table) requirementsHold(reqs []typesystem.Requirement, subst typesystem.Subst, asm Assumptions, depth int) bool {
	for _, req := range reqs {
		if !s.satisfied(req.Apply(subst), asm, depth) {
			return false
		}
	}
	return true
}

// Satisfied evaluates a fully substituted requirement: either an equality
// over normalized projections or a conformance check.
func (s *Table) Satisfied(req typesystem.Requirement, asm Assumptions) bool {
	return s.satisfied(req, asm, 0)
}

func (s *Table) satisfied(req typesystem.Requirement, asm Assumptions, depth int) bool {
	if depth > conformanceDepthLimit {
		return false
	}
	subject := s.NormalizeProjection(req.Subject, asm)
	if req.IsEquality() {
		return typesystem.Equal(subject, s.NormalizeProjection(req.Equals, asm))
	}
	return s.conforms(subject, req.Capability, asm, depth)
}

// NormalizeProjection resolves associated-type projections against the
// conformance table. Projections off rigid bases stay abstract.
func (s *Table) NormalizeProjection(t typesystem.Type, asm Assumptions) typesystem.Type {
	proj, ok := t.(typesystem.TAssoc)
	if !ok {
		return t
	}
	base := s.NormalizeProjection(proj.Base, asm)
	if isRigid(base) {
		return typesystem.TAssoc{Base: base, Name: proj.Name}
	}
	if resolved, ok := s.AssociatedType(base, proj.Name, asm); ok {
		return resolved
	}
	return typesystem.TAssoc{Base: base, Name: proj.Name}
}

// AssociatedType projects the associated type of t through a matching
// conformance whose requirements hold. Opaque handles are delegated to
// the engine; rigid bases project abstractly.
func (s *Table) AssociatedType(t typesystem.Type, name string, asm Assumptions) (typesystem.Type, bool) {
	if h, ok := t.(typesystem.TOpaque); ok {
		if src := s.opaqueSource(); src != nil {
			return src.HandleAssociatedType(h, name)
		}
		return nil, false
	}
	if isRigid(t) {
		return typesystem.TAssoc{Base: t, Name: name}, true
	}

	all := s.AllConformances()
	for _, capName := range sortedCapabilityNames(all) {
		for i := range all[capName] {
			inst := renameConformanceVars(all[capName][i], "inst")
			subst, err := typesystem.Unify(inst.Target, t)
			if err != nil {
				continue
			}
			if !s.requirementsHold(inst.Requirements, subst, asm, 1) {
				continue
			}
			for _, b := range inst.Assoc {
				if b.Name == name {
					resolved := b.Type.Apply(subst)
					return s.NormalizeProjection(resolved, asm), true
				}
			}
		}
	}
	return nil, false
}

// isRigid reports whether a subject stands for an unknown type whose
// capabilities come from assumptions rather than registered conformances:
// type variables, the Self constant, and projections off rigid bases.
func isRigid(t typesystem.Type) bool {
	switch typ := t.(type) {
	case typesystem.TVar:
		return true
	case typesystem.TCon:
		return typ.Name == config.SelfTypeName
	case typesystem.TAssoc:
		return isRigid(typ.Base)
	default:
		return false
	}
}

func sortedCapabilityNames(all map[string][]ConformanceDef) []string {
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
