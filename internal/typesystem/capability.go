package typesystem

import (
	"sort"
	"strings"
)

// AssocBinding fixes an associated type declared by one of the set's
// capabilities to a concrete type expression (e.g. Element == Int).
type AssocBinding struct {
	Name string
	Type Type
}

func (b AssocBinding) String() string {
	return b.Name + " == " + b.Type.String()
}

// CapabilitySet is an unordered set of capability names plus associated
// type equalities. Sets are normalized on construction: names sorted and
// deduplicated, bindings sorted by name. Set equality is equality of the
// canonical form, independent of source order.
type CapabilitySet struct {
	Names    []string
	Bindings []AssocBinding
}

// NewCapabilitySet builds a normalized set.
func NewCapabilitySet(names []string, bindings []AssocBinding) CapabilitySet {
	seen := make(map[string]bool)
	unique := []string{}
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			unique = append(unique, n)
		}
	}
	sort.Strings(unique)

	seenBind := make(map[string]bool)
	uniqueBind := []AssocBinding{}
	for _, b := range bindings {
		s := b.String()
		if !seenBind[s] {
			seenBind[s] = true
			uniqueBind = append(uniqueBind, b)
		}
	}
	sort.Slice(uniqueBind, func(i, j int) bool {
		if uniqueBind[i].Name != uniqueBind[j].Name {
			return uniqueBind[i].Name < uniqueBind[j].Name
		}
		return uniqueBind[i].Type.String() < uniqueBind[j].Type.String()
	})

	return CapabilitySet{Names: unique, Bindings: uniqueBind}
}

// Contains reports direct membership of a capability name. Inherited
// capabilities are the conformance table's business, not the set's.
func (c CapabilitySet) Contains(name string) bool {
	for _, n := range c.Names {
		if n == name {
			return true
		}
	}
	return false
}

// Union combines two sets into a new normalized set.
func (c CapabilitySet) Union(other CapabilitySet) CapabilitySet {
	names := append(append([]string{}, c.Names...), other.Names...)
	bindings := append(append([]AssocBinding{}, c.Bindings...), other.Bindings...)
	return NewCapabilitySet(names, bindings)
}

// Equal compares canonical forms, so source order never matters.
func (c CapabilitySet) Equal(other CapabilitySet) bool {
	return c.String() == other.String()
}

func (c CapabilitySet) String() string {
	parts := strings.Join(c.Names, " & ")
	if len(c.Bindings) == 0 {
		return parts
	}
	binds := []string{}
	for _, b := range c.Bindings {
		binds = append(binds, b.String())
	}
	if parts == "" {
		return "where " + strings.Join(binds, ", ")
	}
	return parts + " where " + strings.Join(binds, ", ")
}

// Apply substitutes through the binding types; names are untouched.
func (c CapabilitySet) Apply(s Subst) CapabilitySet {
	if len(c.Bindings) == 0 {
		return c
	}
	newBindings := make([]AssocBinding, len(c.Bindings))
	for i, b := range c.Bindings {
		newBindings[i] = AssocBinding{Name: b.Name, Type: b.Type.Apply(s)}
	}
	return NewCapabilitySet(c.Names, newBindings)
}

// Requirement is one clause of a where-list: either a conformance
// requirement (Subject: Capability) or a type equality (Subject == Equals).
// Subjects may be parameters, Self, or associated projections on either.
type Requirement struct {
	Subject    Type
	Capability string
	Equals     Type
}

func (r Requirement) IsEquality() bool {
	return r.Equals != nil
}

func (r Requirement) String() string {
	if r.IsEquality() {
		return r.Subject.String() + " == " + r.Equals.String()
	}
	return r.Subject.String() + ": " + r.Capability
}

func (r Requirement) Apply(s Subst) Requirement {
	out := Requirement{Subject: r.Subject.Apply(s), Capability: r.Capability}
	if r.Equals != nil {
		out.Equals = r.Equals.Apply(s)
	}
	return out
}
