package symbols

import (
	"fmt"

	"github.com/opaline-lang/opaline/internal/token"
	"github.com/opaline-lang/opaline/internal/typesystem"
)

// CapabilityDef describes a capability: the capabilities it extends and
// the associated type names it declares.
type CapabilityDef struct {
	Name    string
	Extends []string
	Assoc   []string
	Module  string
	Public  bool
	Token   token.Token
}

func (s *Table) DefineCapability(def CapabilityDef) error {
	if _, ok := s.ResolveCapability(def.Name); ok {
		return fmt.Errorf("capability %s already defined", def.Name)
	}
	s.capabilities[def.Name] = def
	return nil
}

func (s *Table) ResolveCapability(name string) (CapabilityDef, bool) {
	if def, ok := s.capabilities[name]; ok {
		return def, true
	}
	if s.outer != nil {
		return s.outer.ResolveCapability(name)
	}
	return CapabilityDef{}, false
}

func (s *Table) CapabilityExists(name string) bool {
	_, ok := s.ResolveCapability(name)
	return ok
}

// Inherits reports whether sub transitively extends super. A capability
// does not inherit from itself.
func (s *Table) Inherits(sub, super string) bool {
	if sub == super {
		return false
	}
	queue := []string{sub}
	visited := map[string]bool{sub: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		def, ok := s.ResolveCapability(current)
		if !ok {
			continue
		}
		for _, parent := range def.Extends {
			if parent == super {
				return true
			}
			if !visited[parent] {
				visited[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	return false
}

// Implies reports whether holding sub satisfies a requirement for super.
func (s *Table) Implies(sub, super string) bool {
	return sub == super || s.Inherits(sub, super)
}

// DeclaresAssoc reports whether the capability or any capability it
// extends declares the associated type name.
func (s *Table) DeclaresAssoc(capability, name string) bool {
	queue := []string{capability}
	visited := map[string]bool{capability: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		def, ok := s.ResolveCapability(current)
		if !ok {
			continue
		}
		for _, assoc := range def.Assoc {
			if assoc == name {
				return true
			}
		}
		for _, parent := range def.Extends {
			if !visited[parent] {
				visited[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	return false
}

// AssocOwnerInSet returns the first capability in the set that declares
// the associated name, walking inherited declarations too.
func (s *Table) AssocOwnerInSet(set typesystem.CapabilitySet, name string) (string, bool) {
	for _, capName := range set.Names {
		if s.DeclaresAssoc(capName, name) {
			return capName, true
		}
	}
	return "", false
}
