package opaque

import (
	"fmt"
	"sort"
	"sync"

	"github.com/opaline-lang/opaline/internal/diagnostics"
	"github.com/opaline-lang/opaline/internal/typesystem"
)

// bindingSlot holds one key's resolution result. The goroutine that
// creates the slot computes and publishes; everyone else waits on done.
type bindingSlot struct {
	key        OpaqueKey
	done       chan struct{}
	underlying typesystem.Type
	err        error
}

// Binding is the established result for one key, failed or bound.
type Binding struct {
	Key        OpaqueKey
	Underlying typesystem.Type
	Err        error
}

// Resolver computes the underlying type behind opaque keys. Results are
// memoized for the resolver's lifetime: a key is bound at most once, the
// first computation wins, and every later lookup returns the same
// binding. Concurrent callers of an unresolved key coalesce onto the one
// computation in flight.
//
// Computation of one key never resolves another, so coalescing cannot
// deadlock: an exit that returns another opaque declaration's value types
// as that declaration's handle, not as its underlying type. Whether the
// callee itself resolves is audited separately over the finished binding
// graph.
type Resolver struct {
	registry *Registry

	mu    sync.Mutex
	slots map[string]*bindingSlot
}

func NewResolver(registry *Registry) *Resolver {
	return &Resolver{
		registry: registry,
		slots:    make(map[string]*bindingSlot),
	}
}

// Resolve returns the underlying type bound to the key, computing and
// memoizing it on first use.
func (r *Resolver) Resolve(key OpaqueKey) (typesystem.Type, error) {
	fp := key.Fingerprint()

	r.mu.Lock()
	if slot, ok := r.slots[fp]; ok {
		r.mu.Unlock()
		<-slot.done
		return slot.underlying, slot.err
	}
	slot := &bindingSlot{key: key, done: make(chan struct{})}
	r.slots[fp] = slot
	r.mu.Unlock()

	slot.underlying, slot.err = r.compute(key)
	close(slot.done)
	return slot.underlying, slot.err
}

// Bound returns the binding for a key if one has been established,
// without triggering a computation.
func (r *Resolver) Bound(key OpaqueKey) (Binding, bool) {
	r.mu.Lock()
	slot, ok := r.slots[key.Fingerprint()]
	r.mu.Unlock()
	if !ok {
		return Binding{}, false
	}
	select {
	case <-slot.done:
		return Binding{Key: slot.key, Underlying: slot.underlying, Err: slot.err}, true
	default:
		return Binding{}, false
	}
}

// Bindings returns every established binding sorted by fingerprint.
// Slots still in flight are skipped.
func (r *Resolver) Bindings() []Binding {
	r.mu.Lock()
	slots := make([]*bindingSlot, 0, len(r.slots))
	for _, slot := range r.slots {
		slots = append(slots, slot)
	}
	r.mu.Unlock()

	out := make([]Binding, 0, len(slots))
	for _, slot := range slots {
		select {
		case <-slot.done:
			out = append(out, Binding{Key: slot.key, Underlying: slot.underlying, Err: slot.err})
		default:
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.Fingerprint() < out[j].Key.Fingerprint()
	})
	return out
}

// compute derives the underlying type from the declaration's exit points.
// Every informative exit must produce the same concrete type once the
// instantiation arguments are substituted in; exits that return the
// declaration's own handle for the same key are recursive and contribute
// nothing.
func (r *Resolver) compute(key OpaqueKey) (typesystem.Type, error) {
	decl, ok := r.registry.Lookup(key.Decl)
	if !ok {
		return nil, fmt.Errorf("no opaque declaration for key %s", key)
	}

	subst := decl.ParamSubst(key.Args)
	shape := decl.Shape.Apply(subst)

	if len(decl.Exits) == 0 {
		return nil, diagnostics.NewError(diagnostics.ErrR102, decl.Token, fmt.Sprintf(
			"%s %s has no return paths, so its underlying type cannot be inferred",
			decl.Kind, decl.Name)).WithFile(decl.File)
	}

	ownFp := key.Fingerprint()
	var underlying typesystem.Type
	for _, exit := range decl.Exits {
		static, recursive, err := r.exitStatic(decl, exit, subst, ownFp)
		if err != nil {
			return nil, err
		}
		if recursive {
			continue
		}

		extracted, err := typesystem.MatchShape(shape, static)
		if err != nil {
			return nil, diagnostics.NewError(diagnostics.ErrR101, exit.Token, fmt.Sprintf(
				"%s %s returns %s, which does not fit the declared result %s",
				decl.Kind, decl.Name, static, shape)).WithFile(decl.File)
		}
		if h, ok := extracted.(typesystem.TOpaque); ok && KeyFor(h).Fingerprint() == ownFp {
			continue
		}

		if underlying == nil {
			underlying = extracted
			continue
		}
		if !typesystem.Equal(underlying, extracted) {
			return nil, diagnostics.NewError(diagnostics.ErrR101, exit.Token, fmt.Sprintf(
				"%s %s returns %s here but %s on an earlier path; every path must produce the same concrete type",
				decl.Kind, decl.Name, extracted, underlying)).WithFile(decl.File)
		}
	}

	if underlying == nil {
		return nil, diagnostics.NewError(diagnostics.ErrR103, decl.Token, fmt.Sprintf(
			"every return path in %s %s is recursive, so no concrete underlying type exists",
			decl.Kind, decl.Name)).WithFile(decl.File)
	}
	return underlying, nil
}

// exitStatic types one exit point under the instantiation substitution.
// A call exit types as the callee's declared result with the marker
// replaced by the callee's handle; the callee's own underlying type never
// leaks through. A call that lands back on the key being computed is
// recursive.
func (r *Resolver) exitStatic(decl *OpaqueDeclaration, exit ExitPoint, subst typesystem.Subst, ownFp string) (typesystem.Type, bool, error) {
	if !exit.IsCall() {
		return exit.Type.Apply(subst), false, nil
	}

	callee, ok := r.registry.LookupName(exit.Call)
	if !ok {
		return nil, false, diagnostics.NewError(diagnostics.ErrR105, exit.Token, fmt.Sprintf(
			"%s %s returns the result of %s, which is not a known opaque declaration",
			decl.Kind, decl.Name, exit.Call)).WithFile(decl.File)
	}
	if len(exit.CallArgs) != len(callee.Params) {
		return nil, false, diagnostics.NewError(diagnostics.ErrR105, exit.Token, fmt.Sprintf(
			"%s %s calls %s with %d type arguments, want %d",
			decl.Kind, decl.Name, callee.Name, len(exit.CallArgs), len(callee.Params))).WithFile(decl.File)
	}

	args := make([]typesystem.Type, len(exit.CallArgs))
	for i, a := range exit.CallArgs {
		args[i] = a.Apply(subst)
	}
	calleeKey := NewKey(callee.ID, args)
	if calleeKey.Fingerprint() == ownFp {
		return nil, true, nil
	}

	calleeShape := callee.Shape.Apply(callee.ParamSubst(args))
	return typesystem.ReplaceMarker(calleeShape, callee.Handle(args)), false, nil
}
