package opaque

import (
	"fmt"
	"strings"

	"github.com/opaline-lang/opaline/internal/typesystem"
)

// OpaqueKey identifies one instantiation of an opaque declaration. Two
// handles abbreviate the same underlying type exactly when their keys are
// equal: same declaration, structurally equal generic arguments. Keys
// carry no body or exit information, so building one is pure.
type OpaqueKey struct {
	Decl typesystem.DeclID
	Args []typesystem.Type
}

// NewKey builds the key for an instantiation. The argument slice is
// copied; keys are immutable once built.
func NewKey(decl typesystem.DeclID, args []typesystem.Type) OpaqueKey {
	if len(args) == 0 {
		return OpaqueKey{Decl: decl}
	}
	copied := make([]typesystem.Type, len(args))
	copy(copied, args)
	return OpaqueKey{Decl: decl, Args: copied}
}

// KeyFor builds the key for a handle type.
func KeyFor(h typesystem.TOpaque) OpaqueKey {
	return NewKey(h.Decl, h.Args)
}

func (k OpaqueKey) Equal(other OpaqueKey) bool {
	if k.Decl != other.Decl || len(k.Args) != len(other.Args) {
		return false
	}
	for i := range k.Args {
		if !typesystem.Equal(k.Args[i], other.Args[i]) {
			return false
		}
	}
	return true
}

// Fingerprint returns the canonical string form of the key. It is the
// cache key inside a session and the stable identity the archive stores
// across runs.
func (k OpaqueKey) Fingerprint() string {
	if len(k.Args) == 0 {
		return fmt.Sprintf("%d", k.Decl)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d", k.Decl)
	for _, arg := range k.Args {
		sb.WriteByte('|')
		sb.WriteString(arg.String())
	}
	return sb.String()
}

func (k OpaqueKey) String() string {
	if len(k.Args) == 0 {
		return fmt.Sprintf("#%d", k.Decl)
	}
	parts := make([]string, len(k.Args))
	for i, arg := range k.Args {
		parts[i] = arg.String()
	}
	return fmt.Sprintf("#%d<%s>", k.Decl, strings.Join(parts, ", "))
}
