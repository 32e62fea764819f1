package config

import "os"

const DocumentFileExt = ".oli.yaml"

// DocumentFileExtensions are all recognized interface document extensions
var DocumentFileExtensions = []string{".oli.yaml", ".oli.yml", ".yaml", ".yml"}

// Built-in type names preloaded into the prelude scope of every table.
var BuiltinTypeNames = []string{"Int", "String", "Bool", "Double", "Char", "Unit"}

// Names with fixed meaning in requirements and declarations
const (
	SelfTypeName  = "Self"
	OpaqueKeyword = "opaque"
	WhereKeyword  = "where"
)

// Declaration kind names as they appear in documents
const (
	KindFunc      = "func"
	KindProperty  = "property"
	KindSubscript = "subscript"
)

// MaxResolveDepth caps nested resolution through call exits. A declaration
// that instantiates itself with ever-growing arguments would otherwise
// recurse without bound; chains deeper than this report resolution overflow.
const MaxResolveDepth = 64

// DefaultArchivePath is where bindings are recorded when -archive is given
// without an explicit path.
const DefaultArchivePath = "opaline-bindings.db"

// DefaultDaemonAddr is the analysis daemon's listen address unless
// overridden by flag or environment.
const DefaultDaemonAddr = "127.0.0.1:7433"

// EnvDaemonAddr names the environment variable that overrides the daemon
// address for both semad and remote checks.
const EnvDaemonAddr = "OPALINE_DAEMON_ADDR"

// DaemonAddr returns the daemon address from the environment, falling back
// to the default.
func DaemonAddr() string {
	if addr := os.Getenv(EnvDaemonAddr); addr != "" {
		return addr
	}
	return DefaultDaemonAddr
}
