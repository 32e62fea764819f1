package manifest

// Document is one parsed module interface document. The front end emits
// these after parsing and lowering surface syntax; the engine never sees
// source text. Type expressions inside a document are strings in the
// compact grammar internal/typesystem parses.
type Document struct {
	Module       string            `yaml:"module"`
	Types        []TypeDecl        `yaml:"types"`
	Capabilities []CapabilityDecl  `yaml:"capabilities"`
	Conformances []ConformanceDecl `yaml:"conformances"`
	Declarations []Declaration     `yaml:"declarations"`
	Sites        []SiteDecl        `yaml:"sites"`

	file string
}

// File returns the path the document was loaded from.
func (d *Document) File() string { return d.file }

type TypeDecl struct {
	Name   string   `yaml:"name"`
	Params []string `yaml:"params"`
	Public bool     `yaml:"public"`
	Line   int      `yaml:"line"`
}

type CapabilityDecl struct {
	Name    string   `yaml:"name"`
	Extends []string `yaml:"extends"`
	Assoc   []string `yaml:"assoc"`
	Public  bool     `yaml:"public"`
	Line    int      `yaml:"line"`
}

type ConformanceDecl struct {
	Capability string            `yaml:"capability"`
	Target     string            `yaml:"target"`
	Where      []string          `yaml:"where"`
	Assoc      map[string]string `yaml:"assoc"`
	Line       int               `yaml:"line"`
}

type ParamDecl struct {
	Name   string   `yaml:"name"`
	Bounds []string `yaml:"bounds"`
}

type ContextDecl struct {
	Protocol  bool `yaml:"protocol"`
	OpenClass bool `yaml:"open_class"`
	Final     bool `yaml:"final"`
}

type ConditionalDecl struct {
	When []string `yaml:"when"`
	Adds []string `yaml:"adds"`
}

// ExitDecl is one return path of a declaration body. Type carries the
// static type of an ordinary return; Call names another opaque
// declaration whose result is returned, with its type arguments.
type ExitDecl struct {
	Type string   `yaml:"type"`
	Call string   `yaml:"call"`
	Args []string `yaml:"args"`
	Line int      `yaml:"line"`
}

type Declaration struct {
	Name        string            `yaml:"name"`
	Kind        string            `yaml:"kind"`
	Params      []ParamDecl       `yaml:"params"`
	Result      string            `yaml:"result"`
	Inlinable   bool              `yaml:"inlinable"`
	Context     ContextDecl       `yaml:"context"`
	Conditional []ConditionalDecl `yaml:"conditional"`
	Exits       []ExitDecl        `yaml:"exits"`
	Line        int               `yaml:"line"`
}

type SiteRef struct {
	Decl string   `yaml:"decl"`
	Args []string `yaml:"args"`
}

type SiteDecl struct {
	Kind   string  `yaml:"kind"`
	Module string  `yaml:"module"`
	In     string  `yaml:"in"`
	A      SiteRef `yaml:"a"`
	B      SiteRef `yaml:"b"`
	Target string  `yaml:"target"`
	Line   int     `yaml:"line"`
}
