package manifest

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opaline-lang/opaline/internal/config"
	"github.com/opaline-lang/opaline/internal/diagnostics"
	"github.com/opaline-lang/opaline/internal/token"
)

// Load parses a single interface document from src. file is recorded for
// diagnostics only; it does not have to exist on disk.
func Load(src []byte, file string) (*Document, *diagnostics.DiagnosticError) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, diagnostics.NewError(diagnostics.ErrL007, token.Token{},
				"document is empty").WithFile(file)
		}
		return nil, diagnostics.NewError(diagnostics.ErrL007, token.Token{},
			fmt.Sprintf("YAML parse error: %v", err)).WithFile(file)
	}
	if doc.Module == "" {
		return nil, diagnostics.NewError(diagnostics.ErrL007, token.Token{},
			"document has no module name").WithFile(file)
	}
	doc.file = file
	return &doc, nil
}

// LoadFile reads and parses the interface document at path.
func LoadFile(path string) (*Document, *diagnostics.DiagnosticError) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, diagnostics.NewError(diagnostics.ErrL007, token.Token{},
			fmt.Sprintf("cannot read document: %v", err)).WithFile(path)
	}
	return Load(src, path)
}

// Discover walks root and returns every interface document under it,
// sorted so loading order is deterministic.
func Discover(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isDocumentFile(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering documents in %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func isDocumentFile(name string) bool {
	for _, ext := range config.DocumentFileExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
