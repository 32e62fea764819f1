package diagnostics

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
)

// Printer renders diagnostics to a writer, with ANSI color when the
// writer is a terminal.
type Printer struct {
	w     io.Writer
	color bool
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: colorSupported(w)}
}

// colorSupported honors the NO_COLOR convention (https://no-color.org/)
// and the TERM=dumb escape hatch before probing the descriptor.
func colorSupported(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Print writes every diagnostic on its own line and returns the count.
func (p *Printer) Print(errs []*DiagnosticError) int {
	for _, e := range errs {
		if !p.color {
			fmt.Fprintln(p.w, e.Error())
			continue
		}
		prefix := ""
		if e.File != "" {
			prefix = e.File + ": "
		}
		if e.Token.Line > 0 {
			prefix += fmt.Sprintf("%d:%d: ", e.Token.Line, e.Token.Column)
		}
		fmt.Fprintf(p.w, "%s%serror[%s]%s: %s\n", prefix, ansiRed, e.Code, ansiReset, e.Message)
	}
	return len(errs)
}

// Warnf writes a labeled line such as "drift: ...", coloring the label
// when enabled.
func (p *Printer) Warnf(label, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if p.color {
		fmt.Fprintf(p.w, "%s%s%s: %s\n", ansiYellow, label, ansiReset, msg)
		return
	}
	fmt.Fprintf(p.w, "%s: %s\n", label, msg)
}
