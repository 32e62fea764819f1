package diagnostics

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/opaline-lang/opaline/internal/token"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *DiagnosticError
		want string
	}{
		{
			name: "file and position",
			err:  NewError(ErrL002, token.At("Mystery", 3, 7), "unknown type Mystery").WithFile("shapes.oli.yaml"),
			want: "shapes.oli.yaml: 3:7: error[L002]: unknown type Mystery",
		},
		{
			name: "position only",
			err:  NewError(ErrR101, token.At("makeSquare", 12, 1), "exit types disagree"),
			want: "12:1: error[R101]: exit types disagree",
		},
		{
			name: "bare message",
			err:  NewError(ErrL007, token.Token{}, "document is not a mapping"),
			want: "error[L007]: document is not a mapping",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := NewError(ErrR102, token.Token{}, "no exit points")
	err := NewError(ErrR105, token.Token{}, "callee failed").WithCause(cause)
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is should see the chained cause")
	}
}

func TestCollectorDeduplicates(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 3; i++ {
		c.Add(NewError(ErrV201, token.At("Square", 4, 2), "Square does not satisfy Drawable").WithFile("a.oli.yaml"))
	}
	c.Add(NewError(ErrV201, token.At("Square", 4, 2), "Square does not satisfy Printable").WithFile("a.oli.yaml"))

	if got := len(c.Errors()); got != 2 {
		t.Fatalf("expected 2 distinct diagnostics, got %d", got)
	}
}

func TestCollectorOrdering(t *testing.T) {
	c := NewCollector()
	c.Add(NewError(ErrL002, token.At("", 9, 1), "late").WithFile("b.oli.yaml"))
	c.Add(NewError(ErrL002, token.At("", 2, 5), "early").WithFile("b.oli.yaml"))
	c.Add(NewError(ErrL002, token.At("", 40, 1), "other file").WithFile("a.oli.yaml"))

	var got []string
	for _, e := range c.Errors() {
		got = append(got, e.Message)
	}
	want := []string{"other file", "early", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
}

func TestCollectorPromotesPlainErrors(t *testing.T) {
	c := NewCollector()
	c.AddError(errors.New("yaml: line 3: found unexpected end of stream"))

	errs := c.Errors()
	if len(errs) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(errs))
	}
	if errs[0].Code != ErrL007 {
		t.Errorf("plain errors should surface as %s, got %s", ErrL007, errs[0].Code)
	}
}

func TestPrinterPlainWriter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	n := p.Print([]*DiagnosticError{
		NewError(ErrL002, token.At("Mystery", 3, 7), "unknown type Mystery").WithFile("shapes.oli.yaml"),
		NewError(ErrK302, token.At("s", 30, 5), "concrete type of client.s is not visible here"),
	})
	if n != 2 {
		t.Fatalf("Print returned %d, want 2", n)
	}

	out := buf.String()
	if strings.Contains(out, "\033[") {
		t.Errorf("non-terminal writer should never receive ANSI codes:\n%s", out)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d:\n%s", len(lines), out)
	}
	if lines[0] != "shapes.oli.yaml: 3:7: error[L002]: unknown type Mystery" {
		t.Errorf("unexpected first line %q", lines[0])
	}
}

func TestPrinterWarnf(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Warnf("drift", "shapes.makeSquare: %s -> %s", "Square", "Circle")

	want := "drift: shapes.makeSquare: Square -> Circle\n"
	if buf.String() != want {
		t.Errorf("Warnf wrote %q, want %q", buf.String(), want)
	}
}
