package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/token"
	"github.com/xyproto/env/v2"
	"golang.org/x/term"
)

type Severity int

const (
	SevWarning Severity = iota
	SevError
)

func (s Severity) String() string {
	if s == SevError {
		return "error"
	}
	return "warning"
}

type Diagnostic struct {
	Severity Severity
	File     string
	Line     int
	Column   int
	Msg      string
	Warning  string
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Msg)
	if d.Warning != "" {
		s += " [-W" + d.Warning + "]"
	}
	return s
}

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

// Reporter prints diagnostics the way a terminal user expects them and keeps
// them around so that compilation can carry on after an error.
type Reporter struct {
	out      io.Writer
	color    bool
	cfg      *config.Config
	files    []SourceFileRecord
	Diags    []Diagnostic
	errors   int
	warnings int
}

func NewReporter(out io.Writer, cfg *config.Config) *Reporter {
	r := &Reporter{out: out, cfg: cfg}
	if f, ok := out.(*os.File); ok && f != nil {
		r.color = term.IsTerminal(int(f.Fd())) && !env.Bool("STMTC_NO_COLOR")
	}
	return r
}

// SetSourceFiles stores the source code for all input files for rich error messages
func (r *Reporter) SetSourceFiles(files []SourceFileRecord) { r.files = files }

func (r *Reporter) AddSourceFile(name string, content []rune) int {
	r.files = append(r.files, SourceFileRecord{Name: name, Content: content})
	return len(r.files) - 1
}

func (r *Reporter) ErrorCount() int   { return r.errors }
func (r *Reporter) WarningCount() int { return r.warnings }

func (r *Reporter) paint(code, s string) string {
	if !r.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// findFileAndLine converts a global token to a file-specific location
func (r *Reporter) findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.files) {
		return "<input>", tok.Line, tok.Column
	}
	return r.files[tok.FileIndex].Name, tok.Line, tok.Column
}

// printErrorLine prints the source line and a caret indicating the error position
func (r *Reporter) printErrorLine(tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.files) || tok.Line == 0 {
		return
	}

	content := r.files[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, ch := range content {
		if lineNum <= 1 {
			break
		}
		if ch == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(r.out, "  %s\n", string(content[lineStart:lineEnd]))
	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	col := max(tok.Column-1, 0)
	fmt.Fprintf(r.out, "  %s%s\n", strings.Repeat(" ", col), r.paint("32", caret))
}

func (r *Reporter) report(d Diagnostic, tok token.Token) {
	r.Diags = append(r.Diags, d)
	if r.out == nil {
		return
	}
	code := "33"
	if d.Severity == SevError {
		code = "31"
	}
	fmt.Fprintf(r.out, "%s:%d:%d: %s %s", d.File, d.Line, d.Column, r.paint(code, d.Severity.String()+":"), d.Msg)
	if d.Warning != "" {
		fmt.Fprintf(r.out, " [-W%s]", d.Warning)
	}
	fmt.Fprintln(r.out)
	r.printErrorLine(tok)
}

// Error records an error at tok. Compilation continues.
func (r *Reporter) Error(tok token.Token, format string, args ...any) {
	file, line, col := r.findFileAndLine(tok)
	r.errors++
	r.report(Diagnostic{Severity: SevError, File: file, Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}, tok)
}

// Warn records a warning if the corresponding warning is enabled
func (r *Reporter) Warn(wt config.Warning, tok token.Token, format string, args ...any) {
	if r.cfg != nil && !r.cfg.IsWarningEnabled(wt) {
		return
	}
	file, line, col := r.findFileAndLine(tok)
	name := ""
	if r.cfg != nil {
		name = r.cfg.Warnings[wt].Name
	}
	r.warnings++
	r.report(Diagnostic{Severity: SevWarning, File: file, Line: line, Column: col, Msg: fmt.Sprintf(format, args...), Warning: name}, tok)
}

// Errors returns only the error diagnostics.
func (r *Reporter) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diags {
		if d.Severity == SevError {
			out = append(out, d)
		}
	}
	return out
}

func Info(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "stmtc: info: "+format+"\n", args...)
}

// Fatal prints a driver-level error and exits the program
func Fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "stmtc: error: "+format+"\n", args...)
	os.Exit(1)
}
