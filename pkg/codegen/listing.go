package codegen

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/ir"
)

// WriteFunc writes the listing of a single function.
func WriteFunc(w io.Writer, fn *ir.Func) error {
	if _, err := fmt.Fprintf(w, "; function %s (%s, params %d)\n%s:\n", fn.Name, fn.Ret, fn.ParamBytes, fn.Name); err != nil {
		return err
	}
	for _, in := range fn.Code {
		if in.Op == ir.OpEnter {
			continue
		}
		if _, err := fmt.Fprintln(w, in.String()); err != nil {
			return err
		}
	}
	return nil
}

// WriteListing writes the human readable pseudo-assembly of a program.
func WriteListing(w io.Writer, prog *ir.Program) error {
	for _, g := range prog.Globals {
		if _, err := fmt.Fprintf(w, "%s:\t.%s\t%d\n", g.Name, dataDirective(g), g.Init); err != nil {
			return err
		}
	}
	for i, fn := range prog.Funcs {
		if i > 0 || len(prog.Globals) > 0 {
			fmt.Fprintln(w)
		}
		if err := WriteFunc(w, fn); err != nil {
			return err
		}
	}
	return nil
}

func dataDirective(g *ir.Global) string {
	if g.Typ.Size() == 1 {
		return "byte"
	}
	return "word"
}

// FuncListing returns the instruction lines of fn, one per entry.
func FuncListing(fn *ir.Func) []string {
	var b strings.Builder
	WriteFunc(&b, fn)
	return strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
}

// Fingerprint hashes the listing of fn. Two functions with the same
// fingerprint were laid out identically.
func Fingerprint(fn *ir.Func) uint64 {
	h := xxhash.New()
	WriteFunc(h, fn)
	return h.Sum64()
}

type listingBackend struct{}

func NewListingBackend() Backend { return listingBackend{} }

func (listingBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	if err := WriteListing(&buf, prog); err != nil {
		return nil, err
	}
	return &buf, nil
}
