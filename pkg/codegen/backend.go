package codegen

import (
	"bytes"
	"fmt"

	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/ir"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Generate takes an IR program and a configuration, and produces the target
	// assembly or intermediate language as a byte buffer.
	Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error)
}

// NewBackend returns the backend registered under name.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "listing", "":
		return NewListingBackend(), nil
	case "qbe":
		return NewQBEIRBackend(), nil
	case "asm":
		return NewQBEBackend(), nil
	}
	return nil, fmt.Errorf("unknown backend '%s' (want listing, qbe or asm)", name)
}
