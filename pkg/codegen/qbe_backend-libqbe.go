//go:build !windows

package codegen

import (
	"bytes"
	"strings"

	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/ir"
	"modernc.org/libqbe"
)

// Generate lowers prog and assembles it in-process with libqbe.
func (b *qbeBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	il, err := b.GenerateIR(prog, cfg)
	if err != nil {
		return nil, err
	}

	var asm bytes.Buffer
	if err := libqbe.Main(cfg.QbeTarget, qbeInputName, strings.NewReader(il), &asm, nil); err != nil {
		return nil, assembleError(cfg.QbeTarget, len(prog.Funcs), il, err)
	}
	return &asm, nil
}
