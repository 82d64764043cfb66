//go:build windows

package codegen

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/ir"
)

func (b *qbeBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	fmt.Fprintln(os.Stderr, "stmtc: info: self-contained QBE backend is not supported on Windows, falling back to the system 'qbe'")
	if _, err := exec.LookPath("qbe"); err != nil {
		return nil, fmt.Errorf("QBE not found in PATH: %w", err)
	}

	qbeIR, err := b.GenerateIR(prog, cfg)
	if err != nil {
		return nil, err
	}

	inputFile, err := os.CreateTemp("", "stmtc-qbe-*.ssa")
	if err != nil {
		return nil, err
	}
	defer os.Remove(inputFile.Name())
	defer inputFile.Close()

	if _, err = inputFile.WriteString(qbeIR); err != nil {
		return nil, err
	}

	outputName := inputFile.Name() + ".s"
	cmd := exec.Command("qbe", "-o", outputName, "-t", cfg.QbeTarget, inputFile.Name())
	if err = cmd.Run(); err != nil {
		return nil, assembleError(cfg.QbeTarget, len(prog.Funcs), qbeIR, err)
	}

	outputFile, err := os.Open(outputName)
	if err != nil {
		return nil, err
	}
	defer os.Remove(outputName)
	defer outputFile.Close()

	var asmBuf bytes.Buffer
	if _, err = io.Copy(&asmBuf, outputFile); err != nil {
		return nil, err
	}
	return &asmBuf, nil
}
