package stmt

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/token"
	"github.com/xplshn/stmtc/pkg/types"
)

type recorder struct {
	errors, warnings []string
}

func (r *recorder) Error(_ token.Token, format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recorder) Warn(_ config.Warning, _ token.Token, format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func TestChooseStrategy(t *testing.T) {
	tests := []struct {
		sel      types.Type
		codeSize int
		want     Strategy
	}{
		{types.UChar, config.DefaultCodeSize, Cascade},
		{types.SChar, config.DefaultCodeSize, Cascade},
		{types.Int, config.DefaultCodeSize, Table},
		{types.UInt, config.DefaultCodeSize, Table},
		{types.Int, 199, Table},
		{types.Int, config.CompactCodeSize, Cascade},
		{types.UInt, 300, Cascade},
		{types.UChar, 300, Cascade},
	}
	for _, tc := range tests {
		cfg := config.NewConfig()
		cfg.CodeSizeFactor = tc.codeSize
		if got := ChooseStrategy(tc.sel, cfg); got != tc.want {
			t.Errorf("ChooseStrategy(%s, codesize %d) = %s, want %s", tc.sel, tc.codeSize, got, tc.want)
		}
	}
}

func TestExitAnd(t *testing.T) {
	tests := []struct {
		a, b, want Exit
	}{
		{DefiniteExit, DefiniteExit, DefiniteExit},
		{DefiniteExit, FallsThrough, FallsThrough},
		{FallsThrough, DefiniteExit, FallsThrough},
		{FallsThrough, FallsThrough, FallsThrough},
	}
	for _, tc := range tests {
		if got := tc.a.And(tc.b); got != tc.want {
			t.Errorf("%s.And(%s) = %s, want %s", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestPragmaCodeSize(t *testing.T) {
	cfg := config.NewConfig()
	diag := &recorder{}
	pragma := func(text string) { ApplyPragma(token.Token{Type: token.Pragma, Value: text}, cfg, diag) }

	pragma("codesize(150)")
	if cfg.CodeSizeFactor != 150 {
		t.Fatalf("codesize(150): factor %d", cfg.CodeSizeFactor)
	}
	pragma("codesize(push, 250)")
	if cfg.CodeSizeFactor != 250 || !cfg.FavorsSize() {
		t.Fatalf("codesize(push, 250): factor %d", cfg.CodeSizeFactor)
	}
	pragma("codesize (pop)")
	if cfg.CodeSizeFactor != 150 {
		t.Fatalf("codesize(pop): factor %d, want 150", cfg.CodeSizeFactor)
	}
	pragma("codesize(pop)")
	pragma("codesize(fast)")

	want := []string{"#pragma codesize stack is empty", "Invalid code size factor 'fast'"}
	if diff := cmp.Diff(want, diag.errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestPragmaWarn(t *testing.T) {
	cfg := config.NewConfig()
	diag := &recorder{}
	pragma := func(text string) { ApplyPragma(token.Token{Type: token.Pragma, Value: text}, cfg, diag) }

	pragma("warn(unused-label, off)")
	if cfg.IsWarningEnabled(config.WarnUnusedLabel) {
		t.Error("warn(unused-label, off) left the warning on")
	}
	pragma("warn(unreachable-code, 1)")
	if !cfg.IsWarningEnabled(config.WarnUnreachableCode) {
		t.Error("warn(unreachable-code, 1) left the warning off")
	}
	pragma("warn(no-such-thing, on)")
	pragma("optimize(on)")

	want := []string{"Unknown warning 'no-such-thing' in #pragma warn", "Unknown #pragma 'optimize'"}
	if diff := cmp.Diff(want, diag.warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
	if len(diag.errors) != 0 {
		t.Errorf("unexpected errors: %q", diag.errors)
	}
}

func TestKindNames(t *testing.T) {
	for k := KindExpr; k <= KindDecl; k++ {
		if k.String() == "" {
			t.Errorf("Kind %d has no name", int(k))
		}
	}
	if Table.String() != "table" || Cascade.String() != "cascade" {
		t.Errorf("strategy names: %s, %s", Table, Cascade)
	}
}
