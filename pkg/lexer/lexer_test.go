package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/token"
	"github.com/xplshn/stmtc/pkg/util"
)

type tok struct {
	Type  token.Type
	Value string
}

func lex(t *testing.T, src string, cfg *config.Config) ([]tok, *util.Reporter) {
	t.Helper()
	if cfg == nil {
		cfg = config.NewConfig()
	}
	diag := util.NewReporter(nil, cfg)
	idx := diag.AddSourceFile("test.c", []rune(src))
	var out []tok
	for _, tk := range NewLexer([]rune(src), idx, cfg, diag).Tokenize() {
		out = append(out, tok{tk.Type, tk.Value})
	}
	return out, diag
}

func TestTokens(t *testing.T) {
	src := "while (i <= 0x1F) { i += 'a'; x <<= 2; } // done\ngoto out;"
	got, diag := lex(t, src, nil)
	want := []tok{
		{token.While, ""}, {token.LParen, ""}, {token.Ident, "i"}, {token.Lte, ""},
		{token.Number, "31"}, {token.RParen, ""}, {token.LBrace, ""},
		{token.Ident, "i"}, {token.PlusEq, ""}, {token.CharLit, "97"}, {token.Semi, ""},
		{token.Ident, "x"}, {token.ShlEq, ""}, {token.Number, "2"}, {token.Semi, ""},
		{token.RBrace, ""}, {token.Goto, ""}, {token.Ident, "out"}, {token.Semi, ""},
		{token.EOF, ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
	if diag.ErrorCount() != 0 {
		t.Errorf("unexpected errors: %v", diag.Diags)
	}
}

func TestOperators(t *testing.T) {
	got, _ := lex(t, "++ -- && || ! != ~ ^= %= >> >= & |= -", nil)
	var types []token.Type
	for _, tk := range got {
		types = append(types, tk.Type)
	}
	want := []token.Type{
		token.Inc, token.Dec, token.AndAnd, token.OrOr, token.Not, token.Neq, token.Complement,
		token.XorEq, token.RemEq, token.Shr, token.Gte, token.And, token.OrEq, token.Minus, token.EOF,
	}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("operators mismatch (-want +got):\n%s", diff)
	}
}

func TestCharEscapes(t *testing.T) {
	tests := map[string]string{
		`'\n'`:    "10",
		`'\0'`:    "0",
		`'\101'`:  "65",
		`'\x41'`:  "65",
		`'\\'`:    "92",
		`'\''`:    "39",
		`'\xfff'`: "255",
	}
	for src, want := range tests {
		got, diag := lex(t, src, nil)
		if len(got) != 2 || got[0].Type != token.CharLit || got[0].Value != want {
			t.Errorf("%s lexed as %v, want char %s", src, got, want)
		}
		if diag.ErrorCount() != 0 {
			t.Errorf("%s: unexpected errors: %v", src, diag.Diags)
		}
	}
}

func TestPragma(t *testing.T) {
	src := "#pragma codesize (push, 200)\nint x;\n  #  pragma warn(unused-label, off)\n"
	got, _ := lex(t, src, nil)
	want := []tok{
		{token.Pragma, "codesize (push, 200)"},
		{token.Int, ""}, {token.Ident, "x"}, {token.Semi, ""},
		{token.Pragma, "warn(unused-label, off)"},
		{token.EOF, ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}

	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatPragmas, false)
	got, diag := lex(t, "#pragma codesize(200)\n;", cfg)
	if diff := cmp.Diff([]tok{{token.Semi, ""}, {token.EOF, ""}}, got); diff != "" {
		t.Errorf("disabled pragmas mismatch (-want +got):\n%s", diff)
	}
	if diag.ErrorCount() != 0 {
		t.Errorf("disabled pragmas reported errors: %v", diag.Diags)
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"''", "Empty character constant"},
		{"'a", "Unterminated character constant"},
		{"/* open", "Unterminated block comment"},
		{"#include <x.h>", "Preprocessor directive '#include' is not supported"},
		{"@", "Unexpected character: '@'"},
	}
	for _, tc := range tests {
		_, diag := lex(t, tc.src, nil)
		var msgs []string
		for _, d := range diag.Diags {
			msgs = append(msgs, d.Msg)
		}
		if diff := cmp.Diff([]string{tc.want}, msgs); diff != "" {
			t.Errorf("%q diagnostics mismatch (-want +got):\n%s", tc.src, diff)
		}
	}
}

func TestLineComments(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatCComments, false)
	got, _ := lex(t, "a // b", cfg)
	want := []tok{{token.Ident, "a"}, {token.Slash, ""}, {token.Slash, ""}, {token.Ident, "b"}, {token.EOF, ""}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}
