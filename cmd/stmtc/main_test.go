package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xplshn/stmtc/pkg/bundle"
	"github.com/xplshn/stmtc/pkg/codegen"
	"github.com/xplshn/stmtc/pkg/config"
)

func writeFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestPragmasStayInTheirUnit(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.c", "#pragma codesize(300)\n#pragma warn(no-case-labels, off)\nint f(int x) { switch (x) { } return 0; }\n")
	b := writeFile(t, dir, "b.c", "int g(int x) { switch (x) { } return 0; }\n")

	base := config.NewConfig()
	backend := codegen.NewListingBackend()
	compile := func(path string) (unitResult, string) {
		t.Helper()
		out := filepath.Join(dir, filepath.Base(path)+".lst")
		res, err := compileFile(context.Background(), path, base, backend, nil, options{out: out})
		if err != nil {
			t.Fatalf("compileFile(%s): %v", path, err)
		}
		return res, readFile(t, out)
	}

	resA, listA := compile(a)
	if resA.warnings != 0 {
		t.Errorf("a.c: %d warning(s) with no-case-labels turned off", resA.warnings)
	}
	if strings.Contains(listA, "\tswitch\t") {
		t.Error("a.c used a dispatch table at codesize 300")
	}

	resB, listB := compile(b)
	if resB.warnings != 1 {
		t.Errorf("b.c: %d warning(s), want 1 (No case labels)", resB.warnings)
	}
	if !strings.Contains(listB, "\tswitch\t") {
		t.Errorf("b.c did not use a dispatch table at codesize 100:\n%s", listB)
	}
	if base.CodeSizeFactor != config.DefaultCodeSize || !base.IsWarningEnabled(config.WarnNoCaseLabels) {
		t.Error("#pragma lines of a.c changed the shared settings")
	}
}

func TestBundleReusesUnchangedUnits(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "a.c", "int f(int x) { lab: return x + 1; }\n")
	store, err := bundle.Open(filepath.Join(dir, "units.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	base := config.NewConfig()
	out := filepath.Join(dir, "a.lst")
	opt := options{out: out, reuse: true}
	compile := func() (unitResult, string) {
		t.Helper()
		res, err := compileFile(context.Background(), src, base, codegen.NewListingBackend(), store, opt)
		if err != nil {
			t.Fatalf("compileFile: %v", err)
		}
		return res, readFile(t, out)
	}

	first, listing := compile()
	if first.reused {
		t.Fatal("the first compilation reused a bundle entry")
	}
	if first.warnings != 1 {
		t.Errorf("first compilation: %d warning(s), want 1 (unused label)", first.warnings)
	}

	second, again := compile()
	if !second.reused {
		t.Error("an unchanged unit was compiled again")
	}
	if again != listing {
		t.Errorf("reused listing differs:\n%s\nwant:\n%s", again, listing)
	}
	if second.warnings != first.warnings || second.functions != 1 {
		t.Errorf("reused unit: %d warning(s), %d function(s)", second.warnings, second.functions)
	}

	base.CodeSizeFactor = config.CompactCodeSize
	if third, _ := compile(); third.reused {
		t.Error("a unit was reused after the code size factor changed")
	}
}
