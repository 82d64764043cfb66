package bundle

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/stmtc/pkg/codegen"
	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/ir"
	"github.com/xplshn/stmtc/pkg/types"
	"github.com/xplshn/stmtc/pkg/util"
)

const (
	src      = "unsigned char flag = 1;\nint two() { return 2; }\nint one() { return 1; }\n"
	settings = "codesize=100"
)

func openTemp(t *testing.T) *Bundle {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "units.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func sample() *ir.Program {
	ctx := codegen.NewContext(config.NewConfig())
	ctx.AddGlobal("flag", types.UChar, 1)
	for _, f := range []struct {
		name string
		v    int64
	}{{"two", 2}, {"one", 1}} {
		ctx.BeginFunc(f.name, types.Int, 0)
		ctx.Const(f.v)
		ctx.EndFunc()
	}
	return ctx.Program()
}

func TestSaveAndLoad(t *testing.T) {
	b := openTemp(t)
	prog := sample()
	diags := []util.Diagnostic{
		{Severity: util.SevWarning, File: "a.c", Line: 2, Column: 1, Msg: "Unused label 'x'", Warning: "unused-label"},
		{Severity: util.SevError, File: "a.c", Line: 3, Column: 5, Msg: "';' expected"},
	}

	if !b.Changed("a.c", src, settings) {
		t.Error("Changed reported false for a unit that was never saved")
	}
	if err := b.Save("a.c", src, settings, prog, diags); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if b.Changed("a.c", src, settings) {
		t.Error("Changed reported true for identical source")
	}
	if !b.Changed("a.c", src+"\n", settings) {
		t.Error("Changed reported false for edited source")
	}

	u, fns, err := b.Load("a.c")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if u.Hash != SourceHash(src) || u.Source != src || u.Settings != settings {
		t.Errorf("unit = %+v", u)
	}
	if u.Compiled || u.Listing != "" {
		t.Error("a unit with errors was stored as compiled")
	}

	var names []string
	for _, fn := range fns {
		names = append(names, fn.Name)
	}
	if diff := cmp.Diff([]string{"one", "two"}, names); diff != "" {
		t.Errorf("function order mismatch (-want +got):\n%s", diff)
	}
	one := fns[0]
	if one.Ret != "int" || one.Instrs != 3 {
		t.Errorf("one = %+v", one)
	}
	if want := strings.Join(codegen.FuncListing(prog.Funcs[1]), "\n"); one.Listing != want {
		t.Errorf("listing mismatch:\n%s\nwant:\n%s", one.Listing, want)
	}

	globals, err := b.Globals("a.c")
	if err != nil {
		t.Fatalf("Globals: %v", err)
	}
	if diff := cmp.Diff([]Global{{Unit: "a.c", Name: "flag", Type: "unsigned char", Init: 1}}, globals); diff != "" {
		t.Errorf("globals mismatch (-want +got):\n%s", diff)
	}

	ds, err := b.Diagnostics("a.c")
	if err != nil {
		t.Fatalf("Diagnostics: %v", err)
	}
	var got []string
	for _, d := range ds {
		got = append(got, d.Severity+": "+d.Msg)
	}
	want := []string{"warning: Unused label 'x'", "error: ';' expected"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveReplaces(t *testing.T) {
	b := openTemp(t)
	prog := sample()
	for i := 0; i < 2; i++ {
		if err := b.Save("a.c", src, settings, prog, []util.Diagnostic{{Msg: "again"}}); err != nil {
			t.Fatalf("Save #%d: %v", i+1, err)
		}
	}
	fns, err := b.Functions("a.c")
	if err != nil {
		t.Fatal(err)
	}
	ds, err := b.Diagnostics("a.c")
	if err != nil {
		t.Fatal(err)
	}
	if len(fns) != 2 || len(ds) != 1 {
		t.Errorf("after saving twice: %d functions, %d diagnostics; want 2 and 1", len(fns), len(ds))
	}

	if err := b.Save("a.c", src, settings, nil, nil); err != nil {
		t.Fatalf("Save without a program: %v", err)
	}
	if fns, _ := b.Functions("a.c"); len(fns) != 0 {
		t.Errorf("%d functions left after saving a failed compilation", len(fns))
	}
}

func TestFingerprintsMatchAcrossUnits(t *testing.T) {
	b := openTemp(t)
	prog := sample()
	for _, name := range []string{"a.c", "b.c"} {
		if err := b.Save(name, src, settings, prog, nil); err != nil {
			t.Fatalf("Save %s: %v", name, err)
		}
	}
	a, _ := b.Functions("a.c")
	c, _ := b.Functions("b.c")
	if len(a) != 2 || len(c) != 2 {
		t.Fatalf("got %d and %d functions", len(a), len(c))
	}
	for i := range a {
		if a[i].Fingerprint != c[i].Fingerprint {
			t.Errorf("%s: fingerprints differ", a[i].Name)
		}
	}
}

func TestMigration(t *testing.T) {
	b := openTemp(t)
	ok, err := b.CheckMigration()
	if err != nil {
		t.Fatalf("CheckMigration: %v", err)
	}
	if !ok {
		t.Error("CheckMigration reported a pending migration after Open")
	}
	if _, err := b.Unit("missing.c"); err == nil {
		t.Error("Unit of a missing file should fail")
	}
}

func TestSavedListing(t *testing.T) {
	b := openTemp(t)
	prog := sample()
	warn := []util.Diagnostic{{Severity: util.SevWarning, Msg: "Unused label 'x'"}}
	if err := b.Save("a.c", src, settings, prog, warn); err != nil {
		t.Fatalf("Save: %v", err)
	}

	u, err := b.Unit("a.c")
	if err != nil {
		t.Fatal(err)
	}
	var want strings.Builder
	if err := codegen.WriteListing(&want, prog); err != nil {
		t.Fatal(err)
	}
	if !u.Compiled {
		t.Error("a unit with only warnings was stored as not compiled")
	}
	if diff := cmp.Diff(want.String(), u.Listing); diff != "" {
		t.Errorf("stored listing mismatch (-want +got):\n%s", diff)
	}

	if b.Changed("a.c", src, settings) {
		t.Error("Changed reported true for the same source and settings")
	}
	if !b.Changed("a.c", src, "codesize=200") {
		t.Error("Changed ignored different settings")
	}
}
