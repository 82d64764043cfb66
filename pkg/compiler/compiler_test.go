package compiler

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/ir"
	"github.com/xplshn/stmtc/pkg/util"
	"github.com/xplshn/stmtc/pkg/vm"
)

func compile(t *testing.T, src string) (*ir.Program, *util.Reporter, error) {
	t.Helper()
	cfg := config.NewConfig()
	diag := util.NewReporter(nil, cfg)
	prog, err := New(cfg, diag).Compile("test.c", []rune(src))
	return prog, diag, err
}

func mustCompile(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, diag, err := compile(t, src)
	if err != nil {
		for _, d := range diag.Diags {
			t.Log(d)
		}
		t.Fatalf("Compile: %v", err)
	}
	return prog
}

func run(t *testing.T, prog *ir.Program, entry string, args ...int64) *vm.Result {
	t.Helper()
	res, err := vm.New(prog, 1_000_000).Run(context.Background(), entry, args...)
	if err != nil {
		t.Fatalf("Run(%s, %v): %v", entry, args, err)
	}
	return res
}

func messages(diag *util.Reporter) []string {
	var out []string
	for _, d := range diag.Diags {
		out = append(out, d.Msg)
	}
	return out
}

func count(fn *ir.Func, op ir.Op) int {
	n := 0
	for _, in := range fn.Code {
		if in.Op == op {
			n++
		}
	}
	return n
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		entry string
		args  []int64
		want  int64
	}{
		{
			name: "for loop",
			src: `int sum(int n) {
				int i, s;
				s = 0;
				for (i = 1; i <= n; i++)
					s += i;
				return s;
			}`,
			entry: "sum", args: []int64{10}, want: 55,
		},
		{
			name: "nested break and continue",
			src: `int loops(void) {
				int i, j, n;
				n = 0;
				for (i = 0; i < 5; i++) {
					if (i == 3) continue;
					j = 0;
					while (1) {
						if (j >= i) break;
						n++;
						j++;
					}
				}
				return n;
			}`,
			entry: "loops", want: 7,
		},
		{
			name: "continue out of nested blocks",
			src: `int blocks(void) {
				int n;
				n = 0;
				do {
					int k;
					k = n;
					{
						int m = k + 1;
						n = m;
						if (n < 5) continue;
					}
					break;
				} while (1);
				return n;
			}`,
			entry: "blocks", want: 5,
		},
		{
			name: "goto",
			src: `int g(int n) {
				int s;
				s = 0;
			again:
				s += n;
				n--;
				if (n > 0) goto again;
				goto done;
				s = 1000;
			done:
				return s;
			}`,
			entry: "g", args: []int64{4}, want: 10,
		},
		{
			name:  "unsigned char wraps",
			src:   `int uwrap(void) { unsigned char c = 255; c++; return c; }`,
			entry: "uwrap", want: 0,
		},
		{
			name:  "signed char wraps",
			src:   `int swrap(void) { signed char c = 127; c++; return c; }`,
			entry: "swrap", want: -128,
		},
		{
			name:  "recursion",
			src:   `int fact(int n) { if (n <= 1) return 1; return n * fact(n - 1); }`,
			entry: "fact", args: []int64{6}, want: 720,
		},
		{
			name:  "int overflow",
			src:   `int fact(int n) { if (n <= 1) return 1; return n * fact(n - 1); }`,
			entry: "fact", args: []int64{8}, want: -25216,
		},
		{
			name:  "conditional operator",
			src:   `int maxi(int a, int b) { return a > b ? a : b; }`,
			entry: "maxi", args: []int64{3, 9}, want: 9,
		},
		{
			name:  "do while runs once",
			src:   `int once(void) { int n; n = 0; do n++; while (0); return n; }`,
			entry: "once", want: 1,
		},
		{
			name: "if else chain",
			src: `int sign(int x) {
				if (x < 0) return -1;
				else if (x == 0) return 0;
				else return 1;
			}`,
			entry: "sign", args: []int64{-7}, want: -1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prog := mustCompile(t, tc.src)
			if got := run(t, prog, tc.entry, tc.args...).Return; got != tc.want {
				t.Errorf("%s(%v) = %d, want %d", tc.entry, tc.args, got, tc.want)
			}
		})
	}
}

func TestLogicalOperators(t *testing.T) {
	prog := mustCompile(t, `int logic(int a, int b) { return a && b || !a; }`)
	tests := []struct {
		a, b, want int64
	}{
		{1, 0, 0},
		{0, 5, 1},
		{2, 3, 1},
	}
	for _, tc := range tests {
		if got := run(t, prog, "logic", tc.a, tc.b).Return; got != tc.want {
			t.Errorf("logic(%d, %d) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestOutputAndGlobals(t *testing.T) {
	prog := mustCompile(t, `
int counter = 5;
void bump(void) { counter += 2; }
void squares(void) { int i; for (i = 0; i < 3; i++) out(i * i); }
int main(void) { bump(); bump(); squares(); return counter; }
`)
	got := run(t, prog, "main")
	want := &vm.Result{Return: 9, Output: []int64{0, 1, 4}, Globals: map[string]int64{"counter": 9}}
	if diff := cmp.Diff(want, got, cmpIgnoreSteps); diff != "" {
		t.Errorf("main() mismatch (-want +got):\n%s", diff)
	}
}

var cmpIgnoreSteps = cmp.FilterPath(func(p cmp.Path) bool {
	return p.Last().String() == ".Steps"
}, cmp.Ignore())

const classify = `
int classify(int x) {
	int r;
	r = 0;
	switch (x) {
	case 1: r = 10; break;
	case 2:
	case 3: r = 20; break;
	default: r = 99; break;
	case 4: r = 40;
	}
	return r;
}

int fall(int x) {
	int r;
	r = 0;
	switch (x) {
	case 1: r += 1;
	case 2: r += 2; break;
	case 3: r += 4;
	}
	return r;
}

int sw(int n) {
	int i, s;
	s = 0;
	for (i = 0; i < n; i++) {
		switch (i & 3) {
		case 0: continue;
		case 1: s += 1; break;
		default: s += 10;
		}
		s += 100;
	}
	return s;
}
`

func results(t *testing.T, prog *ir.Program, entry string, args []int64) []int64 {
	t.Helper()
	var out []int64
	for _, a := range args {
		out = append(out, run(t, prog, entry, a).Return)
	}
	return out
}

func TestSwitchLoweringsAgree(t *testing.T) {
	table := mustCompile(t, classify)
	cascade := mustCompile(t, "#pragma codesize(200)\n"+classify)

	if n := count(table.FindFunc("classify"), ir.OpSwitch); n != 1 {
		t.Errorf("default code size: %d dispatch tables, want 1", n)
	}
	if n := count(cascade.FindFunc("classify"), ir.OpSwitch); n != 0 {
		t.Errorf("codesize 200: %d dispatch tables, want 0", n)
	}

	inputs := []int64{-2, -1, 0, 1, 2, 3, 4, 5, 6, 7, 8}
	wantClassify := []int64{99, 99, 99, 10, 20, 20, 40, 99, 99, 99, 99}
	wantFall := []int64{0, 0, 0, 3, 2, 4, 0, 0, 0, 0, 0}

	for name, prog := range map[string]*ir.Program{"table": table, "cascade": cascade} {
		if diff := cmp.Diff(wantClassify, results(t, prog, "classify", inputs)); diff != "" {
			t.Errorf("%s classify mismatch (-want +got):\n%s", name, diff)
		}
		if diff := cmp.Diff(wantFall, results(t, prog, "fall", inputs)); diff != "" {
			t.Errorf("%s fall mismatch (-want +got):\n%s", name, diff)
		}
		if got := run(t, prog, "sw", 8).Return; got != 642 {
			t.Errorf("%s sw(8) = %d, want 642", name, got)
		}
	}
}

func TestCharSelectorAlwaysCascades(t *testing.T) {
	prog := mustCompile(t, `
int pick(unsigned char c) {
	switch (c) {
	case 'a': return 1;
	case 200: return 2;
	}
	return 0;
}`)
	fn := prog.FindFunc("pick")
	if n := count(fn, ir.OpSwitch); n != 0 {
		t.Errorf("char selector produced %d dispatch tables", n)
	}
	if diff := cmp.Diff([]int64{1, 2, 0}, results(t, prog, "pick", []int64{'a', 200, 3})); diff != "" {
		t.Errorf("pick mismatch (-want +got):\n%s", diff)
	}
}

func TestCharSelectorSharedLabels(t *testing.T) {
	prog := mustCompile(t, `
int pick(unsigned char c) {
	int r;
	r = 0;
	switch (c) {
	case 'a': r = 1; break;
	case 'b':
	case 'c': r = 2; break;
	default: r = 3;
	}
	return r;
}`)
	if n := count(prog.FindFunc("pick"), ir.OpSwitch); n != 0 {
		t.Errorf("char selector produced %d dispatch tables", n)
	}
	if diff := cmp.Diff([]int64{1, 2, 2, 3, 3}, results(t, prog, "pick", []int64{'a', 'b', 'c', 'd', 'z'})); diff != "" {
		t.Errorf("pick mismatch (-want +got):\n%s", diff)
	}
}

func TestForMatchesWhile(t *testing.T) {
	prog := mustCompile(t, `
int viaFor(int n) { int i, s; s = 0; for (i = 0; i < n; i++) { if (i == 5) continue; s += i * 3; } return s; }
int viaWhile(int n) { int i, s; s = 0; i = 0; while (i < n) { if (i == 5) { i++; continue; } s += i * 3; i++; } return s; }
`)
	var inputs []int64
	for n := int64(0); n <= 12; n++ {
		inputs = append(inputs, n)
	}
	if diff := cmp.Diff(results(t, prog, "viaWhile", inputs), results(t, prog, "viaFor", inputs)); diff != "" {
		t.Errorf("for and while disagree (-while +for):\n%s", diff)
	}
}

func TestForIncrementFollowsBody(t *testing.T) {
	prog := mustCompile(t, `int f(int n) { int i, s; s = 0; for (i = 0; i < n; i++) s += i; return s; }`)
	code := prog.FindFunc("f").Code
	for i, in := range code {
		if in.Op != ir.OpJumpTrue {
			continue
		}
		if code[i+1].Op != ir.OpJump {
			t.Fatalf("after %s: got %s, want jump to the exit", in, code[i+1])
		}
		if code[i+2].Op != ir.OpLabel || code[i+2].Label != in.Label {
			t.Fatalf("body label does not follow the loop test: got %s", code[i+2])
		}
		return
	}
	t.Fatal("no conditional jump into the loop body")
}

func TestConstantConditions(t *testing.T) {
	prog := mustCompile(t, `
int spin(void) { int n; n = 0; while (1) { n++; if (n == 10) break; } return n; }
int dead(void) { int x; x = 1; if (0) x = 2; return x; }
int folded(void) { return (2 + 3) * 4 - 1; }
`)
	if n := count(prog.FindFunc("spin"), ir.OpTest); n != 1 {
		t.Errorf("spin: %d tests, want 1 (only the if)", n)
	}
	if n := count(prog.FindFunc("dead"), ir.OpTest); n != 0 {
		t.Errorf("dead: %d tests, want 0", n)
	}
	folded := prog.FindFunc("folded")
	if n := count(folded, ir.OpPush) + count(folded, ir.OpBinary) + count(folded, ir.OpBinaryImm); n != 0 {
		t.Errorf("folded: %d arithmetic instructions left", n)
	}

	if got := run(t, prog, "spin").Return; got != 10 {
		t.Errorf("spin() = %d, want 10", got)
	}
	if got := run(t, prog, "dead").Return; got != 1 {
		t.Errorf("dead() = %d, want 1", got)
	}
	if got := run(t, prog, "folded").Return; got != 19 {
		t.Errorf("folded() = %d, want 19", got)
	}
}

func TestBreakOutsideLoopEmitsNothing(t *testing.T) {
	prog, diag, err := compile(t, `void f(void) { break; }`)
	if err == nil {
		t.Fatal("expected an error")
	}
	if diff := cmp.Diff([]string{"'break' statement not within loop or switch"}, messages(diag)); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	if n := count(prog.FindFunc("f"), ir.OpJump); n != 0 {
		t.Errorf("%d jumps emitted for a stray break", n)
	}
}

func TestRangeErrors(t *testing.T) {
	_, diag, err := compile(t, `
void f(unsigned char c) {
	switch (c) { case 1: break; case 256: break; case -1: break; }
}`)
	if err == nil {
		t.Fatal("expected an error")
	}
	if diff := cmp.Diff([]string{"Range error", "Range error"}, messages(diag)); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"continue in switch", `void f(int x) { switch (x) { case 1: continue; } }`, "'continue' statement not within a loop"},
		{"stray case", `void f(void) { case 1: ; }`, "Case label not within a switch statement"},
		{"stray default", `void f(void) { default: ; }`, "Default label not within a switch statement"},
		{"undefined label", `void f(void) { goto nowhere; }`, "Undefined label: 'nowhere'"},
		{"value from void", `void f(void) { return 1; }`, "Returning a value in function with return type void"},
		{"missing value", `int f(void) { return; }`, "Function 'f' must return a value"},
		{"two defaults", `void f(int x) { switch (x) { default: break; default: break; } }`, "Multiple default labels in one switch"},
		{"late declaration", `void f(void) { int a; a = 1; int b; }`, "Declarations are only allowed at the start of a block"},
		{"constant division", `int f(void) { return 1 / 0; }`, "Division by zero"},
		{"variable case", `void f(int x) { switch (x) { case x: break; } }`, "Constant integer expression expected"},
		{"duplicate label", `void f(void) { a: ; a: ; goto a; }`, "Label 'a' is defined more than once"},
		{"goto into block depth", `void f(void) { { int x; x = 1; goto out; } out: ; }`, "'goto out' jumps across a block with local variables"},
		{"missing semicolon", `void f(int x) { x = 1 }`, "';' expected"},
		{"undefined symbol", `int f(void) { return y; }`, "Undefined symbol: 'y'"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, diag, err := compile(t, tc.src)
			if err == nil {
				t.Fatalf("expected an error, got diagnostics %q", messages(diag))
			}
			found := false
			for _, m := range messages(diag) {
				if m == tc.want {
					found = true
				}
			}
			if !found {
				t.Errorf("missing %q in %q", tc.want, messages(diag))
			}
		})
	}
}

func TestWarnings(t *testing.T) {
	_, diag, err := compile(t, `
int f(void) {
lab:
	return 0;
}
void g(int x) { switch (x) { } }
`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var got []string
	for _, d := range diag.Diags {
		got = append(got, d.Warning)
	}
	if diff := cmp.Diff([]string{"unused-label", "no-case-labels"}, got); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestGotoDisabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ApplyFlag("-Fno-goto")
	diag := util.NewReporter(nil, cfg)
	_, err := New(cfg, diag).Compile("test.c", []rune(`void f(void) { goto a; a: ; }`))
	if err == nil {
		t.Fatal("expected goto to be rejected")
	}
	if !strings.Contains(strings.Join(messages(diag), "\n"), "-Fno-goto") {
		t.Errorf("diagnostics do not mention -Fno-goto: %q", messages(diag))
	}
}

func TestImplicitDeclaration(t *testing.T) {
	prog, diag, err := compile(t, `
int main(void) { return twice(21); }
int twice(int x) { return x + x; }
`)
	if err != nil {
		t.Fatalf("Compile: %v (%q)", err, messages(diag))
	}
	if diag.WarningCount() != 1 {
		t.Errorf("got %d warnings, want 1 for the implicit declaration", diag.WarningCount())
	}
	if got := run(t, prog, "main").Return; got != 42 {
		t.Errorf("main() = %d, want 42", got)
	}
}
