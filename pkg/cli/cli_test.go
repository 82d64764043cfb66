package cli

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/stmtc/pkg/config"
)

type options struct {
	output, emit string
	verbose      bool
	steps        int
	args         []string
	warnings     []string
	features     []string
}

func newFlagSet(o *options) *FlagSet {
	fs := NewFlagSet("test")
	fs.String(&o.output, "output", "o", "a.out", "Output file", "file")
	fs.String(&o.emit, "emit", "e", "listing", "Output kind", "kind")
	fs.Bool(&o.verbose, "verbose", "v", false, "Verbose")
	fs.Int(&o.steps, "max-steps", "", 10, "Step limit", "n")
	fs.List(&o.args, "arg", "a", "Argument", "n")
	fs.Prefixed(&o.warnings, "W", Group{Title: "Warning Flags"})
	fs.Prefixed(&o.features, "F", Group{Title: "Feature Flags"})
	return fs
}

func TestParse(t *testing.T) {
	var o options
	fs := newFlagSet(&o)
	args := []string{
		"-oout.lst", "--emit=qbe", "-v", "--max-steps", "50",
		"-a", "1", "-a2", "-Wall", "-Fno-goto", "a.c", "--", "-b.c",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := options{
		output: "out.lst", emit: "qbe", verbose: true, steps: 50,
		args: []string{"1", "2"}, warnings: []string{"Wall"}, features: []string{"Fno-goto"},
	}
	if diff := cmp.Diff(want, o, cmp.AllowUnexported(options{})); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.c", "-b.c"}, fs.Args()); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if f := fs.Lookup("emit"); f == nil || f.DefValue != "listing" {
		t.Errorf("Lookup(emit) = %+v", f)
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string][]string{
		"unknown flag: --nope":          {"--nope"},
		"flag needs an argument: -o":    {"-o"},
		"invalid integer value 'x'":     {"--max-steps=x"},
		"invalid boolean value 'maybe'": {"--verbose=maybe"},
	}
	for want, args := range tests {
		var o options
		err := newFlagSet(&o).Parse(args)
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("Parse(%q) error = %v, want %q", args, err, want)
		}
	}
}

func TestApplyGroups(t *testing.T) {
	cfg := config.NewConfig()
	unknown := ApplyGroups(cfg, []string{"Wno-unused-label", "Wall", "Fno-goto", "Wbogus", "Fnope"})
	if diff := cmp.Diff([]string{"-Wbogus", "-Fnope"}, unknown); diff != "" {
		t.Errorf("unknown flags mismatch (-want +got):\n%s", diff)
	}
	if cfg.IsWarningEnabled(config.WarnUnusedLabel) {
		t.Error("-Wno-unused-label lost to -Wall")
	}
	if !cfg.IsWarningEnabled(config.WarnUnreachableCode) {
		t.Error("-Wall did not enable unreachable-code")
	}
	if cfg.IsFeatureEnabled(config.FeatGoto) {
		t.Error("-Fno-goto had no effect")
	}
}

func TestGroups(t *testing.T) {
	cfg := config.NewConfig()
	if n := len(WarningGroup(cfg).Entries); n != int(config.WarnCount) {
		t.Errorf("WarningGroup has %d entries, want %d", n, config.WarnCount)
	}
	if got := FeatureGroup(cfg).Entries[config.FeatGoto].Name; got != "goto" {
		t.Errorf("feature %d is %q, want goto", config.FeatGoto, got)
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("aa bb cc dd  e", 5)
	if diff := cmp.Diff([]string{"aa bb", "cc dd", "e"}, got); diff != "" {
		t.Errorf("wrapText mismatch (-want +got):\n%s", diff)
	}
}
