package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/xplshn/stmtc/pkg/bundle"
	"github.com/xplshn/stmtc/pkg/cli"
	"github.com/xplshn/stmtc/pkg/codegen"
	"github.com/xplshn/stmtc/pkg/compiler"
	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/ir"
	"github.com/xplshn/stmtc/pkg/outline"
	"github.com/xplshn/stmtc/pkg/util"
	"github.com/xplshn/stmtc/pkg/vm"
)

func main() {
	app := cli.NewApp("stmtc")
	app.Synopsis = "[options] <input.c> ..."
	app.Description = "A single-pass compiler for the statement subset of C, lowering straight into accumulator-machine listings."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/stmtc>"

	var (
		outFile    string
		emit       string
		target     string
		configFile string
		bundlePath string
		entry      string
		runArgs    []string
		switches   []string
		codeSize   int
		maxSteps   int
		showTree   bool
		verbose    bool
	)

	cfg := config.NewConfig()

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file> instead of stdout.", "file")
	fs.String(&emit, "emit", "e", "listing", "Output format: listing, qbe or asm.", "format")
	fs.String(&target, "target", "t", "", "QBE target for the qbe and asm formats.", "target")
	fs.String(&configFile, "config", "c", "", "Read settings from a YAML file.", "file")
	fs.String(&bundlePath, "bundle", "b", "", "Store the compiled units in an SQLite bundle.", "file")
	fs.String(&entry, "run", "r", "", "Run <function> on the built-in machine and print the result as JSON.", "function")
	fs.List(&runArgs, "arg", "a", "Pass an integer argument to the function given with --run.", "int")
	fs.Int(&codeSize, "codesize", "", 0, "Size/speed preference; 200 and above favors compact code.", "n")
	fs.Int(&maxSteps, "max-steps", "", 0, "Abort --run after this many instructions.", "n")
	fs.Bool(&showTree, "outline", "", false, "Print the statement outline of every function.")
	fs.Bool(&verbose, "verbose", "v", false, "Report progress on stderr.")
	fs.Prefixed(&switches, "W", cli.WarningGroup(cfg))
	fs.Prefixed(&switches, "F", cli.FeatureGroup(cfg))

	app.Action = func(inputFiles []string) error {
		if configFile != "" {
			if err := cfg.LoadFile(configFile); err != nil {
				util.Fatal("%v", err)
			}
		}
		cfg.ApplyEnv()
		for _, s := range cli.ApplyGroups(cfg, switches) {
			util.Info("ignoring unknown flag '%s'", s)
		}
		if codeSize > 0 {
			cfg.CodeSizeFactor = codeSize
		}
		if maxSteps > 0 {
			cfg.MaxSteps = maxSteps
		}
		if target == "" {
			target = cfg.QbeTarget
		}
		cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target)

		if len(inputFiles) == 0 {
			util.Fatal("no input files specified.")
		}
		if outFile != "" && len(inputFiles) > 1 {
			util.Fatal("cannot use -o with more than one input file")
		}

		backend, err := codegen.NewBackend(emit)
		if err != nil {
			util.Fatal("%v", err)
		}

		var store *bundle.Bundle
		if bundlePath != "" {
			if store, err = bundle.Open(bundlePath); err != nil {
				util.Fatal("%v", err)
			}
			defer store.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		opt := options{
			out: outFile, entry: entry, args: runArgs, outline: showTree, diags: os.Stderr,
			reuse: store != nil && emit == "listing" && entry == "" && !showTree,
		}
		failed := false
		var errs, warns int
		for _, path := range inputFiles {
			if verbose {
				util.Info("compiling %s", path)
			}
			res, err := compileFile(ctx, path, cfg, backend, store, opt)
			if err != nil {
				fmt.Fprintf(os.Stderr, "stmtc: %v\n", err)
				failed = true
			}
			if res.reused && verbose {
				util.Info("%s is unchanged, reused %d function(s) from the bundle", path, res.functions)
			}
			errs, warns = errs+res.errors, warns+res.warnings
		}
		if verbose {
			util.Info("%d error(s), %d warning(s)", errs, warns)
		}
		if failed {
			return errors.New("compilation failed")
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

type options struct {
	out     string
	entry   string
	args    []string
	outline bool
	diags   io.Writer
	// reuse lets an unchanged unit be listed straight from the bundle.
	reuse bool
}

type unitResult struct {
	errors, warnings int
	functions        int
	reused           bool
}

// compileFile compiles one translation unit. base is never modified: the
// unit gets its own copy of the settings, which its #pragma lines may change.
func compileFile(ctx context.Context, path string, base *config.Config, backend codegen.Backend, store *bundle.Bundle, opt options) (unitResult, error) {
	var res unitResult
	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("could not read file '%s': %w", path, err)
	}
	name, src, settings := filepath.Base(path), string(data), base.Signature()

	if opt.reuse && !store.Changed(name, src, settings) {
		if ok, err := reuseUnit(store, name, opt, &res); ok || err != nil {
			return res, err
		}
	}

	cfg := base.Clone()
	diag := util.NewReporter(opt.diags, cfg)
	c := compiler.New(cfg, diag)
	var rec *outline.Recorder
	if opt.outline {
		rec = outline.NewRecorder(name)
		c.SetTracer(rec)
	}

	prog, compileErr := c.Compile(path, []rune(src))
	res.errors, res.warnings = diag.ErrorCount(), diag.WarningCount()
	if prog != nil {
		res.functions = len(prog.Funcs)
	}

	if store != nil {
		if err := store.Save(name, src, settings, prog, diag.Diags); err != nil {
			return res, err
		}
	}
	if compileErr != nil {
		return res, compileErr
	}
	if rec != nil {
		rec.Print(os.Stdout)
	}

	if opt.entry != "" {
		return res, run(ctx, prog, cfg, opt.entry, opt.args)
	}

	buf, err := backend.Generate(prog, cfg)
	if err != nil {
		return res, fmt.Errorf("code generation failed: %w", err)
	}
	return res, writeOutput(opt.out, buf.String())
}

// reuseUnit replays the stored diagnostics of an unchanged unit and writes
// its stored listing. It reports false when the unit has to be recompiled.
func reuseUnit(store *bundle.Bundle, name string, opt options, res *unitResult) (bool, error) {
	u, fns, err := store.Load(name)
	if err != nil || !u.Compiled {
		return false, nil
	}
	ds, err := store.Diagnostics(name)
	if err != nil {
		return false, err
	}
	// A compiled unit carries warnings only.
	for _, d := range ds {
		if opt.diags != nil {
			fmt.Fprintln(opt.diags, util.Diagnostic{
				Severity: util.SevWarning, File: d.File, Line: d.Line, Column: d.Column, Msg: d.Msg, Warning: d.Warning,
			})
		}
		res.warnings++
	}
	res.functions, res.reused = len(fns), true
	return true, writeOutput(opt.out, u.Listing)
}

func writeOutput(path, text string) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err := io.WriteString(w, text)
	return err
}

func run(ctx context.Context, prog *ir.Program, cfg *config.Config, entry string, rawArgs []string) error {
	args := make([]int64, len(rawArgs))
	for i, a := range rawArgs {
		v, err := strconv.ParseInt(a, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid --arg '%s'", a)
		}
		args[i] = v
	}

	res, runErr := vm.New(prog, cfg.MaxSteps).Run(ctx, entry, args...)
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if runErr != nil {
		return fmt.Errorf("run %s: %w", entry, runErr)
	}
	return nil
}
