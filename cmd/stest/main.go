// stest compiles every test program, runs its entry function on the
// built-in machine and compares what happened with the stored golden
// result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/stmtc/pkg/compiler"
	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/util"
	"github.com/xplshn/stmtc/pkg/vm"
)

// Golden is everything a test program is judged on.
type Golden struct {
	Diagnostics []string         `json:"diagnostics,omitempty"`
	Compiled    bool             `json:"compiled"`
	Return      int64            `json:"return"`
	Output      []int64          `json:"output"`
	Globals     map[string]int64 `json:"globals,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type FileResult struct {
	File    string  `json:"file"`
	Status  string  `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string  `json:"message,omitempty"`
	Diff    string  `json:"diff,omitempty"`
	Got     *Golden `json:"got,omitempty"`
}

var (
	testFiles  = flag.String("test-files", "tests/*.c", "Glob pattern(s) for files to test (space-separated).")
	generate   = flag.Bool("generate", false, "Write the golden files instead of comparing against them.")
	entry      = flag.String("entry", "main", "Function to run in every test program.")
	timeout    = flag.Duration("timeout", 5*time.Second, "Timeout for each test program.")
	jobs       = flag.Int("j", 4, "Number of parallel test jobs.")
	maxSteps   = flag.Int("max-steps", 1_000_000, "Instruction limit for each run.")
	configFile = flag.String("config", "", "YAML configuration applied to every compilation.")
	outputJSON = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	verbose    = flag.Bool("v", false, "Enable verbose logging.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	tasks := make(chan string, len(files))
	results := make(chan *FileResult, len(files))
	var wg sync.WaitGroup
	for i := 0; i < max(*jobs, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				results <- testFile(file)
			}
		}()
	}

	// Identical programs are only run once.
	seen := make(map[uint64]string)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			results <- &FileResult{File: file, Status: "ERROR", Message: err.Error()}
			continue
		}
		h := xxhash.Sum64(data)
		if orig, ok := seen[h]; ok {
			results <- &FileResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", orig)}
			continue
		}
		seen[h] = file
		tasks <- file
	}
	close(tasks)
	wg.Wait()
	close(results)

	var all []*FileResult
	for r := range results {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].File < all[j].File })

	failed := printSummary(all)
	writeJSONReport(all)
	if failed {
		os.Exit(1)
	}
}

func goldenPath(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file)) + ".golden.json"
}

func newConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		if err := cfg.LoadFile(*configFile); err != nil {
			return nil, err
		}
	}
	cfg.MaxSteps = *maxSteps
	return cfg, nil
}

// execute compiles and runs one program. Compile diagnostics are part of the
// result so that programs which must not compile can be tested too.
func execute(file string) (*Golden, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	cfg, err := newConfig()
	if err != nil {
		return nil, err
	}
	diag := util.NewReporter(nil, cfg)
	prog, compileErr := compiler.New(cfg, diag).Compile(filepath.Base(file), []rune(string(src)))

	g := &Golden{Compiled: compileErr == nil, Output: []int64{}}
	for _, d := range diag.Diags {
		g.Diagnostics = append(g.Diagnostics, d.String())
	}
	if compileErr != nil {
		return g, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	res, runErr := vm.New(prog, cfg.MaxSteps).Run(ctx, *entry)
	g.Return = res.Return
	if len(res.Globals) > 0 {
		g.Globals = res.Globals
	}
	g.Output = append(g.Output, res.Output...)
	if runErr != nil {
		g.Error = runErr.Error()
	}
	return g, nil
}

func testFile(file string) *FileResult {
	got, err := execute(file)
	if err != nil {
		return &FileResult{File: file, Status: "ERROR", Message: err.Error()}
	}

	if *generate {
		data, err := json.MarshalIndent(got, "", "  ")
		if err != nil {
			return &FileResult{File: file, Status: "ERROR", Message: err.Error()}
		}
		if err := os.WriteFile(goldenPath(file), append(data, '\n'), 0644); err != nil {
			return &FileResult{File: file, Status: "ERROR", Message: err.Error()}
		}
		return &FileResult{File: file, Status: "PASS", Message: "Golden file written", Got: got}
	}

	data, err := os.ReadFile(goldenPath(file))
	if os.IsNotExist(err) {
		return &FileResult{File: file, Status: "SKIP", Message: "No golden file", Got: got}
	}
	if err != nil {
		return &FileResult{File: file, Status: "ERROR", Message: err.Error()}
	}
	var want Golden
	if err := json.Unmarshal(data, &want); err != nil {
		return &FileResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file: %v", err)}
	}
	if want.Output == nil {
		want.Output = []int64{}
	}
	if diff := cmp.Diff(&want, got); diff != "" {
		return &FileResult{File: file, Status: "FAIL", Message: "Result differs from golden file", Diff: diff, Got: got}
	}
	return &FileResult{File: file, Status: "PASS", Message: "Matches golden file", Got: got}
}

func printSummary(results []*FileResult) (failed bool) {
	var passed, failures, skipped, errored int
	for _, r := range results {
		switch r.Status {
		case "PASS":
			passed++
			if *verbose {
				fmt.Printf("[%sPASS%s] %s%s%s %s\n", cGreen, cNone, cCyan, r.File, cNone, r.Message)
			}
		case "FAIL":
			failures++
			fmt.Printf("[%sFAIL%s] %s%s%s %s\n", cRed, cNone, cCyan, r.File, cNone, r.Message)
			fmt.Println(formatDiff(r.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("[%sSKIP%s] %s%s%s %s\n", cYellow, cNone, cCyan, r.File, cNone, r.Message)
		default:
			errored++
			fmt.Printf("[%sERROR%s] %s%s%s %s\n", cRed, cNone, cCyan, r.File, cNone, r.Message)
		}
	}
	fmt.Printf("\n%d passed, %d failed, %d skipped, %d errors\n", passed, failures, skipped, errored)
	return failures > 0 || errored > 0
}

func formatDiff(diff string) string {
	var b strings.Builder
	b.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-"):
			b.WriteString(cRed)
		case strings.HasPrefix(trimmed, "+"):
			b.WriteString(cGreen)
		}
		b.WriteString("    " + line + cNone + "\n")
	}
	return b.String()
}

func writeJSONReport(results []*FileResult) {
	byFile := make(map[string]*FileResult, len(results))
	for _, r := range results {
		byFile[r.File] = r
	}
	data, err := json.MarshalIndent(byFile, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return
	}
	if err := os.WriteFile(*outputJSON, data, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, *outputJSON, err)
		return
	}
	fmt.Printf("Full test report saved to %s\n", *outputJSON)
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				files = append(files, m)
				seen[m] = true
			}
		}
	}
	return files, nil
}
