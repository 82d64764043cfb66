package config

import (
	"fmt"
	"maps"
	"os"
	"sort"
	"strings"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
	"modernc.org/libqbe"
)

type Feature int

const (
	FeatCComments Feature = iota
	FeatPragmas
	FeatGoto
	FeatSignedChars
	FeatCount
)

type Warning int

const (
	WarnNoCaseLabels Warning = iota
	WarnUnknownPragma
	WarnUnusedLabel
	WarnUnreachableCode
	WarnImplicitDecl
	WarnOverflow
	WarnPedantic
	WarnExtra
	WarnCount
)

// DefaultCodeSize is the neutral size/speed preference. Values of
// CompactCodeSize and above favor smaller code.
const (
	DefaultCodeSize = 100
	CompactCodeSize = 200
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features       map[Feature]Info
	Warnings       map[Warning]Info
	FeatureMap     map[string]Feature
	WarningMap     map[string]Warning
	CodeSizeFactor int
	codeSizeStack  []int
	MaxSteps       int
	TargetArch     string
	QbeTarget      string
	WordSize       int
	WordType       string
	StackAlignment int
}

func NewConfig() *Config {
	cfg := &Config{
		Features:       make(map[Feature]Info),
		Warnings:       make(map[Warning]Info),
		FeatureMap:     make(map[string]Feature),
		WarningMap:     make(map[string]Warning),
		CodeSizeFactor: DefaultCodeSize,
		MaxSteps:       1_000_000,
	}

	features := map[Feature]Info{
		FeatCComments:   {"c-comments", true, "Recognize C++-style '//' line comments."},
		FeatPragmas:     {"pragmas", true, "Honor `#pragma` lines instead of ignoring them."},
		FeatGoto:        {"goto", true, "Allow `goto` and statement labels."},
		FeatSignedChars: {"signed-chars", false, "Treat plain `char` as `signed char`."},
	}

	warnings := map[Warning]Info{
		WarnNoCaseLabels:    {"no-case-labels", true, "Warn about a switch without any case or default label."},
		WarnUnknownPragma:   {"unknown-pragma", true, "Warn about unrecognized `#pragma` lines."},
		WarnUnusedLabel:     {"unused-label", true, "Warn about labels that no goto refers to."},
		WarnUnreachableCode: {"unreachable-code", false, "Warn about statements following a definite exit."},
		WarnImplicitDecl:    {"implicit-decl", true, "Warn about calls to undeclared functions."},
		WarnOverflow:        {"overflow", true, "Warn when an integer constant is out of range for its type."},
		WarnPedantic:        {"pedantic", false, "Issue all warnings demanded by the strict standard."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// Clone returns a copy of c that shares no state with it. Each translation
// unit compiles with its own copy.
func (c *Config) Clone() *Config {
	n := *c
	n.Features = maps.Clone(c.Features)
	n.Warnings = maps.Clone(c.Warnings)
	n.FeatureMap = maps.Clone(c.FeatureMap)
	n.WarningMap = maps.Clone(c.WarningMap)
	n.codeSizeStack = nil
	return &n
}

// Signature summarizes the settings that change generated code or
// diagnostics, e.g. "codesize=100 F:c-comments,goto W:extra".
func (c *Config) Signature() string {
	var feats, warns []string
	for _, info := range c.Features {
		if info.Enabled {
			feats = append(feats, info.Name)
		}
	}
	for _, info := range c.Warnings {
		if info.Enabled {
			warns = append(warns, info.Name)
		}
	}
	sort.Strings(feats)
	sort.Strings(warns)
	return fmt.Sprintf("codesize=%d F:%s W:%s", c.CodeSizeFactor, strings.Join(feats, ","), strings.Join(warns, ","))
}

// SetTarget configures the QBE target used by the native backend.
func (c *Config) SetTarget(goos, goarch, qbeTarget string) {
	if qbeTarget == "" {
		qbeTarget = libqbe.DefaultTarget(goos, goarch)
	}
	c.QbeTarget, c.TargetArch = qbeTarget, goarch

	switch c.QbeTarget {
	case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
		c.WordSize, c.WordType, c.StackAlignment = 8, "l", 16
	case "arm", "rv32":
		c.WordSize, c.WordType, c.StackAlignment = 4, "w", 8
	default:
		fmt.Fprintf(os.Stderr, "stmtc: warning: unrecognized or unsupported QBE target '%s', defaulting to 64-bit properties\n", c.QbeTarget)
		c.WordSize, c.WordType, c.StackAlignment = 8, "l", 16
	}
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// PushCodeSize saves the current factor and installs n.
func (c *Config) PushCodeSize(n int) {
	c.codeSizeStack = append(c.codeSizeStack, c.CodeSizeFactor)
	c.CodeSizeFactor = n
}

// PopCodeSize restores the factor saved by the last PushCodeSize.
func (c *Config) PopCodeSize() bool {
	if len(c.codeSizeStack) == 0 {
		return false
	}
	c.CodeSizeFactor = c.codeSizeStack[len(c.codeSizeStack)-1]
	c.codeSizeStack = c.codeSizeStack[:len(c.codeSizeStack)-1]
	return true
}

// FavorsSize reports whether the size/speed preference asks for compact code.
func (c *Config) FavorsSize() bool { return c.CodeSizeFactor >= CompactCodeSize }

// ApplyFlag handles a single -W/-F style switch. It reports whether the name was known.
func (c *Config) ApplyFlag(flag string) bool {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
	default:
		name = trimmed
		isWarning = true
	}
	if isNo {
		name = strings.TrimPrefix(name, "no-")
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			if i != WarnPedantic {
				c.SetWarning(i, enable)
			}
		}
		return true
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
			return true
		}
		return false
	}
	if f, ok := c.FeatureMap[name]; ok {
		c.SetFeature(f, enable)
		return true
	}
	return false
}

func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) {
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" {
			c.ApplyFlag("-" + name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" {
			c.ApplyFlag("-" + name)
		}
	})
}

// File is the on-disk YAML form of a configuration.
type File struct {
	CodeSize    *int            `yaml:"codesize,omitempty"`
	SignedChars *bool           `yaml:"signed-chars,omitempty"`
	Target      string          `yaml:"target,omitempty"`
	MaxSteps    int             `yaml:"max-steps,omitempty"`
	Warnings    map[string]bool `yaml:"warnings,omitempty"`
	Features    map[string]bool `yaml:"features,omitempty"`
}

// LoadFile merges the YAML configuration at path into c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	return c.LoadYAML(data)
}

func (c *Config) LoadYAML(data []byte) error {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if f.CodeSize != nil {
		c.CodeSizeFactor = *f.CodeSize
	}
	if f.SignedChars != nil {
		c.SetFeature(FeatSignedChars, *f.SignedChars)
	}
	if f.Target != "" {
		c.QbeTarget = f.Target
	}
	if f.MaxSteps > 0 {
		c.MaxSteps = f.MaxSteps
	}
	for name, on := range f.Warnings {
		w, ok := c.WarningMap[name]
		if !ok {
			return fmt.Errorf("config: unknown warning '%s'", name)
		}
		c.SetWarning(w, on)
	}
	for name, on := range f.Features {
		ft, ok := c.FeatureMap[name]
		if !ok {
			return fmt.Errorf("config: unknown feature '%s'", name)
		}
		c.SetFeature(ft, on)
	}
	return nil
}

// ApplyEnv lets STMTC_* environment variables override the loaded settings.
func (c *Config) ApplyEnv() {
	c.CodeSizeFactor = env.Int("STMTC_CODESIZE", c.CodeSizeFactor)
	c.MaxSteps = env.Int("STMTC_MAX_STEPS", c.MaxSteps)
	c.QbeTarget = env.Str("STMTC_TARGET", c.QbeTarget)
	if env.Has("STMTC_SIGNED_CHARS") {
		c.SetFeature(FeatSignedChars, env.Bool("STMTC_SIGNED_CHARS"))
	}
}
