// Package cli is the small flag parser and help printer shared by the
// stmtc binaries.
package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xplshn/stmtc/pkg/config"
	"golang.org/x/term"
)

type Value interface {
	String() string
	Set(string) error
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }

type intValue struct{ p *int }

func (v *intValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer value '%s'", s)
	}
	*v.p = n
	return nil
}
func (v *intValue) String() string { return strconv.Itoa(*v.p) }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ", ") }

type Flag struct {
	Name         string
	Shorthand    string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
}

func (f *Flag) isBool() bool {
	_, ok := f.Value.(*boolValue)
	return ok
}

// Group is a family of -<prefix><name> / -<prefix>no-<name> switches such
// as the warning and feature toggles.
type Group struct {
	Title   string
	Prefix  string
	Kind    string
	Entries []config.Info
}

type FlagSet struct {
	name       string
	flags      map[string]*Flag
	shorthands map[string]*Flag
	prefixed   map[string]*[]string
	groups     []Group
	args       []string
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:       name,
		flags:      make(map[string]*Flag),
		shorthands: make(map[string]*Flag),
		prefixed:   make(map[string]*[]string),
	}
}

func (f *FlagSet) Args() []string            { return f.args }
func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, expectedType string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) Int(p *int, name, shorthand string, value int, usage, expectedType string) {
	*p = value
	f.Var(&intValue{p}, name, shorthand, usage, strconv.Itoa(value), expectedType)
}

func (f *FlagSet) List(p *[]string, name, shorthand string, usage, expectedType string) {
	f.Var(&listValue{p}, name, shorthand, usage, "", expectedType)
}

// Prefixed collects every -<prefix>xyz argument as "<prefix>xyz", in
// command line order.
func (f *FlagSet) Prefixed(p *[]string, prefix string, g Group) {
	f.prefixed[prefix] = p
	g.Prefix = prefix
	f.groups = append(f.groups, g)
}

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, expectedType string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
	f.flags[name] = flag
	if shorthand != "" {
		if _, ok := f.shorthands[shorthand]; ok {
			panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
		}
		f.shorthands[shorthand] = flag
	}
}

func (f *FlagSet) Parse(arguments []string) error {
	f.args = f.args[:0]
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		switch {
		case arg == "--":
			f.args = append(f.args, arguments[i+1:]...)
			return nil
		case len(arg) < 2 || arg[0] != '-':
			f.args = append(f.args, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		long := strings.HasPrefix(arg, "--")
		if !long {
			if p, ok := f.prefixed[arg[1:2]]; ok && len(arg) > 2 {
				*p = append(*p, arg[1:])
				continue
			}
		}

		flag := f.flags[name]
		if flag == nil && !long {
			flag = f.shorthands[arg[1:2]]
			if flag != nil && len(arg) > 2 && !flag.isBool() {
				value, hasValue = arg[2:], true
			}
		}
		if flag == nil {
			return fmt.Errorf("unknown flag: %s", arg)
		}

		switch {
		case hasValue:
		case flag.isBool():
			value = ""
		case i+1 < len(arguments):
			i++
			value = arguments[i]
		default:
			return fmt.Errorf("flag needs an argument: %s", arg)
		}
		if err := flag.Value.Set(value); err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
	}
	return nil
}

// ApplyGroups hands the collected -W/-F switches to cfg. "all" is applied
// before the individual switches so that -Wall -Wno-foo works in any order.
func ApplyGroups(cfg *config.Config, switches []string) []string {
	var unknown []string
	cfg.ProcessFlags(func(visit func(name string)) {
		for _, s := range switches {
			visit(s)
		}
	})
	for _, s := range switches {
		name := strings.TrimPrefix(s[1:], "no-")
		if name == "all" {
			continue
		}
		if _, ok := cfg.WarningMap[name]; s[0] == 'W' && !ok {
			unknown = append(unknown, "-"+s)
		}
		if _, ok := cfg.FeatureMap[name]; s[0] == 'F' && !ok {
			unknown = append(unknown, "-"+s)
		}
	}
	return unknown
}

// WarningGroup and FeatureGroup describe cfg's switches for the help page.
func WarningGroup(cfg *config.Config) Group {
	g := Group{Title: "Warning Flags", Kind: "warning"}
	for i := config.Warning(0); i < config.WarnCount; i++ {
		g.Entries = append(g.Entries, cfg.Warnings[i])
	}
	return g
}

func FeatureGroup(cfg *config.Config) Group {
	g := Group{Title: "Feature Flags", Kind: "feature"}
	for i := config.Feature(0); i < config.FeatCount; i++ {
		g.Entries = append(g.Entries, cfg.Features[i])
	}
	return g
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error
}

func NewApp(name string) *App {
	return &App{Name: name, FlagSet: NewFlagSet(name)}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", a.Name, err)
		a.usage(os.Stderr)
		return err
	}
	if help {
		a.help(os.Stdout)
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

func (a *App) sortedFlags() []*Flag {
	flags := make([]*Flag, 0, len(a.FlagSet.flags))
	for _, f := range a.FlagSet.flags {
		flags = append(flags, f)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })
	return flags
}

func flagString(f *Flag) string {
	var sb strings.Builder
	if f.Shorthand != "" {
		fmt.Fprintf(&sb, "-%s, ", f.Shorthand)
	}
	fmt.Fprintf(&sb, "--%s", f.Name)
	if !f.isBool() && f.ExpectedType != "" {
		fmt.Fprintf(&sb, " <%s>", f.ExpectedType)
	}
	return sb.String()
}

func (a *App) usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s %s\n", a.Name, a.Synopsis)
	fmt.Fprintf(w, "Run '%s --help' for all available options and flags.\n", a.Name)
}

func (a *App) help(w io.Writer) {
	width := terminalWidth()
	flags := a.sortedFlags()

	left := 0
	for _, f := range flags {
		left = max(left, len(flagString(f)))
	}
	for _, g := range a.FlagSet.groups {
		left = max(left, len(fmt.Sprintf("-%sno-<%s>", g.Prefix, g.Kind)))
		for _, e := range g.Entries {
			left = max(left, len(e.Name))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n    Copyright (c) %d: %s\n", time.Now().Year(), strings.Join(a.Authors, ", ")+" and contributors")
	if a.Repository != "" {
		fmt.Fprintf(&sb, "    For more details refer to %s\n", a.Repository)
	}
	fmt.Fprintf(&sb, "\n    Synopsis\n        %s %s\n", a.Name, a.Synopsis)
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n    Description\n        %s\n", a.Description)
	}

	sb.WriteString("\n    Options\n")
	for _, f := range flags {
		right := ""
		if !f.isBool() && f.DefValue != "" {
			right = "|" + f.DefValue + "|"
		}
		entry(&sb, width, left, flagString(f), f.Usage, right)
	}

	for _, g := range a.FlagSet.groups {
		fmt.Fprintf(&sb, "\n    %s\n", g.Title)
		entry(&sb, width, left, fmt.Sprintf("-%s<%s>", g.Prefix, g.Kind), "Enable a specific "+g.Kind, "")
		entry(&sb, width, left, fmt.Sprintf("-%sno-<%s>", g.Prefix, g.Kind), "Disable a specific "+g.Kind, "")
		entries := append([]config.Info(nil), g.Entries...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, e := range entries {
			mark := "|-|"
			if e.Enabled {
				mark = "|x|"
			}
			entry(&sb, width, left, e.Name, e.Description, mark)
		}
	}
	fmt.Fprint(w, sb.String())
}

func entry(sb *strings.Builder, width, left int, flag, usage, right string) {
	const indent = "        "
	room := max(width-len(indent)-left-len(right)-3, 10)
	lines := wrapText(usage, room)
	if len(lines) == 0 {
		lines = []string{""}
	}
	if right != "" {
		fmt.Fprintf(sb, "%s%-*s %-*s  %s\n", indent, left, flag, room, lines[0], right)
	} else {
		fmt.Fprintf(sb, "%s%-*s %s\n", indent, left, flag, lines[0])
	}
	for _, l := range lines[1:] {
		fmt.Fprintf(sb, "%s%s %s\n", indent, strings.Repeat(" ", left), l)
	}
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

func wrapText(text string, maxWidth int) []string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+len(word)+1 > maxWidth {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
