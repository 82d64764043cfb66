package stmt

import (
	"strconv"
	"strings"

	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/token"
)

// ApplyPragma executes a #pragma line. tok.Value holds everything after
// the word pragma, e.g. "codesize(push, 200)".
func ApplyPragma(tok token.Token, cfg *config.Config, diag Reporter) {
	text := strings.TrimSpace(tok.Value)
	name, rest, _ := strings.Cut(text, "(")
	name = strings.TrimSpace(name)

	var args []string
	if rest != "" {
		inner, ok := strings.CutSuffix(strings.TrimSpace(rest), ")")
		if !ok {
			diag.Error(tok, "')' expected in #pragma %s", name)
		}
		for _, a := range strings.Split(inner, ",") {
			if a = strings.TrimSpace(a); a != "" {
				args = append(args, a)
			}
		}
	}

	switch name {
	case "codesize":
		codeSizePragma(tok, args, cfg, diag)
	case "warn":
		warnPragma(tok, args, cfg, diag)
	default:
		diag.Warn(config.WarnUnknownPragma, tok, "Unknown #pragma '%s'", name)
	}
}

func codeSizePragma(tok token.Token, args []string, cfg *config.Config, diag Reporter) {
	parse := func(s string) (int, bool) {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			diag.Error(tok, "Invalid code size factor '%s'", s)
			return 0, false
		}
		return n, true
	}

	switch {
	case len(args) == 1 && args[0] == "pop":
		if !cfg.PopCodeSize() {
			diag.Error(tok, "#pragma codesize stack is empty")
		}
	case len(args) == 2 && args[0] == "push":
		if n, ok := parse(args[1]); ok {
			cfg.PushCodeSize(n)
		}
	case len(args) == 1:
		if n, ok := parse(args[0]); ok {
			cfg.CodeSizeFactor = n
		}
	default:
		diag.Error(tok, "Usage: #pragma codesize([push,] N) or codesize(pop)")
	}
}

func warnPragma(tok token.Token, args []string, cfg *config.Config, diag Reporter) {
	if len(args) != 2 {
		diag.Error(tok, "Usage: #pragma warn(name, on|off)")
		return
	}
	wt, ok := cfg.WarningMap[args[0]]
	if !ok {
		diag.Warn(config.WarnUnknownPragma, tok, "Unknown warning '%s' in #pragma warn", args[0])
		return
	}
	switch args[1] {
	case "on", "1":
		cfg.SetWarning(wt, true)
	case "off", "0":
		cfg.SetWarning(wt, false)
	default:
		diag.Error(tok, "Expected 'on' or 'off' in #pragma warn")
	}
}
