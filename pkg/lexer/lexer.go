package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/xplshn/stmtc/pkg/config"
	"github.com/xplshn/stmtc/pkg/token"
	"github.com/xplshn/stmtc/pkg/util"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	cfg       *config.Config
	diag      *util.Reporter
}

func NewLexer(source []rune, fileIndex int, cfg *config.Config, diag *util.Reporter) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1, cfg: cfg, diag: diag,
	}
}

// Tokenize lexes the whole input. The last token is always EOF.
func (l *Lexer) Tokenize() []token.Token {
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) Next() token.Token {
	for {
		l.skipWhitespaceAndComments()
		startPos, startCol, startLine := l.pos, l.column, l.line

		if l.isAtEnd() {
			return l.makeToken(token.EOF, "", startPos, startCol, startLine)
		}

		if l.peek() == '/' && l.peekNext() == '/' && l.cfg.IsFeatureEnabled(config.FeatCComments) {
			l.lineComment()
			continue
		}

		ch := l.peek()
		if ch == '#' && l.atLineStart(startPos) {
			if tok, ok := l.directive(startPos, startCol, startLine); ok {
				return tok
			}
			continue
		}
		if unicode.IsLetter(ch) || ch == '_' {
			l.advance()
			return l.identifierOrKeyword(startPos, startCol, startLine)
		}
		if unicode.IsDigit(ch) {
			return l.numberLiteral(startPos, startCol, startLine)
		}

		l.advance()
		switch ch {
		case '(': return l.makeToken(token.LParen, "", startPos, startCol, startLine)
		case ')': return l.makeToken(token.RParen, "", startPos, startCol, startLine)
		case '{': return l.makeToken(token.LBrace, "", startPos, startCol, startLine)
		case '}': return l.makeToken(token.RBrace, "", startPos, startCol, startLine)
		case '[': return l.makeToken(token.LBracket, "", startPos, startCol, startLine)
		case ']': return l.makeToken(token.RBracket, "", startPos, startCol, startLine)
		case ';': return l.makeToken(token.Semi, "", startPos, startCol, startLine)
		case ',': return l.makeToken(token.Comma, "", startPos, startCol, startLine)
		case '?': return l.makeToken(token.Question, "", startPos, startCol, startLine)
		case ':': return l.makeToken(token.Colon, "", startPos, startCol, startLine)
		case '~': return l.makeToken(token.Complement, "", startPos, startCol, startLine)
		case '!': return l.matchThen('=', token.Neq, token.Not, startPos, startCol, startLine)
		case '^': return l.matchThen('=', token.XorEq, token.Xor, startPos, startCol, startLine)
		case '%': return l.matchThen('=', token.RemEq, token.Rem, startPos, startCol, startLine)
		case '*': return l.matchThen('=', token.StarEq, token.Star, startPos, startCol, startLine)
		case '/': return l.matchThen('=', token.SlashEq, token.Slash, startPos, startCol, startLine)
		case '=': return l.matchThen('=', token.EqEq, token.Eq, startPos, startCol, startLine)
		case '+':
			return l.doubled('+', token.Inc, token.PlusEq, token.Plus, startPos, startCol, startLine)
		case '-':
			return l.doubled('-', token.Dec, token.MinusEq, token.Minus, startPos, startCol, startLine)
		case '&':
			return l.doubled('&', token.AndAnd, token.AndEq, token.And, startPos, startCol, startLine)
		case '|':
			return l.doubled('|', token.OrOr, token.OrEq, token.Or, startPos, startCol, startLine)
		case '<':
			return l.shiftOrCompare('<', token.ShlEq, token.Shl, token.Lte, token.Lt, startPos, startCol, startLine)
		case '>':
			return l.shiftOrCompare('>', token.ShrEq, token.Shr, token.Gte, token.Gt, startPos, startCol, startLine)
		case '\'':
			return l.charLiteral(startPos, startCol, startLine)
		}

		l.diag.Error(l.makeToken(token.EOF, "", startPos, startCol, startLine), "Unexpected character: '%c'", ch)
	}
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) atLineStart(pos int) bool {
	for i := pos - 1; i >= 0; i-- {
		switch l.source[i] {
		case '\n':
			return true
		case ' ', '\t', '\r':
		default:
			return false
		}
	}
	return true
}

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			l.advance()
		case '/':
			if l.peekNext() == '*' {
				l.blockComment()
			} else {
				return
			}
		default:
			return
		}
	}
}

func (l *Lexer) blockComment() {
	startTok := l.makeToken(token.EOF, "", l.pos, l.column, l.line)
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	l.diag.Error(startTok, "Unterminated block comment")
}

func (l *Lexer) lineComment() {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
}

// directive consumes a '#' line. Only #pragma survives as a token, the rest
// of the preprocessor is not part of this front end.
func (l *Lexer) directive(startPos, startCol, startLine int) (token.Token, bool) {
	l.advance()
	bodyStart := l.pos
	l.lineComment()
	body := strings.TrimSpace(string(l.source[bodyStart:l.pos]))
	tok := l.makeToken(token.Pragma, "", startPos, startCol, startLine)

	name, rest := body, ""
	if i := strings.IndexAny(body, " \t("); i >= 0 {
		name, rest = body[:i], body[i:]
	}
	if name != "pragma" {
		l.diag.Error(tok, "Preprocessor directive '#%s' is not supported", name)
		return tok, false
	}
	if !l.cfg.IsFeatureEnabled(config.FeatPragmas) {
		return tok, false
	}
	tok.Value = strings.TrimSpace(rest)
	return tok, true
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Ident, value, startPos, startCol, startLine)

	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		tok.Type = tokType
		tok.Value = ""
	}
	return tok
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X') {
		l.advance()
		l.advance()
		for isHexDigit(l.peek()) {
			l.advance()
		}
	} else {
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}
	digitsEnd := l.pos
	for l.peek() == 'u' || l.peek() == 'U' || l.peek() == 'l' || l.peek() == 'L' {
		l.advance()
	}

	valueStr := string(l.source[startPos:digitsEnd])
	tok := l.makeToken(token.Number, "", startPos, startCol, startLine)
	val, err := strconv.ParseUint(valueStr, 0, 64)
	if err != nil {
		if e, ok := err.(*strconv.NumError); ok && e.Err == strconv.ErrRange {
			l.diag.Warn(config.WarnOverflow, tok, "Integer constant overflow: %s", valueStr)
			tok.Value = "0"
			return tok
		}
		l.diag.Error(tok, "Invalid number literal: %s", valueStr)
		tok.Value = "0"
		return tok
	}
	if val > 0xFFFF {
		l.diag.Warn(config.WarnOverflow, tok, "Integer constant %s does not fit in 16 bits", valueStr)
	}
	tok.Value = strconv.FormatUint(val, 10)
	return tok
}

func (l *Lexer) charLiteral(startPos, startCol, startLine int) token.Token {
	var val int64
	count := 0
	for l.peek() != '\'' && l.peek() != '\n' && !l.isAtEnd() {
		c := l.advance()
		if c == '\\' {
			val = l.decodeEscape(startPos, startCol, startLine)
		} else {
			val = int64(c) & 0xFF
		}
		count++
	}

	tok := l.makeToken(token.CharLit, "", startPos, startCol, startLine)
	if !l.match('\'') {
		l.diag.Error(tok, "Unterminated character constant")
	}
	if count == 0 {
		l.diag.Error(tok, "Empty character constant")
	} else if count > 1 {
		l.diag.Warn(config.WarnExtra, tok, "Multi-character constant, only the last character is used")
	}
	tok.Len = l.pos - startPos
	tok.Value = strconv.FormatInt(val, 10)
	return tok
}

func (l *Lexer) decodeEscape(startPos, startCol, startLine int) int64 {
	if l.isAtEnd() {
		l.diag.Error(l.makeToken(token.EOF, "", l.pos, l.column, l.line), "Unterminated escape sequence")
		return 0
	}
	c := l.advance()

	if c == 'x' {
		var val int64
		digits := 0
		for isHexDigit(l.peek()) {
			val = val*16 + hexValue(l.advance())
			digits++
		}
		if digits == 0 {
			l.diag.Error(l.makeToken(token.CharLit, "", startPos, startCol, startLine), "\\x used with no following hex digits")
		}
		return val & 0xFF
	}

	if c >= '0' && c <= '7' {
		val := int64(c - '0')
		for i := 0; i < 2 && l.peek() >= '0' && l.peek() <= '7'; i++ {
			val = val*8 + int64(l.advance()-'0')
		}
		return val & 0xFF
	}

	escapes := map[rune]int64{
		'n': '\n', 't': '\t', 'b': '\b', 'r': '\r', 'a': '\a', 'f': '\f', 'v': '\v',
		'\\': '\\', '\'': '\'', '"': '"', '?': '?',
	}
	if val, ok := escapes[c]; ok {
		return val
	}
	l.diag.Warn(config.WarnExtra, l.makeToken(token.CharLit, "", startPos, startCol, startLine), "Unrecognized escape sequence '\\%c'", c)
	return int64(c)
}

func isHexDigit(c rune) bool {
	return unicode.IsDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexValue(c rune) int64 {
	switch {
	case c >= '0' && c <= '9': return int64(c - '0')
	case c >= 'a' && c <= 'f': return int64(c - 'a' + 10)
	default: return int64(c - 'A' + 10)
	}
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}

// doubled lexes the x, xx and x= family (+, ++, +=).
func (l *Lexer) doubled(ch rune, twice, assign, single token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(ch) {
		return l.makeToken(twice, "", sPos, sCol, sLine)
	}
	return l.matchThen('=', assign, single, sPos, sCol, sLine)
}

func (l *Lexer) shiftOrCompare(ch rune, shiftEq, shift, cmpEq, cmp token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(ch) {
		return l.matchThen('=', shiftEq, shift, sPos, sCol, sLine)
	}
	return l.matchThen('=', cmpEq, cmp, sPos, sCol, sLine)
}
