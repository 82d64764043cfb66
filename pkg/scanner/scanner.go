// Package scanner exposes a lexed token slice as a stream with one token of
// lookahead, which is all the statement compiler ever needs.
package scanner

import "github.com/xplshn/stmtc/pkg/token"

type Scanner struct {
	tokens []token.Token
	pos    int
}

func New(tokens []token.Token) *Scanner {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != token.EOF {
		tokens = append(tokens, token.Token{Type: token.EOF})
	}
	return &Scanner{tokens: tokens}
}

func (s *Scanner) Cur() token.Token { return s.tokens[s.pos] }

func (s *Scanner) Peek() token.Token {
	if s.pos+1 >= len(s.tokens) {
		return s.tokens[len(s.tokens)-1]
	}
	return s.tokens[s.pos+1]
}

// Prev is the token consumed by the last Advance.
func (s *Scanner) Prev() token.Token {
	if s.pos == 0 {
		return s.tokens[0]
	}
	return s.tokens[s.pos-1]
}

// Advance moves to the next token. EOF is sticky.
func (s *Scanner) Advance() {
	if s.pos < len(s.tokens)-1 {
		s.pos++
	}
}

func (s *Scanner) Check(t token.Type) bool { return s.Cur().Type == t }

func (s *Scanner) Match(t token.Type) bool {
	if s.Check(t) {
		s.Advance()
		return true
	}
	return false
}

func (s *Scanner) AtEnd() bool { return s.Check(token.EOF) }
