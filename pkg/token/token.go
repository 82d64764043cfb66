package token

type Type int

const (
	EOF Type = iota
	Pragma
	Ident
	Number
	CharLit
	If
	Else
	While
	Do
	For
	Return
	Goto
	Switch
	Case
	Default
	Break
	Continue
	Void
	Char
	Short
	Int
	Signed
	Unsigned
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma
	Colon
	Question
	Eq
	PlusEq
	MinusEq
	StarEq
	SlashEq
	RemEq
	AndEq
	OrEq
	XorEq
	ShlEq
	ShrEq
	Plus
	Minus
	Star
	Slash
	Rem
	And
	Or
	Xor
	Shl
	Shr
	EqEq
	Neq
	Lt
	Gt
	Gte
	Lte
	AndAnd
	OrOr
	Not
	Complement
	Inc
	Dec
)

var KeywordMap = map[string]Type{
	"if":       If,
	"else":     Else,
	"while":    While,
	"do":       Do,
	"for":      For,
	"return":   Return,
	"goto":     Goto,
	"switch":   Switch,
	"case":     Case,
	"default":  Default,
	"break":    Break,
	"continue": Continue,
	"void":     Void,
	"char":     Char,
	"short":    Short,
	"int":      Int,
	"signed":   Signed,
	"unsigned": Unsigned,
}

var punctStrings = map[Type]string{
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", LBracket: "[", RBracket: "]",
	Semi: ";", Comma: ",", Colon: ":", Question: "?", Eq: "=",
	PlusEq: "+=", MinusEq: "-=", StarEq: "*=", SlashEq: "/=", RemEq: "%=",
	AndEq: "&=", OrEq: "|=", XorEq: "^=", ShlEq: "<<=", ShrEq: ">>=",
	Plus: "+", Minus: "-", Star: "*", Slash: "/", Rem: "%", And: "&", Or: "|", Xor: "^",
	Shl: "<<", Shr: ">>", EqEq: "==", Neq: "!=", Lt: "<", Gt: ">", Gte: ">=", Lte: "<=",
	AndAnd: "&&", OrOr: "||", Not: "!", Complement: "~", Inc: "++", Dec: "--",
}

// Reverse mapping from Type to the keyword string
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range punctStrings {
		TypeStrings[typ] = str
	}
	TypeStrings[EOF] = "end of input"
	TypeStrings[Pragma] = "#pragma"
	TypeStrings[Ident] = "identifier"
	TypeStrings[Number] = "number"
	TypeStrings[CharLit] = "character constant"
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return "unknown token"
}

// IsTypeSpecifier reports whether t can start a declaration.
func (t Type) IsTypeSpecifier() bool {
	switch t {
	case Void, Char, Short, Int, Signed, Unsigned:
		return true
	}
	return false
}

// AssignOp maps a compound assignment to its binary operator.
func (t Type) AssignOp() (Type, bool) {
	switch t {
	case PlusEq:
		return Plus, true
	case MinusEq:
		return Minus, true
	case StarEq:
		return Star, true
	case SlashEq:
		return Slash, true
	case RemEq:
		return Rem, true
	case AndEq:
		return And, true
	case OrEq:
		return Or, true
	case XorEq:
		return Xor, true
	case ShlEq:
		return Shl, true
	case ShrEq:
		return Shr, true
	}
	return t, false
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}
