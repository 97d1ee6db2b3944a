package querylang

import (
	"strings"
)

// TokenKind identifies the type of lexical token.
type TokenKind int

const (
	TokEOF    TokenKind = iota
	TokWord             // bareword or quoted string
	TokDate             // date("...") literal, Lit holds the inner text
	TokOr               // OR (case-insensitive)
	TokAnd              // AND (case-insensitive)
	TokNot              // NOT (case-insensitive)
	TokLParen           // (
	TokRParen           // )
	TokLBrace           // {
	TokRBrace           // }
	TokColon            // :
	TokLt               // <
	TokLte              // <=
	TokGt               // >
	TokGte              // >=
)

func (k TokenKind) String() string {
	switch k {
	case TokEOF:
		return "EOF"
	case TokWord:
		return "WORD"
	case TokDate:
		return "DATE"
	case TokOr:
		return "OR"
	case TokAnd:
		return "AND"
	case TokNot:
		return "NOT"
	case TokLParen:
		return "("
	case TokRParen:
		return ")"
	case TokLBrace:
		return "{"
	case TokRBrace:
		return "}"
	case TokColon:
		return ":"
	case TokLt:
		return "<"
	case TokLte:
		return "<="
	case TokGt:
		return ">"
	case TokGte:
		return ">="
	default:
		return "UNKNOWN"
	}
}

// Lexeme is a lexical token.
type Lexeme struct {
	Kind   TokenKind
	Lit    string
	Pos    int  // byte offset in input for error reporting
	Quoted bool // word came from a quoted string
}

// Lexer tokenizes a query string.
//
// Barewords keep backslash escapes of '*', '?', '.' and '\' so that
// wildcard and path handling downstream can tell literal characters from
// metacharacters. Escapes of other special characters are resolved here.
type Lexer struct {
	input string
	pos   int // current position in input
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Next returns the next token.
func (l *Lexer) Next() (Lexeme, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Lexeme{Kind: TokEOF, Pos: l.pos}, nil
	}

	startPos := l.pos
	ch := l.input[l.pos]

	switch ch {
	case '(':
		l.pos++
		return Lexeme{Kind: TokLParen, Lit: "(", Pos: startPos}, nil
	case ')':
		l.pos++
		return Lexeme{Kind: TokRParen, Lit: ")", Pos: startPos}, nil
	case '{':
		l.pos++
		return Lexeme{Kind: TokLBrace, Lit: "{", Pos: startPos}, nil
	case '}':
		l.pos++
		return Lexeme{Kind: TokRBrace, Lit: "}", Pos: startPos}, nil
	case ':':
		l.pos++
		return Lexeme{Kind: TokColon, Lit: ":", Pos: startPos}, nil
	case '<', '>':
		l.pos++
		kind := TokLt
		if ch == '>' {
			kind = TokGt
		}
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			l.pos++
			kind++
		}
		return Lexeme{Kind: kind, Lit: l.input[startPos:l.pos], Pos: startPos}, nil
	case '"':
		s, err := l.scanQuotedString()
		if err != nil {
			return Lexeme{}, err
		}
		return Lexeme{Kind: TokWord, Lit: s, Pos: startPos, Quoted: true}, nil
	}

	return l.scanBareword()
}

// skipWhitespace advances past whitespace characters.
func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			l.pos++
		} else {
			break
		}
	}
}

// scanQuotedString scans a double-quoted string. Escaped quotes, newlines
// and tabs are resolved; wildcard escapes are kept.
func (l *Lexer) scanQuotedString() (string, error) {
	startPos := l.pos
	l.pos++ // skip opening quote

	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]

		if ch == '"' {
			l.pos++ // skip closing quote
			return sb.String(), nil
		}

		if ch == '\\' {
			l.pos++
			if l.pos >= len(l.input) {
				return "", newParseError(l.pos-1, ErrUnterminatedString, "unterminated string: escape at end of input")
			}

			escaped := l.input[l.pos]
			switch escaped {
			case '"':
				sb.WriteByte('"')
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '*', '?', '.':
				sb.WriteByte('\\')
				sb.WriteByte(escaped)
			default:
				return "", newParseError(l.pos-1, ErrInvalidEscape, "invalid escape sequence: \\%c", escaped)
			}
			l.pos++
			continue
		}

		sb.WriteByte(ch)
		l.pos++
	}

	return "", newParseError(startPos, ErrUnterminatedString, "unterminated string starting at position %d", startPos)
}

// scanBareword scans a bareword token, which may be a keyword or the start
// of a date("...") literal.
func (l *Lexer) scanBareword() (Lexeme, error) {
	startPos := l.pos

	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			next := l.input[l.pos+1]
			switch next {
			case '\\', '*', '?', '.':
				sb.WriteByte('\\')
			}
			sb.WriteByte(next)
			l.pos += 2
			continue
		}
		if !isBarewordChar(ch) {
			break
		}
		sb.WriteByte(ch)
		l.pos++
	}

	if l.pos == startPos {
		return Lexeme{}, newParseError(startPos, ErrUnexpectedToken, "unexpected character %q", l.input[startPos])
	}

	lit := sb.String()
	if strings.EqualFold(lit, "date") && l.pos < len(l.input) && l.input[l.pos] == '(' {
		return l.scanDate(startPos)
	}

	return Lexeme{Kind: classifyWord(lit), Lit: lit, Pos: startPos}, nil
}

// scanDate scans the ("...") part of a date literal.
func (l *Lexer) scanDate(startPos int) (Lexeme, error) {
	l.pos++ // skip '('
	l.skipWhitespace()
	if l.pos >= len(l.input) || l.input[l.pos] != '"' {
		return Lexeme{}, newParseError(l.pos, ErrInvalidDate, "expected quoted string in date literal")
	}
	s, err := l.scanQuotedString()
	if err != nil {
		return Lexeme{}, err
	}
	l.skipWhitespace()
	if l.pos >= len(l.input) || l.input[l.pos] != ')' {
		return Lexeme{}, newParseError(l.pos, ErrInvalidDate, "expected ')' after date literal")
	}
	l.pos++
	return Lexeme{Kind: TokDate, Lit: s, Pos: startPos}, nil
}

// isBarewordChar returns true if ch can be part of a bareword.
func isBarewordChar(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\r':
		return false
	case '(', ')', '{', '}', ':', '<', '>', '"':
		return false
	default:
		return true
	}
}

// classifyWord checks if a word is a keyword (case-insensitive).
func classifyWord(word string) TokenKind {
	switch strings.ToUpper(word) {
	case "OR":
		return TokOr
	case "AND":
		return TokAnd
	case "NOT":
		return TokNot
	default:
		return TokWord
	}
}

