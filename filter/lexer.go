package filter

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokKeyword
	tokOp
	tokLParen
	tokRParen
	tokComma
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokKeyword:
		return "keyword"
	case tokOp:
		return "operator"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	default:
		return "token"
	}
}

type token struct {
	kind tokenKind
	text string // keywords are upper-cased
	pos  int
}

var keywords = map[string]struct{}{
	"AND": {}, "OR": {}, "NOT": {}, "IN": {}, "IS": {}, "NULL": {},
	"LIKE": {}, "BETWEEN": {}, "TRUE": {}, "FALSE": {},
}

// SyntaxError reports an invalid filter expression.
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("filter: syntax error at position %d: %s", e.Pos, e.Msg)
}

func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: i})
			i++
		case r == '\'':
			s, n, err := lexQuoted(input, i, '\'')
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: s, pos: i})
			i += n
		case r == '"' || r == '`':
			s, n, err := lexQuoted(input, i, byte(r))
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokIdent, text: s, pos: i})
			i += n
		case r == '=' || r == '<' || r == '>' || r == '!':
			raw := string(r)
			if i+1 < len(input) {
				switch two := input[i : i+2]; two {
				case "<=", ">=", "!=", "<>":
					raw = two
				}
			}
			if raw == "!" {
				return nil, &SyntaxError{Input: input, Pos: i, Msg: "unexpected '!'"}
			}
			op := raw
			if op == "<>" {
				op = "!="
			}
			tokens = append(tokens, token{kind: tokOp, text: op, pos: i})
			i += len(raw)
		case r == '-' || r == '.' || unicode.IsDigit(r):
			n := lexNumber(input[i:])
			if n == 0 {
				return nil, &SyntaxError{Input: input, Pos: i, Msg: fmt.Sprintf("unexpected %q", r)}
			}
			tokens = append(tokens, token{kind: tokNumber, text: input[i : i+n], pos: i})
			i += n
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(input) {
				r, size := utf8.DecodeRuneInString(input[i:])
				if r != '_' && r != '.' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			word := input[start:i]
			if _, ok := keywords[strings.ToUpper(word)]; ok {
				tokens = append(tokens, token{kind: tokKeyword, text: strings.ToUpper(word), pos: start})
			} else {
				tokens = append(tokens, token{kind: tokIdent, text: word, pos: start})
			}
		default:
			return nil, &SyntaxError{Input: input, Pos: i, Msg: fmt.Sprintf("unexpected %q", r)}
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(input)}), nil
}

// lexQuoted reads a quoted run starting at input[start]. A doubled quote
// escapes itself. It returns the unquoted text and the consumed length.
func lexQuoted(input string, start int, quote byte) (string, int, error) {
	var sb strings.Builder
	i := start + 1
	for i < len(input) {
		c := input[i]
		if c == quote {
			if i+1 < len(input) && input[i+1] == quote {
				sb.WriteByte(quote)
				i += 2
				continue
			}
			return sb.String(), i + 1 - start, nil
		}
		sb.WriteByte(c)
		i++
	}
	return "", 0, &SyntaxError{Input: input, Pos: start, Msg: "unterminated quoted text"}
}

// lexNumber returns the length of the numeric literal at the start of s.
func lexNumber(s string) int {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		exp := j
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j > exp {
			i = j
		}
	}
	return i
}
