package expr

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokVar
	tokTrue
	tokFalse
	tokNull
	tokAnd
	tokOr
	tokNot
	tokIn
	tokEq
	tokNe
	tokGt
	tokLt
	tokGe
	tokLe
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokComma
	tokColon
)

type token struct {
	kind tokenKind
	text string   // raw text for idents and strings
	num  float64  // value for numbers
	path []string // dotted path for vars, without the $ sigil
	pos  int
}

// keyword operators are case-insensitive aliases of the symbolic forms.
var keywords = map[string]tokenKind{
	"AND":   tokAnd,
	"OR":    tokOr,
	"NOT":   tokNot,
	"IN":    tokIn,
	"TRUE":  tokTrue,
	"FALSE": tokFalse,
	"NULL":  tokNull,
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// lex tokenizes a full expression. A single '=' is promoted to equality;
// the two-character forms ==, !=, >=, <= are recognized first so the
// promotion never fires inside them.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c >= '0' && c <= '9' || (c == '.' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9'):
			start := i
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.') {
				i++
			}
			f, err := strconv.ParseFloat(src[start:i], 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", src[start:i])
			}
			toks = append(toks, token{kind: tokNumber, num: f, pos: start})
		case c == '"':
			text, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: text, pos: i})
			i = next
		case c == '$':
			path, next, err := lexVarPath(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokVar, path: path, pos: i})
			i = next
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			word := src[start:i]
			if kind, ok := keywords[strings.ToUpper(word)]; ok {
				toks = append(toks, token{kind: kind, text: word, pos: start})
			} else {
				toks = append(toks, token{kind: tokIdent, text: word, pos: start})
			}
		default:
			kind, width, err := lexOperator(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: kind, pos: i})
			i += width
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func lexString(src string, start int) (string, int, error) {
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		switch src[i] {
		case '"':
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(src) {
				return "", 0, fmt.Errorf("unterminated string literal")
			}
			switch src[i+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(src[i+1])
			}
			i += 2
		default:
			b.WriteByte(src[i])
			i++
		}
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}

func lexVarPath(src string, start int) ([]string, int, error) {
	i := start + 1
	if i >= len(src) || !isIdentStart(src[i]) {
		return nil, 0, fmt.Errorf("expected variable name after $")
	}
	var path []string
	for {
		segStart := i
		for i < len(src) && isIdentPart(src[i]) {
			i++
		}
		path = append(path, src[segStart:i])
		if i+1 < len(src) && src[i] == '.' && isIdentStart(src[i+1]) {
			i++
			continue
		}
		return path, i, nil
	}
}

func lexOperator(src string, i int) (tokenKind, int, error) {
	two := ""
	if i+1 < len(src) {
		two = src[i : i+2]
	}
	switch two {
	case "==":
		return tokEq, 2, nil
	case "!=":
		return tokNe, 2, nil
	case ">=":
		return tokGe, 2, nil
	case "<=":
		return tokLe, 2, nil
	case "&&":
		return tokAnd, 2, nil
	case "||":
		return tokOr, 2, nil
	}
	switch src[i] {
	case '=':
		return tokEq, 1, nil
	case '!':
		return tokNot, 1, nil
	case '>':
		return tokGt, 1, nil
	case '<':
		return tokLt, 1, nil
	case '+':
		return tokPlus, 1, nil
	case '-':
		return tokMinus, 1, nil
	case '*':
		return tokStar, 1, nil
	case '/':
		return tokSlash, 1, nil
	case '(':
		return tokLParen, 1, nil
	case ')':
		return tokRParen, 1, nil
	case '[':
		return tokLBracket, 1, nil
	case ']':
		return tokRBracket, 1, nil
	case '{':
		return tokLBrace, 1, nil
	case '}':
		return tokRBrace, 1, nil
	case ',':
		return tokComma, 1, nil
	case ':':
		return tokColon, 1, nil
	default:
		return tokEOF, 0, fmt.Errorf("unexpected character %q", string(src[i]))
	}
}
