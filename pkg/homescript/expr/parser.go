package expr

import "fmt"

// node is an expression tree node. The tree is built once per expression
// and walked by eval; no user input ever reaches host-language evaluation.
type node interface{}

type numLit float64

type strLit string

type boolLit bool

type nullLit struct{}

type arrayLit struct {
	elems []node
}

type objEntry struct {
	key string
	val node
}

type objectLit struct {
	entries []objEntry
}

type varRef struct {
	path []string
}

type callNode struct {
	name string
	args []node
}

type unaryNode struct {
	op tokenKind
	x  node
}

type binaryNode struct {
	op   tokenKind
	x, y node
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token      { return p.toks[p.pos] }
func (p *parser) next() token      { t := p.toks[p.pos]; p.pos++; return t }
func (p *parser) at(k tokenKind) bool { return p.toks[p.pos].kind == k }

func (p *parser) expect(k tokenKind, what string) error {
	if !p.at(k) {
		return fmt.Errorf("expected %s", what)
	}
	p.pos++
	return nil
}

func parse(toks []token) (node, error) {
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.at(tokEOF) {
		return nil, fmt.Errorf("unexpected trailing input")
	}
	return n, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(tokOr) {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tokOr, x: left, y: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.at(tokAnd) {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tokAnd, x: left, y: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.at(tokNot) {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: tokNot, x: x}, nil
	}
	return p.parseComparison()
}

// parseComparison handles = != > < >= <= and IN. Comparisons do not chain.
func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	switch p.peek().kind {
	case tokEq, tokNe, tokGt, tokLt, tokGe, tokLe, tokIn:
		op := p.next().kind
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: op, x: left, y: right}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(tokPlus) || p.at(tokMinus) {
		op := p.next().kind
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, x: left, y: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(tokStar) || p.at(tokSlash) {
		op := p.next().kind
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, x: left, y: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.at(tokMinus) {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: tokMinus, x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		return numLit(t.num), nil
	case tokString:
		p.next()
		return strLit(t.text), nil
	case tokTrue:
		p.next()
		return boolLit(true), nil
	case tokFalse:
		p.next()
		return boolLit(false), nil
	case tokNull:
		p.next()
		return nullLit{}, nil
	case tokVar:
		p.next()
		return varRef{path: t.path}, nil
	case tokIdent:
		p.next()
		if p.at(tokLParen) {
			return p.parseCall(t.text)
		}
		return nil, fmt.Errorf("unknown identifier %q", t.text)
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokLBracket:
		return p.parseArray()
	case tokLBrace:
		return p.parseObject()
	default:
		return nil, fmt.Errorf("unexpected token")
	}
}

func (p *parser) parseCall(name string) (node, error) {
	p.next() // consume (
	var args []node
	if !p.at(tokRParen) {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.at(tokComma) {
				p.next()
				continue
			}
			break
		}
	}
	if err := p.expect(tokRParen, ") after arguments"); err != nil {
		return nil, err
	}
	return callNode{name: name, args: args}, nil
}

func (p *parser) parseArray() (node, error) {
	p.next() // consume [
	var elems []node
	if !p.at(tokRBracket) {
		for {
			el, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, el)
			if p.at(tokComma) {
				p.next()
				continue
			}
			break
		}
	}
	if err := p.expect(tokRBracket, "]"); err != nil {
		return nil, err
	}
	return arrayLit{elems: elems}, nil
}

func (p *parser) parseObject() (node, error) {
	p.next() // consume {
	var entries []objEntry
	if !p.at(tokRBrace) {
		for {
			kt := p.next()
			var key string
			switch kt.kind {
			case tokString, tokIdent:
				key = kt.text
			default:
				return nil, fmt.Errorf("expected object key")
			}
			if err := p.expect(tokColon, ": after object key"); err != nil {
				return nil, err
			}
			val, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			entries = append(entries, objEntry{key: key, val: val})
			if p.at(tokComma) {
				p.next()
				continue
			}
			break
		}
	}
	if err := p.expect(tokRBrace, "}"); err != nil {
		return nil, err
	}
	return objectLit{entries: entries}, nil
}
