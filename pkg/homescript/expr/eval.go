package expr

import (
	"fmt"
	"math"
)

// InvalidExpressionError reports a lexical, syntactic or semantic failure
// while evaluating an expression.
type InvalidExpressionError struct {
	Expr   string
	Reason string
}

func (e *InvalidExpressionError) Error() string {
	return fmt.Sprintf("invalid expression %q: %s", e.Expr, e.Reason)
}

// Program is a compiled expression, reusable across scopes.
type Program struct {
	src  string
	root node
}

// Compile parses an expression into a reusable Program.
func Compile(src string) (*Program, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, &InvalidExpressionError{Expr: src, Reason: err.Error()}
	}
	root, err := parse(toks)
	if err != nil {
		return nil, &InvalidExpressionError{Expr: src, Reason: err.Error()}
	}
	return &Program{src: src, root: root}, nil
}

// Eval evaluates the compiled expression against a scope. Scope keys carry
// no $ sigil.
func (p *Program) Eval(scope map[string]any) (any, error) {
	v, err := eval(p.root, scope)
	if err != nil {
		return nil, &InvalidExpressionError{Expr: p.src, Reason: err.Error()}
	}
	return v, nil
}

// Evaluate compiles and evaluates an expression in one step.
func Evaluate(src string, scope map[string]any) (any, error) {
	prog, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return prog.Eval(scope)
}

func eval(n node, scope map[string]any) (any, error) {
	switch t := n.(type) {
	case numLit:
		return float64(t), nil
	case strLit:
		return string(t), nil
	case boolLit:
		return bool(t), nil
	case nullLit:
		return nil, nil
	case varRef:
		return Resolve(scope, t.path), nil
	case arrayLit:
		arr := make([]any, 0, len(t.elems))
		for _, el := range t.elems {
			v, err := eval(el, scope)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case objectLit:
		obj := make(map[string]any, len(t.entries))
		for _, e := range t.entries {
			v, err := eval(e.val, scope)
			if err != nil {
				return nil, err
			}
			obj[e.key] = v
		}
		return obj, nil
	case callNode:
		return evalCall(t, scope)
	case unaryNode:
		x, err := eval(t.x, scope)
		if err != nil {
			return nil, err
		}
		switch t.op {
		case tokNot:
			return !Truthy(x), nil
		case tokMinus:
			f, ok := AsNumber(x)
			if !ok {
				return nil, fmt.Errorf("cannot negate %s", KindOf(x))
			}
			return -f, nil
		}
		return nil, fmt.Errorf("unknown unary operator")
	case binaryNode:
		return evalBinary(t, scope)
	default:
		return nil, fmt.Errorf("unknown expression node")
	}
}

func evalBinary(b binaryNode, scope map[string]any) (any, error) {
	// Short-circuit logical operators.
	switch b.op {
	case tokAnd:
		x, err := eval(b.x, scope)
		if err != nil {
			return nil, err
		}
		if !Truthy(x) {
			return false, nil
		}
		y, err := eval(b.y, scope)
		if err != nil {
			return nil, err
		}
		return Truthy(y), nil
	case tokOr:
		x, err := eval(b.x, scope)
		if err != nil {
			return nil, err
		}
		if Truthy(x) {
			return true, nil
		}
		y, err := eval(b.y, scope)
		if err != nil {
			return nil, err
		}
		return Truthy(y), nil
	}

	x, err := eval(b.x, scope)
	if err != nil {
		return nil, err
	}
	y, err := eval(b.y, scope)
	if err != nil {
		return nil, err
	}

	switch b.op {
	case tokEq:
		return Equal(x, y), nil
	case tokNe:
		return !Equal(x, y), nil
	case tokIn:
		return Contains(x, y), nil
	case tokGt, tokLt, tokGe, tokLe:
		xf, xok := AsNumber(x)
		yf, yok := AsNumber(y)
		if !xok || !yok {
			return nil, fmt.Errorf("cannot compare %s with %s", KindOf(x), KindOf(y))
		}
		switch b.op {
		case tokGt:
			return xf > yf, nil
		case tokLt:
			return xf < yf, nil
		case tokGe:
			return xf >= yf, nil
		default:
			return xf <= yf, nil
		}
	case tokPlus:
		// String concatenation wins when either side is a string.
		if KindOf(x) == KindString || KindOf(y) == KindString {
			return Stringify(x) + Stringify(y), nil
		}
		xf, xok := AsNumber(x)
		yf, yok := AsNumber(y)
		if !xok || !yok {
			return nil, fmt.Errorf("cannot add %s and %s", KindOf(x), KindOf(y))
		}
		return xf + yf, nil
	case tokMinus, tokStar, tokSlash:
		xf, xok := AsNumber(x)
		yf, yok := AsNumber(y)
		if !xok || !yok {
			return nil, fmt.Errorf("arithmetic requires numbers, got %s and %s", KindOf(x), KindOf(y))
		}
		switch b.op {
		case tokMinus:
			return xf - yf, nil
		case tokStar:
			return xf * yf, nil
		default:
			if yf == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return xf / yf, nil
		}
	}
	return nil, fmt.Errorf("unknown binary operator")
}

// unaryFuncs maps one-argument math function names to math package calls.
var unaryFuncs = map[string]func(float64) float64{
	"abs":   math.Abs,
	"ceil":  math.Ceil,
	"floor": math.Floor,
	"round": math.Round,
	"trunc": math.Trunc,
	"sqrt":  math.Sqrt,
	"cbrt":  math.Cbrt,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"asin":  math.Asin,
	"acos":  math.Acos,
	"atan":  math.Atan,
	"sinh":  math.Sinh,
	"cosh":  math.Cosh,
	"tanh":  math.Tanh,
	"log":   math.Log,
	"log2":  math.Log2,
	"log10": math.Log10,
	"exp":   math.Exp,
}

// binaryFuncs maps two-argument math function names.
var binaryFuncs = map[string]func(float64, float64) float64{
	"pow":   math.Pow,
	"atan2": math.Atan2,
	"mod":   math.Mod,
	"hypot": math.Hypot,
}

func evalCall(c callNode, scope map[string]any) (any, error) {
	args := make([]float64, 0, len(c.args))
	for _, a := range c.args {
		v, err := eval(a, scope)
		if err != nil {
			return nil, err
		}
		f, ok := AsNumber(v)
		if !ok {
			return nil, fmt.Errorf("%s: argument must be a number, got %s", c.name, KindOf(v))
		}
		args = append(args, f)
	}

	if fn, ok := unaryFuncs[c.name]; ok {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", c.name, len(args))
		}
		return fn(args[0]), nil
	}
	if fn, ok := binaryFuncs[c.name]; ok {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s expects 2 arguments, got %d", c.name, len(args))
		}
		return fn(args[0], args[1]), nil
	}

	switch c.name {
	case "min", "max":
		if len(args) == 0 {
			return nil, fmt.Errorf("%s expects at least 1 argument", c.name)
		}
		out := args[0]
		for _, f := range args[1:] {
			if c.name == "min" {
				out = math.Min(out, f)
			} else {
				out = math.Max(out, f)
			}
		}
		return out, nil
	case "clamp":
		if len(args) != 3 {
			return nil, fmt.Errorf("clamp expects 3 arguments, got %d", len(args))
		}
		return math.Min(math.Max(args[0], args[1]), args[2]), nil
	}
	return nil, fmt.Errorf("unknown function %q", c.name)
}
