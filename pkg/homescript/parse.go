package homescript

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Stmt is one parsed statement. Every statement remembers the physical line
// of its opener for error reporting.
type Stmt interface {
	Pos() int
}

type baseStmt struct{ line int }

func (b baseStmt) Pos() int { return b.line }

type (
	// SET $var = expr
	setVarStmt struct {
		baseStmt
		name string
		expr string
	}
	// SET entity_id = expr
	setEntityStmt struct {
		baseStmt
		entityID string
		expr     string
	}
	printStmt struct {
		baseStmt
		expr string
	}
	// GET entity_id INTO $var
	getStmt struct {
		baseStmt
		entityID string
		varName  string
	}
	// CALL target(args); target is either domain.service or a user function.
	callStmt struct {
		baseStmt
		target string
		args   []string
	}
	condBranch struct {
		line int
		cond string // empty for ELSE
		body []Stmt
	}
	ifStmt struct {
		baseStmt
		branches []condBranch
	}
	whileStmt struct {
		baseStmt
		cond string
		body []Stmt
	}
	funcDecl struct {
		baseStmt
		name   string
		params []string
		body   []Stmt
	}
	returnStmt struct {
		baseStmt
		expr string
	}
	importStmt struct {
		baseStmt
		name string
	}
	requiredStmt struct {
		baseStmt
		name      string
		validator string
	}
	optionalStmt struct {
		baseStmt
		name       string
		defaultVal string
		validator  string
	}
	labelStmt struct {
		baseStmt
		name string
	}
	gotoStmt struct {
		baseStmt
		name string
	}
	// BREAK with no arguments exits the innermost loop; with a status code it
	// aborts the whole run.
	loopBreakStmt struct {
		baseStmt
	}
	continueStmt struct {
		baseStmt
	}
	abortStmt struct {
		baseStmt
		code    int
		message string
	}
	testStmt struct {
		baseStmt
		pattern string
		flags   string
		value   string
		intoVar string // defaults to TEST
	}
)

var (
	varNameRe   = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)$`)
	labelNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	breakCodeRe = regexp.MustCompile(`^(\d{3})(?:\s+"(.*)")?$`)
)

// parseProgram parses logical lines into a statement tree. It returns the
// first syntax error it hits; Validate collects the full diagnostic list.
func parseProgram(lines []line) ([]Stmt, *Error) {
	p := &blockParser{lines: lines}
	body, err := p.parseBody("")
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.lines) {
		l := p.lines[p.pos]
		return nil, errAt(l.number, "unexpected '%s'", firstWord(l.text))
	}
	return body, nil
}

type blockParser struct {
	lines []line
	pos   int
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

// parseBody consumes statements until the given terminator (or ELSE / ELSE
// IF when inside an IF). An empty terminator means end of input.
func (p *blockParser) parseBody(terminator string) ([]Stmt, *Error) {
	var body []Stmt
	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		word := firstWord(l.text)
		if terminator != "" && (word == terminator || word == "ELSE") {
			return body, nil
		}
		stmt, err := p.parseStatement(l)
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	if terminator != "" {
		return nil, errAt(0, "missing %s", terminator)
	}
	return body, nil
}

func (p *blockParser) parseStatement(l line) (Stmt, *Error) {
	text := l.text
	word := firstWord(text)
	rest := strings.TrimSpace(strings.TrimPrefix(text, word))
	base := baseStmt{line: l.number}

	switch word {
	case "SET":
		p.pos++
		return parseSet(base, rest)
	case "PRINT":
		p.pos++
		return printStmt{baseStmt: base, expr: rest}, nil
	case "GET":
		p.pos++
		return parseGet(base, rest)
	case "CALL":
		p.pos++
		return parseCall(base, rest)
	case "IF":
		return p.parseIf(l)
	case "WHILE":
		return p.parseWhile(l)
	case "FUNCTION":
		return p.parseFunction(l)
	case "RETURN":
		p.pos++
		return returnStmt{baseStmt: base, expr: rest}, nil
	case "IMPORT":
		p.pos++
		name, ok := unquote(rest)
		if !ok {
			return nil, errAt(l.number, `IMPORT requires a quoted script name`)
		}
		return importStmt{baseStmt: base, name: name}, nil
	case "REQUIRED":
		p.pos++
		return parseRequired(base, rest)
	case "OPTIONAL":
		p.pos++
		return parseOptional(base, rest)
	case "LABEL":
		p.pos++
		if !labelNameRe.MatchString(rest) {
			return nil, errAt(l.number, "malformed LABEL: expected LABEL name")
		}
		return labelStmt{baseStmt: base, name: rest}, nil
	case "GOTO":
		p.pos++
		if !labelNameRe.MatchString(rest) {
			return nil, errAt(l.number, "malformed GOTO: expected GOTO name")
		}
		return gotoStmt{baseStmt: base, name: rest}, nil
	case "BREAK":
		p.pos++
		if rest == "" {
			return loopBreakStmt{baseStmt: base}, nil
		}
		m := breakCodeRe.FindStringSubmatch(rest)
		if m == nil {
			return nil, errAt(l.number, `malformed BREAK: expected BREAK code "message"`)
		}
		code, _ := strconv.Atoi(m[1])
		return abortStmt{baseStmt: base, code: code, message: m[2]}, nil
	case "CONTINUE":
		p.pos++
		if rest != "" {
			return nil, errAt(l.number, "CONTINUE takes no arguments")
		}
		return continueStmt{baseStmt: base}, nil
	case "TEST":
		p.pos++
		return parseTest(base, rest)
	case "END_IF", "END_WHILE", "END_FUNCTION", "ELSE":
		return nil, errAt(l.number, "unexpected '%s'", word)
	default:
		return nil, errAt(l.number, "invalid keyword '%s'", word)
	}
}

func parseSet(base baseStmt, rest string) (Stmt, *Error) {
	eq := strings.Index(rest, "=")
	if eq < 0 {
		return nil, errAt(base.line, "malformed SET: expected SET target = expression")
	}
	target := strings.TrimSpace(rest[:eq])
	expr := strings.TrimSpace(rest[eq+1:])
	if expr == "" {
		return nil, errAt(base.line, "malformed SET: missing expression")
	}
	if m := varNameRe.FindStringSubmatch(target); m != nil {
		return setVarStmt{baseStmt: base, name: m[1], expr: expr}, nil
	}
	if target == "" {
		return nil, errAt(base.line, "malformed SET: missing target")
	}
	return setEntityStmt{baseStmt: base, entityID: target, expr: expr}, nil
}

func parseGet(base baseStmt, rest string) (Stmt, *Error) {
	idx := strings.Index(rest, " INTO ")
	if idx < 0 {
		return nil, errAt(base.line, "malformed GET: expected GET entity_id INTO $var")
	}
	entity := strings.TrimSpace(rest[:idx])
	target := strings.TrimSpace(rest[idx+len(" INTO "):])
	m := varNameRe.FindStringSubmatch(target)
	if entity == "" || m == nil {
		return nil, errAt(base.line, "malformed GET: expected GET entity_id INTO $var")
	}
	return getStmt{baseStmt: base, entityID: entity, varName: m[1]}, nil
}

func parseCall(base baseStmt, rest string) (Stmt, *Error) {
	open := strings.Index(rest, "(")
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return nil, errAt(base.line, "malformed CALL: expected CALL name(args)")
	}
	target := strings.TrimSpace(rest[:open])
	if target == "" {
		return nil, errAt(base.line, "malformed CALL: missing target")
	}
	args, err := splitArgs(rest[open+1 : len(rest)-1])
	if err != nil {
		return nil, errAt(base.line, "malformed CALL: %s", err)
	}
	return callStmt{baseStmt: base, target: target, args: args}, nil
}

// splitArgs splits a comma-separated argument list, honoring nesting and
// string literals so commas inside them don't split.
func splitArgs(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var args []string
	depth := 0
	inStr := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inStr:
			if c == '\\' {
				i++
			} else if c == '"' {
				inStr = false
			}
		case c == '"':
			inStr = true
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced brackets in arguments")
			}
		case c == ',' && depth == 0:
			args = append(args, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if inStr {
		return nil, fmt.Errorf("unterminated string in arguments")
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets in arguments")
	}
	args = append(args, strings.TrimSpace(s[start:]))
	return args, nil
}

func (p *blockParser) parseIf(opener line) (Stmt, *Error) {
	stmt := ifStmt{baseStmt: baseStmt{line: opener.number}}
	cond := strings.TrimSpace(strings.TrimPrefix(opener.text, "IF"))
	if cond == "" {
		return nil, errAt(opener.number, "malformed IF: missing condition")
	}
	p.pos++

	for {
		body, err := p.parseBody("END_IF")
		if err != nil {
			if err.Line == 0 {
				return nil, errAt(opener.number, "missing END_IF")
			}
			return nil, err
		}
		stmt.branches = append(stmt.branches, condBranch{line: opener.number, cond: cond, body: body})

		if p.pos >= len(p.lines) {
			return nil, errAt(opener.number, "missing END_IF")
		}
		l := p.lines[p.pos]
		switch {
		case l.text == "END_IF":
			p.pos++
			return stmt, nil
		case strings.HasPrefix(l.text, "ELSE IF "):
			cond = strings.TrimSpace(strings.TrimPrefix(l.text, "ELSE IF"))
			opener = l
			p.pos++
		case l.text == "ELSE":
			p.pos++
			body, err := p.parseBody("END_IF")
			if err != nil {
				if err.Line == 0 {
					return nil, errAt(opener.number, "missing END_IF")
				}
				return nil, err
			}
			stmt.branches = append(stmt.branches, condBranch{line: l.number, cond: "", body: body})
			if p.pos >= len(p.lines) || p.lines[p.pos].text != "END_IF" {
				return nil, errAt(opener.number, "missing END_IF")
			}
			p.pos++
			return stmt, nil
		default:
			return nil, errAt(l.number, "unexpected '%s'", firstWord(l.text))
		}
	}
}

func (p *blockParser) parseWhile(opener line) (Stmt, *Error) {
	cond := strings.TrimSpace(strings.TrimPrefix(opener.text, "WHILE"))
	cond = strings.TrimSpace(strings.TrimSuffix(cond, " DO"))
	if cond == "" || cond == "DO" {
		return nil, errAt(opener.number, "malformed WHILE: missing condition")
	}
	p.pos++

	body, err := p.parseBody("END_WHILE")
	if err != nil {
		if err.Line == 0 {
			return nil, errAt(opener.number, "missing END_WHILE")
		}
		return nil, err
	}
	if p.pos >= len(p.lines) || p.lines[p.pos].text != "END_WHILE" {
		return nil, errAt(opener.number, "missing END_WHILE")
	}
	p.pos++
	return whileStmt{baseStmt: baseStmt{line: opener.number}, cond: cond, body: body}, nil
}

var funcHeaderRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\(([^)]*)\)$`)

func (p *blockParser) parseFunction(opener line) (Stmt, *Error) {
	header := strings.TrimSpace(strings.TrimPrefix(opener.text, "FUNCTION"))
	m := funcHeaderRe.FindStringSubmatch(header)
	if m == nil {
		return nil, errAt(opener.number, "malformed FUNCTION: expected FUNCTION name(params)")
	}
	var params []string
	if strings.TrimSpace(m[2]) != "" {
		for _, raw := range strings.Split(m[2], ",") {
			pm := varNameRe.FindStringSubmatch(strings.TrimSpace(raw))
			if pm == nil {
				return nil, errAt(opener.number, "malformed FUNCTION: parameters must be $names")
			}
			params = append(params, pm[1])
		}
	}
	p.pos++

	body, err := p.parseBody("END_FUNCTION")
	if err != nil {
		if err.Line == 0 {
			return nil, errAt(opener.number, "missing END_FUNCTION")
		}
		return nil, err
	}
	if p.pos >= len(p.lines) || p.lines[p.pos].text != "END_FUNCTION" {
		return nil, errAt(opener.number, "missing END_FUNCTION")
	}
	p.pos++
	return funcDecl{baseStmt: baseStmt{line: opener.number}, name: m[1], params: params, body: body}, nil
}

var (
	declIfRe      = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)(?:\s+IF\s+\((.+)\))?$`)
	optionalRe    = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)(?:\s*=\s*(.+?))??(?:\s+IF\s+\((.+)\))?$`)
	testIntoRe    = regexp.MustCompile(`\s+INTO\s+\$([A-Za-z_][A-Za-z0-9_]*)$`)
	regexTrailRe  = regexp.MustCompile(`/([a-z]*)$`)
	regexLeadRe   = regexp.MustCompile(`^/((?:[^/\\]|\\.)*)/([a-z]*)`)
)

func parseRequired(base baseStmt, rest string) (Stmt, *Error) {
	m := declIfRe.FindStringSubmatch(rest)
	if m == nil {
		return nil, errAt(base.line, "malformed REQUIRED: expected REQUIRED $name [IF (validator)]")
	}
	return requiredStmt{baseStmt: base, name: m[1], validator: m[2]}, nil
}

func parseOptional(base baseStmt, rest string) (Stmt, *Error) {
	m := optionalRe.FindStringSubmatch(rest)
	if m == nil {
		return nil, errAt(base.line, "malformed OPTIONAL: expected OPTIONAL $name [= default] [IF (validator)]")
	}
	return optionalStmt{baseStmt: base, name: m[1], defaultVal: strings.TrimSpace(m[2]), validator: m[3]}, nil
}

// parseTest accepts `TEST a b [INTO $var]` where one of a/b is a regex
// literal /pattern/flags and the other is a value expression, in either
// order.
func parseTest(base baseStmt, rest string) (Stmt, *Error) {
	intoVar := "TEST"
	if m := testIntoRe.FindStringSubmatch(rest); m != nil {
		intoVar = m[1]
		rest = strings.TrimSpace(rest[:len(rest)-len(m[0])])
	}
	if rest == "" {
		return nil, errAt(base.line, "malformed TEST: missing operands")
	}

	var pattern, flags, value string
	if strings.HasPrefix(rest, "/") {
		m := regexLeadRe.FindStringSubmatch(rest)
		if m == nil {
			return nil, errAt(base.line, "malformed TEST: missing regex literal /pattern/flags")
		}
		pattern, flags = m[1], m[2]
		value = strings.TrimSpace(rest[len(m[0]):])
	} else {
		// Regex literal trails: scan back from the flag suffix to the opening
		// slash that begins a whitespace-delimited operand.
		fm := regexTrailRe.FindStringIndex(rest)
		if fm == nil {
			return nil, errAt(base.line, "malformed TEST: missing regex literal /pattern/flags")
		}
		flags = rest[fm[0]+1 : fm[1]]
		open := -1
		for i := fm[0] - 1; i > 0; i-- {
			if rest[i] == '/' && rest[i-1] != '\\' && (i == 0 || rest[i-1] == ' ') {
				open = i
				break
			}
		}
		if open < 0 {
			return nil, errAt(base.line, "malformed TEST: missing regex literal /pattern/flags")
		}
		pattern = rest[open+1 : fm[0]]
		value = strings.TrimSpace(rest[:open])
	}
	if value == "" {
		return nil, errAt(base.line, "malformed TEST: missing value operand")
	}
	return testStmt{baseStmt: base, pattern: pattern, flags: flags, value: value, intoVar: intoVar}, nil
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1], true
	}
	return "", false
}
