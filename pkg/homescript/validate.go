package homescript

import (
	"fmt"
	"regexp"
	"strings"
)

type blockOpener struct {
	keyword    string // IF, WHILE, FUNCTION
	terminator string
	line       int
	id         int
}

// blockKey identifies one enclosing statement list on a declaration's path.
// The interpreter resolves GOTO against the jump's own list and its
// ancestors, never entering a nested block and never crossing a function
// body; the validator mirrors that with prefix checks over these paths.
type blockKey struct {
	id int
	fn bool
}

type labelDecl struct {
	line int
	path []blockKey
}

type gotoRef struct {
	name string
	line int
	path []blockKey
}

// Validate scans a script and returns all diagnostics it can find. It never
// fails; an empty list means the script passed static checks.
func Validate(source string) []Diagnostic {
	lines := splitLines(source)
	diags := []Diagnostic{}
	add := func(line int, format string, args ...any) {
		diags = append(diags, Diagnostic{Line: line, Message: fmt.Sprintf(format, args...)})
	}

	var stack []blockOpener
	nextBlockID := 0
	newBlockID := func() int {
		nextBlockID++
		return nextBlockID
	}
	curPath := func() []blockKey {
		path := make([]blockKey, len(stack))
		for i, o := range stack {
			path[i] = blockKey{id: o.id, fn: o.keyword == "FUNCTION"}
		}
		return path
	}
	labels := map[string][]labelDecl{}
	var gotos []gotoRef
	declsDone := false // a non-declaration statement has been seen

	for _, l := range lines {
		word := firstWord(l.text)
		rest := strings.TrimSpace(strings.TrimPrefix(l.text, word))
		base := baseStmt{line: l.number}

		switch word {
		case "REQUIRED":
			if declsDone {
				add(l.number, "REQUIRED/OPTIONAL must be at the top of script")
			}
			if _, err := parseRequired(base, rest); err != nil {
				add(err.Line, "%s", err.Message)
			}
			continue
		case "OPTIONAL":
			if declsDone {
				add(l.number, "REQUIRED/OPTIONAL must be at the top of script")
			}
			if _, err := parseOptional(base, rest); err != nil {
				add(err.Line, "%s", err.Message)
			}
			continue
		}
		declsDone = true

		switch word {
		case "IF":
			stack = append(stack, blockOpener{keyword: "IF", terminator: "END_IF", line: l.number, id: newBlockID()})
		case "WHILE":
			stack = append(stack, blockOpener{keyword: "WHILE", terminator: "END_WHILE", line: l.number, id: newBlockID()})
		case "FUNCTION":
			if m := funcHeaderRe.FindStringSubmatch(rest); m == nil {
				add(l.number, "malformed FUNCTION: expected FUNCTION name(params)")
			}
			stack = append(stack, blockOpener{keyword: "FUNCTION", terminator: "END_FUNCTION", line: l.number, id: newBlockID()})
		case "END_IF", "END_WHILE", "END_FUNCTION":
			if len(stack) > 0 && stack[len(stack)-1].terminator == word {
				stack = stack[:len(stack)-1]
			} else {
				add(l.number, "unexpected '%s' with no open block", word)
			}
		case "ELSE":
			inIf := false
			for _, o := range stack {
				if o.keyword == "IF" {
					inIf = true
				}
			}
			if !inIf {
				add(l.number, "unexpected 'ELSE' with no open IF")
			}
			// The ELSE branch is a separate statement list.
			if len(stack) > 0 && stack[len(stack)-1].keyword == "IF" {
				stack[len(stack)-1].id = newBlockID()
			}
		case "LABEL":
			if !labelNameRe.MatchString(rest) {
				add(l.number, "malformed LABEL: expected LABEL name")
				continue
			}
			if decls := labels[rest]; len(decls) > 0 {
				add(l.number, "duplicate label '%s' (first declared on line %d)", rest, decls[0].line)
			}
			labels[rest] = append(labels[rest], labelDecl{line: l.number, path: curPath()})
		case "GOTO":
			if !labelNameRe.MatchString(rest) {
				add(l.number, "malformed GOTO: expected GOTO name")
				continue
			}
			gotos = append(gotos, gotoRef{name: rest, line: l.number, path: curPath()})
		case "BREAK":
			if rest != "" && !breakCodeRe.MatchString(rest) {
				add(l.number, `malformed BREAK: expected BREAK code "message"`)
			}
		case "TEST":
			if _, err := parseTest(base, rest); err != nil {
				add(err.Line, "%s", err.Message)
			} else if _, err := compileTestRegex(rest); err != nil {
				add(l.number, "%s", err)
			}
		case "SET":
			if _, err := parseSet(base, rest); err != nil {
				add(err.Line, "%s", err.Message)
			}
		case "GET":
			if _, err := parseGet(base, rest); err != nil {
				add(err.Line, "%s", err.Message)
			}
		case "CALL":
			if _, err := parseCall(base, rest); err != nil {
				add(err.Line, "%s", err.Message)
			}
		case "IMPORT":
			if _, ok := unquote(rest); !ok {
				add(l.number, "IMPORT requires a quoted script name")
			}
		case "PRINT", "RETURN", "CONTINUE":
			// No static shape to check beyond the keyword itself.
		default:
			add(l.number, "invalid keyword '%s'", word)
		}
	}

	for _, o := range stack {
		add(o.line, "missing %s for %s", o.terminator, o.keyword)
	}
	for _, g := range gotos {
		decls := labels[g.name]
		if len(decls) == 0 {
			add(g.line, "GOTO to unknown label '%s'", g.name)
			continue
		}
		if !labelReachable(decls, g.path) {
			add(g.line, "GOTO cannot reach label '%s' declared in a nested block", g.name)
		}
	}
	return diags
}

// labelReachable reports whether some declaration of the label sits in the
// GOTO's own statement list or an enclosing one, with no function body in
// between. This is exactly the set of jumps the interpreter can resolve.
func labelReachable(decls []labelDecl, from []blockKey) bool {
	for _, d := range decls {
		if !pathPrefix(d.path, from) {
			continue
		}
		crossesFunc := false
		for _, b := range from[len(d.path):] {
			if b.fn {
				crossesFunc = true
				break
			}
		}
		if !crossesFunc {
			return true
		}
	}
	return false
}

func pathPrefix(p, q []blockKey) bool {
	if len(p) > len(q) {
		return false
	}
	for i := range p {
		if p[i].id != q[i].id {
			return false
		}
	}
	return true
}

// compileTestRegex parses the regex literal out of a TEST statement body and
// compiles it, so invalid patterns surface statically.
func compileTestRegex(rest string) (*regexp.Regexp, error) {
	stmt, perr := parseTest(baseStmt{}, rest)
	if perr != nil {
		return nil, fmt.Errorf("%s", perr.Message)
	}
	ts := stmt.(testStmt)
	return buildRegex(ts.pattern, ts.flags)
}

// buildRegex translates /pattern/flags into a Go regexp. Supported flags:
// i (case-insensitive), s (dot matches newline), m (multi-line anchors).
func buildRegex(pattern, flags string) (*regexp.Regexp, error) {
	var mods string
	for _, f := range flags {
		switch f {
		case 'i', 's', 'm':
			mods += string(f)
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", string(f))
		}
	}
	if mods != "" {
		pattern = "(?" + mods + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %s", err)
	}
	return re, nil
}
