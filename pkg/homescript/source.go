package homescript

import "strings"

// line is one logical line of a script: the trimmed text plus the physical
// 1-based line number of its opener, which is what errors and trace events
// report.
type line struct {
	text   string
	number int
}

// statement keywords; a joined IF condition stops accumulating at any of
// these.
var statementKeywords = []string{
	"SET", "PRINT", "GET", "CALL", "IF", "ELSE", "END_IF",
	"WHILE", "END_WHILE", "FUNCTION", "END_FUNCTION", "RETURN",
	"IMPORT", "REQUIRED", "OPTIONAL", "LABEL", "GOTO",
	"BREAK", "CONTINUE", "TEST",
}

func startsWithKeyword(s string) bool {
	for _, kw := range statementKeywords {
		if s == kw || strings.HasPrefix(s, kw+" ") {
			return true
		}
	}
	return false
}

// logical operators that glue a multi-line IF condition together.
var logicalOps = []string{"AND", "OR", "NOT", "&&", "||", "!"}

func endsWithLogicalOp(s string) bool {
	for _, op := range logicalOps {
		if s == op || strings.HasSuffix(s, " "+op) || strings.HasSuffix(s, op) && (op == "&&" || op == "||") {
			return true
		}
	}
	return false
}

func startsWithLogicalOp(s string) bool {
	for _, op := range logicalOps {
		if s == op || strings.HasPrefix(s, op+" ") || strings.HasPrefix(s, op+"(") {
			return true
		}
	}
	return false
}

// splitLines turns source text into logical lines. Blank lines and
// #-comments are skipped. An IF (or ELSE IF) condition spans multiple
// physical lines while the accumulated text ends with a logical operator or
// the next non-blank line begins with one; joining stops at any line that
// opens a new statement.
func splitLines(source string) []line {
	physical := strings.Split(source, "\n")
	var out []line

	for i := 0; i < len(physical); i++ {
		text := strings.TrimSpace(physical[i])
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		if strings.HasPrefix(text, "IF ") || strings.HasPrefix(text, "ELSE IF ") || text == "IF" {
			opener := i + 1
			for i+1 < len(physical) {
				next := strings.TrimSpace(physical[i+1])
				if next == "" || strings.HasPrefix(next, "#") {
					// Blank lines inside a joined condition end it unless the
					// operator dangles.
					if endsWithLogicalOp(text) {
						i++
						continue
					}
					break
				}
				if startsWithKeyword(next) {
					break
				}
				if endsWithLogicalOp(text) || startsWithLogicalOp(next) {
					text += " " + next
					i++
					continue
				}
				break
			}
			out = append(out, line{text: text, number: opener})
			continue
		}

		out = append(out, line{text: text, number: i + 1})
	}
	return out
}
