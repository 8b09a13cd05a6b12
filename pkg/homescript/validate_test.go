package homescript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diagnosticMessages(diags []Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Message
	}
	return out
}

func TestValidateCleanScript(t *testing.T) {
	source := `REQUIRED $mode
OPTIONAL $speed = 50
SET $x = 1
IF $x > 0
  PRINT "positive"
END_IF
LABEL end
GOTO end`

	assert.Empty(t, Validate(source))
}

func TestValidateDeclarationsNotAtTop(t *testing.T) {
	source := `PRINT "hi"
REQUIRED $mode`

	diags := Validate(source)
	require.Len(t, diags, 1)
	assert.Equal(t, 2, diags[0].Line)
	assert.Equal(t, "REQUIRED/OPTIONAL must be at the top of script", diags[0].Message)
}

func TestValidateDeclarationsCommentsTransparent(t *testing.T) {
	source := `# header comment

REQUIRED $mode
# another comment
OPTIONAL $speed`

	assert.Empty(t, Validate(source))
}

func TestValidateMissingTerminators(t *testing.T) {
	source := `IF 1 > 0
  PRINT "a"
WHILE 1 > 0 DO
  PRINT "b"`

	diags := Validate(source)
	require.Len(t, diags, 2)
	// Missing terminator reported at the opener's line.
	assert.Equal(t, 1, diags[0].Line)
	assert.Contains(t, diags[0].Message, "missing END_IF")
	assert.Equal(t, 3, diags[1].Line)
	assert.Contains(t, diags[1].Message, "missing END_WHILE")
}

func TestValidateStrayTerminator(t *testing.T) {
	diags := Validate("PRINT \"x\"\nEND_IF")
	require.Len(t, diags, 1)
	assert.Equal(t, 2, diags[0].Line)
	assert.Contains(t, diags[0].Message, "unexpected 'END_IF'")
}

func TestValidateDuplicateLabel(t *testing.T) {
	source := `LABEL spot
PRINT "x"
LABEL spot`

	diags := Validate(source)
	require.Len(t, diags, 1)
	assert.Equal(t, 3, diags[0].Line)
	assert.Contains(t, diags[0].Message, "duplicate label 'spot'")
}

func TestValidateGotoUnknownLabel(t *testing.T) {
	diags := Validate("GOTO nowhere")
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "GOTO to unknown label 'nowhere'")
}

func TestValidateGotoIntoNestedBlock(t *testing.T) {
	// A label inside an IF body cannot be reached from the enclosing list;
	// the interpreter would fail this jump at run time.
	source := `IF 1 > 0
  LABEL x
END_IF
GOTO x`

	diags := Validate(source)
	require.Len(t, diags, 1)
	assert.Equal(t, 4, diags[0].Line)
	assert.Contains(t, diags[0].Message, "GOTO cannot reach label 'x'")
}

func TestValidateGotoIntoFunctionBody(t *testing.T) {
	source := `FUNCTION f()
  LABEL inner
END_FUNCTION
GOTO inner`

	diags := Validate(source)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "GOTO cannot reach label 'inner'")
}

func TestValidateGotoOutOfFunctionBody(t *testing.T) {
	source := `LABEL outside
FUNCTION f()
  GOTO outside
END_FUNCTION`

	diags := Validate(source)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "GOTO cannot reach label 'outside'")
}

func TestValidateGotoAcrossIfBranches(t *testing.T) {
	source := `IF 1 > 0
  LABEL then_side
ELSE
  GOTO then_side
END_IF`

	diags := Validate(source)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "GOTO cannot reach label 'then_side'")
}

func TestValidateGotoOutwardFromNestedBlock(t *testing.T) {
	// Jumping outward to an enclosing list is fine; the interpreter
	// propagates the jump upward until the label resolves.
	source := `LABEL top
IF 1 > 0
  WHILE 1 > 2 DO
    GOTO top
  END_WHILE
END_IF`

	assert.Empty(t, Validate(source))
}

func TestValidateGotoWithinFunctionBody(t *testing.T) {
	source := `FUNCTION f()
  LABEL again
  GOTO again
END_FUNCTION`

	assert.Empty(t, Validate(source))
}

func TestValidateMalformedStatements(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		message string
	}{
		{"malformed LABEL", "LABEL 9lives", "malformed LABEL"},
		{"malformed GOTO", "GOTO two words", "malformed GOTO"},
		{"BREAK non-numeric", "BREAK abc", "malformed BREAK"},
		{"BREAK short code", "BREAK 99", "malformed BREAK"},
		{"TEST missing regex", `TEST "a" "b"`, "malformed TEST"},
		{"TEST invalid regex", `TEST /(/ "x"`, "invalid regex"},
		{"REQUIRED malformed", "REQUIRED mode", "malformed REQUIRED"},
		{"OPTIONAL malformed", "OPTIONAL 42", "malformed OPTIONAL"},
		{"GET missing INTO", "GET light.kitchen", "malformed GET"},
		{"SET missing expression", "SET $x =", "malformed SET"},
		{"CALL missing parens", "CALL light.turn_on", "malformed CALL"},
		{"unknown keyword", "EXPLODE now", "invalid keyword 'EXPLODE'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := Validate(tt.source)
			require.NotEmpty(t, diags)
			assert.Contains(t, strings.Join(diagnosticMessages(diags), "\n"), tt.message)
		})
	}
}

func TestValidateBareBreakAllowed(t *testing.T) {
	source := `WHILE 1 > 0 DO
  BREAK
END_WHILE`

	assert.Empty(t, Validate(source))
}

func TestValidateLineNumbersWithinSource(t *testing.T) {
	source := `PRINT "ok"
GOTO missing
BOGUS line
END_WHILE`

	total := len(strings.Split(source, "\n"))
	for _, d := range Validate(source) {
		assert.GreaterOrEqual(t, d.Line, 1)
		assert.LessOrEqual(t, d.Line, total)
	}
}

func TestValidateNeverEmptyOnGarbage(t *testing.T) {
	// Validation always returns a list, never panics.
	assert.NotNil(t, Validate(""))
	assert.Empty(t, Validate("# only comments\n\n"))
}

func TestSplitLinesJoinsIfConditions(t *testing.T) {
	source := `SET $a = 1
IF $a == 1 OR
   $a == 2 OR
   $a == 3
  PRINT "yes"
END_IF`

	lines := splitLines(source)
	require.Len(t, lines, 4)
	assert.Equal(t, "IF $a == 1 OR $a == 2 OR $a == 3", lines[1].text)
	assert.Equal(t, 2, lines[1].number)
	assert.Equal(t, 5, lines[2].number)
}

func TestSplitLinesNextLineOperator(t *testing.T) {
	source := `IF $a == 1
   AND $b == 2
  PRINT "both"
END_IF`

	lines := splitLines(source)
	require.Len(t, lines, 3)
	assert.Equal(t, "IF $a == 1 AND $b == 2", lines[0].text)
}

func TestSplitLinesStopsAtKeyword(t *testing.T) {
	source := `IF $a == 1
PRINT "body"
END_IF`

	lines := splitLines(source)
	require.Len(t, lines, 3)
	assert.Equal(t, "IF $a == 1", lines[0].text)
}
