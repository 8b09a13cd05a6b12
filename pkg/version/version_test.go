package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGitCommitShape(t *testing.T) {
	assert.NotEmpty(t, GitCommit)
	assert.LessOrEqual(t, len(GitCommit), 8)
}

func TestFull(t *testing.T) {
	assert.True(t, strings.HasPrefix(Full(), AppName+"/"))
	assert.Contains(t, Full(), GitCommit)
}
