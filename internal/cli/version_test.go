package cli

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand_ReportsLdflagsBuild(t *testing.T) {
	origV, origC, origD := version, commit, date
	defer func() { version, commit, date = origV, origC, origD }()
	version, commit, date = "v0.4.1", "9f8e7d6c5b4a", "2026-10-01T12:00:00Z"

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("tripmerge v0.4.1 (9f8e7d6c5b4a, 2026-10-01T12:00:00Z) %s/%s\n", runtime.GOOS, runtime.GOARCH), out)
}

func TestVersionCommand_RejectsArguments(t *testing.T) {
	_, err := execute(t, "version", "extra")
	assert.Error(t, err)
}

func TestResolveVersionInfo_DevBuildNeverEmpty(t *testing.T) {
	origV, origC, origD := version, commit, date
	defer func() { version, commit, date = origV, origC, origD }()
	version, commit, date = "dev", "unknown", "unknown"

	v, c, d := resolveVersionInfo()
	assert.NotEmpty(t, v)
	assert.NotEmpty(t, c)
	assert.NotEmpty(t, d)
	assert.LessOrEqual(t, len(c), 12, "commits are abbreviated")
}
