package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

func TestRequireArgs(t *testing.T) {
	cmd := &cobra.Command{Use: "load <bucket> <project> <dataset>"}
	validate := RequireArgs("tripmerge load b p d", "bucket", "project", "dataset")

	t.Run("missing arguments are named", func(t *testing.T) {
		err := validate(cmd, []string{"b"})
		require.Error(t, err)
		assert.ErrorIs(t, err, tripmerge.ErrUsage)
		assert.Contains(t, err.Error(), "missing required argument: <project> <dataset>")
		assert.Contains(t, err.Error(), "Example:")
	})

	t.Run("exact arguments pass", func(t *testing.T) {
		assert.NoError(t, validate(cmd, []string{"b", "p", "d"}))
	})

	t.Run("too many arguments", func(t *testing.T) {
		err := validate(cmd, []string{"b", "p", "d", "x"})
		assert.ErrorIs(t, err, tripmerge.ErrUsage)
		assert.Contains(t, err.Error(), "accepts 3 arg(s)")
	})

	t.Run("blank argument", func(t *testing.T) {
		err := validate(cmd, []string{"b", " ", "d"})
		assert.ErrorIs(t, err, tripmerge.ErrUsage)
		assert.Contains(t, err.Error(), "<project>")
	})
}
