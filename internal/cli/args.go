package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// RequireArgs validates that exactly the named positional arguments are provided.
// A missing argument is a usage error with the usage line and an example.
func RequireArgs(example string, names ...string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < len(names) {
			missing := make([]string, 0, len(names)-len(args))
			for _, n := range names[len(args):] {
				missing = append(missing, "<"+n+">")
			}
			return fmt.Errorf(`%w: missing required argument: %s

Usage: %s

Example:
  %s`, tripmerge.ErrUsage, strings.Join(missing, " "), cmd.UseLine(), example)
		}
		if len(args) > len(names) {
			return fmt.Errorf("%w: accepts %d arg(s), received %d", tripmerge.ErrUsage, len(names), len(args))
		}
		for i, a := range args {
			if strings.TrimSpace(a) == "" {
				return fmt.Errorf("%w: <%s> must not be empty", tripmerge.ErrUsage, names[i])
			}
		}
		return nil
	}
}
