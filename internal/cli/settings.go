package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vvka-141/tripmerge/internal/config"
	"github.com/vvka-141/tripmerge/internal/logging"
	"github.com/vvka-141/tripmerge/internal/tui"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// loadSettings resolves the config file and environment. Flags are applied by each command.
func loadSettings(cmd *cobra.Command) (*config.FileConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Resolve(path)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("verbose"); f != nil && f.Changed {
		cfg.Log.Verbose, _ = cmd.Flags().GetBool("verbose")
	}
	if f := cmd.Flags().Lookup("log-format"); f != nil && f.Changed {
		cfg.Log.Format = f.Value.String()
	}
	return cfg, nil
}

// override copies a flag value into dst when the flag was set explicitly.
func override[T any](cmd *cobra.Command, name string, dst *T, value T) {
	if cmd.Flags().Changed(name) {
		*dst = value
	}
}

func newLogger(cfg *config.FileConfig) (*logging.ZapLogger, error) {
	logger, err := logging.NewZapLogger(cfg.Log.Verbose, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tripmerge.ErrInvalidConfig, err)
	}
	return logger, nil
}

// runContext bounds a command by timeout (zero means none) and cancels it on SIGINT/SIGTERM.
func runContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout > 0 {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		return tctx, func() { cancel(); stop() }
	}
	return ctx, stop
}

// terminalFor returns a styled terminal only when out is an interactive file.
func terminalFor(out io.Writer) tui.Terminal {
	if f, ok := out.(*os.File); ok {
		return tui.Detect(f)
	}
	return tui.Plain
}
