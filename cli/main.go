package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ankit-chaubey/flacgrab/core"
)

var logLevel string

func main() {
	root := &cobra.Command{
		Use:           "flacgrab",
		Short:         "Store the FLAC tracks a Volumio player streams, tagged and with cover art",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")

	root.AddCommand(newRunCommand(), newRewriteCommand(), newInspectCommand())

	if err := root.Execute(); err != nil {
		core.PrintError(err.Error())
		os.Exit(1)
	}
}

// setupLogging installs a text handler on stderr as the default logger.
func setupLogging(level string) error {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", level, err)
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})))
	return nil
}
