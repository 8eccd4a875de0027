package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ankit-chaubey/flacgrab/core"
	"github.com/ankit-chaubey/flacgrab/core/audio"
)

func newInspectCommand() *cobra.Command {
	var jsonOut, verbose bool
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show the metadata blocks and tags of an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			format, err := core.DetectFormat(path)
			if err != nil {
				return err
			}
			if core.MediaTypeFor(format) != "audio" {
				return fmt.Errorf("%s: not an audio file (detected %s)", path, format)
			}
			h := audio.New(format)
			m, err := h.View(path)
			if err != nil {
				return err
			}
			p := core.NewPrinter(jsonOut, verbose)
			p.Writer = cmd.OutOrStdout()
			if err := p.PrintMetadata(m); err != nil {
				return err
			}
			if verbose {
				p.PrintInfo("Note: " + h.Info().Notes)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Mark the fields a retag replaces")
	return cmd
}
