package main

import (
	"fmt"
	"os"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generate the readaloud manpage",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		page, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return fmt.Errorf("unable to build manpage: %w", err)
		}
		page = page.WithSection("Remote control", "Start with --listen ADDR and send JSON commands over a websocket:\n"+
			`{"action": "readOutLoud", "text": "optional"}, {"action": "pause"}, {"action": "resume"} or {"action": "stop"}.`)

		_, err = fmt.Fprint(os.Stdout, page.Build(roff.NewDocument()))
		return err //nolint:wrapcheck
	},
}
