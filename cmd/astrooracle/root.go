package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "astrooracle",
		Short: "Stream a starship interpretation from the oracle backend",
		Long: `astrooracle computes the origin, celestial and inquiry starships through the
oracle backend and streams the combined interpretation to stdout.

Configuration is read from ASTRO_* environment variables, then from an
optional YAML file (--config), then from flags.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newDivineCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "astrooracle %s (commit: %s)\n", version, commit)
		},
	}
}
