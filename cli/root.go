package cli

import (
	"github.com/spf13/cobra"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "chunkr",
		Short:        "Split oversized files into bounded, format-aware chunks",
		SilenceUsage: true,
	}

	root.AddCommand(
		ProcessCmd(),
		VersionCmd(),
	)

	return root
}
