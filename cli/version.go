package cli

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/chunkr/chunkr/pkg/version"
)

func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build identification",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := yaml.Marshal(version.Get())
			if err != nil {
				return fmt.Errorf("cli: encode version: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
