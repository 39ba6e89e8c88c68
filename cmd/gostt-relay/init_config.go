package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-relay/internal/config"
)

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write the default config file if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path == "" {
				fmt.Fprintf(out, "Config already exists at %s\n", config.DefaultConfigPath())
				return nil
			}
			fmt.Fprintf(out, "Wrote default config to %s\n", path)
			return nil
		},
	}
}
