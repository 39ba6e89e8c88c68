package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-relay/internal/backend"
)

func newProbeCmd(flags *rootFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Report whether the backend endpoint is reachable",
		Long: `probe test-connects the configured socket and prints one of:
  reachable  a backend is accepting connections
  stale      a socket file exists but nothing is listening
  missing    no socket file exists
The exit status is non-zero unless the endpoint is reachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			path := cfg.Backend.SocketPath
			state, err := backend.Inspect(cmd.Context(), path, timeout)
			if err != nil {
				return fmt.Errorf("inspecting %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, state)
			if state != backend.EndpointReachable {
				return fmt.Errorf("backend endpoint is %s", state)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "connect timeout")
	return cmd
}
