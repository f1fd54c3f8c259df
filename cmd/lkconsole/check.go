package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func checkCmd(o *globalOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the backend is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := o.openClient("")
			if err != nil {
				return err
			}
			defer h.cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res := h.client.Ping(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n  url: %s\n", res.Message, res.URL)
			if !res.Success {
				return fmt.Errorf("backend unreachable")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "probe timeout")
	return cmd
}
