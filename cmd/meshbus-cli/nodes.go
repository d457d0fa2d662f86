package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newNodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List connected nodes and gates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			nodes, err := client.ListNodes(ctx)
			if err != nil {
				return fmt.Errorf("failed to list nodes: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(nodes) == 0 {
				fmt.Fprintf(out, "No nodes connected\n")
				return nil
			}
			fmt.Fprintf(out, "Connected (%d):\n", len(nodes))
			for _, n := range nodes {
				kind := "node"
				if n.Gate {
					kind = "gate"
				}
				fmt.Fprintf(out, "  %-20s %s\n", n.Name, kind)
			}
			return nil
		},
	}
}
