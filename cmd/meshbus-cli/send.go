package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

func newSendCommand() *cobra.Command {
	var (
		to      string
		topic   string
		data    string
		wait    string
		noReply bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a call and print the first answer",
		Long: `Send a call through the server's HTTP node. The data should be valid JSON.

The destination is either JSON ("calc", {"gate":"east","node":"calc"} or an
array of those) or a comma separated list of names, where gate/node goes
through a gate and * matches every listener.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.OutOrStdout(), to, topic, data, wait, noReply)
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Destination (required)")
	cmd.Flags().StringVar(&topic, "topic", "", "Topic to send on (required)")
	cmd.Flags().StringVar(&data, "data", "", "Call data as JSON")
	cmd.Flags().StringVar(&wait, "wait", "", "How long the server waits for an answer, e.g. 2s")
	cmd.Flags().BoolVar(&noReply, "no-reply", false, "Do not wait for an answer")
	for _, name := range []string{"to", "topic"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("Failed to mark %s as required: %v", name, err))
		}
	}

	return cmd
}

func runSend(out io.Writer, toStr, topic, dataStr, wait string, noReply bool) error {
	to, err := parseSelector(toStr)
	if err != nil {
		return err
	}

	var data any
	if dataStr != "" {
		if err := json.Unmarshal([]byte(dataStr), &data); err != nil {
			return fmt.Errorf("invalid JSON data: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if noReply {
		if _, err := client.Notify(ctx, to, topic, data); err != nil {
			return fmt.Errorf("failed to send: %w", err)
		}
		fmt.Fprintf(out, "✅ Sent to %s on '%s'\n", toStr, topic)
		return nil
	}

	resp, err := client.Send(ctx, to, topic, data, wait)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "✅ Reply from %s:\n", resp.From)
	return printJSON(out, resp.Data)
}

// parseSelector reads a destination written as JSON or as comma separated
// names, gate/node going through a gate.
func parseSelector(s string) (network.Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("destination is required")
	}

	switch s[0] {
	case '"', '{', '[':
		var sel network.Selector
		if err := json.Unmarshal([]byte(s), &sel); err != nil {
			return nil, fmt.Errorf("invalid destination: %w", err)
		}
		return sel, nil
	}

	var parts []network.Selector
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		gateName, node, gated := strings.Cut(part, "/")
		if !gated {
			parts = append(parts, network.Node(part))
			continue
		}
		if gateName == "" || node == "" {
			return nil, fmt.Errorf("invalid destination %q, expected gate/node", part)
		}
		parts = append(parts, network.Via(gateName, node))
	}
	if len(parts) == 0 {
		return nil, errors.New("destination is required")
	}
	return network.Join(parts...), nil
}

func printJSON(out io.Writer, v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format reply: %w", err)
	}
	fmt.Fprintf(out, "%s\n", buf)
	return nil
}
