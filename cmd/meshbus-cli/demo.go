package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/meshbus-go/pkg/failure"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/httpclient"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

func newDemoCommand() *cobra.Command {
	var gateName string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Exercise the built-in services of a server",
		Long: `Call the echo and calc services of a meshbus server, then show how a
refusal and an unreachable destination are reported. With --gate the calls go
to the services of the network behind that gate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.OutOrStdout(), gateName)
		},
	}

	cmd.Flags().StringVar(&gateName, "gate", "", "Reach the services through this gate")
	return cmd
}

type demoStep struct {
	title   string
	to      network.Selector
	topic   string
	data    any
	refused bool
}

func runDemo(out io.Writer, gateName string) error {
	service := func(name string) network.Selector {
		if gateName != "" {
			return network.Via(gateName, name)
		}
		return network.Node(name)
	}

	steps := []demoStep{
		{title: "echo a greeting", to: service("echo"), topic: "echo", data: map[string]any{"greeting": "hello"}},
		{title: "sum a list", to: service("calc"), topic: "sum", data: []int{1, 2, 3, 4, 5}},
		{title: "sum a word", to: service("calc"), topic: "sum", data: "five", refused: true},
		{title: "call a missing node", to: service("nobody"), topic: "echo", data: "anyone?", refused: true},
	}

	for i, step := range steps {
		fmt.Fprintf(out, "%d. %s (%s on '%s')\n", i+1, step.title, describe(step.to), step.topic)
		if err := runStep(out, step); err != nil {
			return fmt.Errorf("demo step %d: %w", i+1, err)
		}
	}
	fmt.Fprintf(out, "✅ Demo completed\n")
	return nil
}

func runStep(out io.Writer, step demoStep) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := client.Send(ctx, step.to, step.topic, step.data, "")
	var apiErr *httpclient.APIError
	switch {
	case err == nil:
		fmt.Fprintf(out, "   reply from %s: ", resp.From)
		return printJSON(out, resp.Data)
	case step.refused && errors.As(err, &apiErr) && apiErr.Refusal() != nil:
		refusal := apiErr.Refusal()
		fmt.Fprintf(out, "   refused (%s): %s\n", refusal.Kind, refusal.Message)
		if errors.Is(refusal, failure.ErrDisconnected) {
			fmt.Fprintf(out, "   nothing listens there\n")
		}
		return nil
	default:
		return err
	}
}

func describe(sel network.Selector) string {
	if len(sel) == 1 {
		return sel[0].String()
	}
	return fmt.Sprint(sel)
}
