package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/constellation-router/internal/query"
)

func newLookupCmd(a *app) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "lookup <src> <dst>",
		Short: "Query the forwarding entries of a node pair from a running query service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("src: %w", err)
			}
			dst, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("dst: %w", err)
			}
			if addr == "" {
				addr = a.cfg.Query.Addr
			}

			client, conn, err := query.Dial(addr)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			res, err := client.Lookup(ctx, src, dst)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "step %d: %d -> %d\n", res.StepNs, src, dst)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tNEXT_HOP\tLOCAL_IF\tREMOTE_IF")
			for _, r := range res.Records {
				if r.IsDrop() {
					fmt.Fprintf(w, "%d\tdrop\t-\t-\n", r.PathID)
					continue
				}
				fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", r.PathID, r.NextHop, r.LocalInterface, r.RemoteInterface)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "query service address (defaults to query.addr of the config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}
