package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/constellation-router/internal/emit"
	"github.com/signalsfoundry/constellation-router/internal/logging"
	"github.com/signalsfoundry/constellation-router/internal/observability"
	"github.com/signalsfoundry/constellation-router/internal/query"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		boltPath    string
		satellites  int
		addr        string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the forwarding state of a bbolt store written by a finished run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if boltPath == "" {
				boltPath = a.cfg.Output.Bolt
			}
			if boltPath == "" {
				return errors.New("--bolt is required")
			}
			if addr == "" {
				addr = a.cfg.Query.Addr
			}
			if addr == "" {
				return errors.New("--addr is required")
			}
			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			store, err := emit.OpenBoltStore(boltPath, satellites)
			if err != nil {
				return err
			}
			defer store.Close()

			shutdownTracing, err := observability.InitTracing(ctx, a.cfg.Tracing, observability.RunResource{
				Component:  "serve",
				Satellites: store.NumSatellites(),
			}, a.log)
			if err != nil {
				return err
			}
			defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, a.log)

			collector, err := observability.NewQueryCollector(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer shutdownMetrics(serveMetrics(metricsAddr, collector.Handler(), a.log))

			bound, stopQuery, err := serveGRPC(addr, query.NewServer(store, a.log, collector), a.log)
			if err != nil {
				return err
			}
			defer stopQuery()

			a.log.Info(ctx, "serving forwarding state",
				logging.String("bolt", boltPath),
				logging.String("addr", bound.String()),
			)
			<-ctx.Done()
			a.log.Info(ctx, "shutting down query server")
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&boltPath, "bolt", "", "bbolt store written by run")
	fl.IntVar(&satellites, "satellites", 0, "number of satellites the store was written for")
	fl.StringVar(&addr, "addr", "", "gRPC listen address")
	fl.StringVar(&metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics")
	return cmd
}
