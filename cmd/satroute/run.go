package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/constellation-router/core"
	"github.com/signalsfoundry/constellation-router/internal/config"
	"github.com/signalsfoundry/constellation-router/internal/emit"
	"github.com/signalsfoundry/constellation-router/internal/logging"
	"github.com/signalsfoundry/constellation-router/internal/observability"
	"github.com/signalsfoundry/constellation-router/internal/query"
	"github.com/signalsfoundry/constellation-router/kb"
	"github.com/signalsfoundry/constellation-router/timectrl"
)

type runFlags struct {
	out         string
	policy      string
	homing      int
	symmetric   bool
	unfilled    string
	workers     int
	cadence     time.Duration
	duration    time.Duration
	mode        string
	noFiles     bool
	bolt        string
	sqlite      string
	retries     int
	metricsAddr string
	queryAddr   string
	runID       string
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [scenario.yaml]",
		Short: "Compute and emit the forwarding state of every scenario step",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if len(args) == 1 {
				cfg.Scenario = args[0]
			}
			f.apply(cmd, cfg)
			if cfg.Scenario == "" {
				return errors.New("no scenario given")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runScenario(ctx, cfg, f.runID, a.log, cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.out, "out", "", "directory for fstate and bandwidth files")
	fl.StringVar(&f.policy, "policy", "", "forwarding policy: single, multipath, multi-best or gs-relay")
	fl.IntVar(&f.homing, "homing", 0, "attachments per ground station (0 uses the policy default)")
	fl.BoolVar(&f.symmetric, "symmetric", false, "deliver directly from every destination attachment (multipath)")
	fl.StringVar(&f.unfilled, "unfilled", "", "bandwidth of unfilled ground station slots: zero or drain")
	fl.IntVar(&f.workers, "workers", 0, "shortest path workers (0 uses GOMAXPROCS)")
	fl.DurationVar(&f.cadence, "cadence", 0, "step cadence")
	fl.DurationVar(&f.duration, "duration", 0, "run length (0 visits every scenario step)")
	fl.StringVar(&f.mode, "mode", "", "clock mode: realtime or accelerated")
	fl.BoolVar(&f.noFiles, "no-files", false, "do not write record files")
	fl.StringVar(&f.bolt, "bolt", "", "bbolt file holding the live forwarding table")
	fl.StringVar(&f.sqlite, "sqlite", "", "SQLite archive of every step")
	fl.IntVar(&f.retries, "retries", 0, "emission retries per step")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics")
	fl.StringVar(&f.queryAddr, "query-addr", "", "gRPC address of the forwarding state query service")
	fl.StringVar(&f.runID, "run-id", "", "run id (random when empty)")
	return cmd
}

// apply copies explicitly set flags over cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("out") {
		cfg.Output.Dir = f.out
	}
	if changed("policy") {
		cfg.Routing.Policy = f.policy
	}
	if changed("homing") {
		cfg.Routing.Homing = f.homing
	}
	if changed("symmetric") {
		cfg.Routing.Symmetric = f.symmetric
	}
	if changed("unfilled") {
		cfg.Routing.Unfilled = f.unfilled
	}
	if changed("workers") {
		cfg.Routing.Workers = f.workers
	}
	if changed("cadence") {
		cfg.Clock.Cadence = f.cadence
	}
	if changed("duration") {
		cfg.Clock.Duration = f.duration
	}
	if changed("mode") {
		cfg.Clock.Mode = f.mode
	}
	if changed("no-files") {
		cfg.Output.Files = !f.noFiles
	}
	if changed("bolt") {
		cfg.Output.Bolt = f.bolt
	}
	if changed("sqlite") {
		cfg.Output.SQLite = f.sqlite
	}
	if changed("retries") {
		cfg.Output.Retries = f.retries
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if changed("query-addr") {
		cfg.Query.Addr = f.queryAddr
	}
}

func runScenario(ctx context.Context, cfg *config.Config, runID string, log logging.Logger, out io.Writer) error {
	k := kb.NewKnowledgeBase()
	sc, err := loadScenario(k, cfg.Scenario)
	if err != nil {
		return err
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("scenario %s has no steps", cfg.Scenario)
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, observability.RunResource{
		Component:      "run",
		RunID:          runID,
		Policy:         policy.Name(),
		Satellites:     sc.Satellites,
		GroundStations: sc.GroundStations,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	steps, err := observability.NewStepCollector(reg)
	if err != nil {
		return fmt.Errorf("init step metrics: %w", err)
	}
	queries, err := observability.NewQueryCollector(reg)
	if err != nil {
		return fmt.Errorf("init query metrics: %w", err)
	}
	queries.SetConstellationCounts(sc.Satellites, sc.GroundStations)
	defer shutdownMetrics(serveMetrics(cfg.Metrics.Addr, queries.Handler(), log))

	log = log.With(logging.String("run_id", runID))

	sink, closeSinks, err := openSinks(ctx, cfg, sc.Satellites, runID, policy.Name(), log)
	if err != nil {
		return err
	}
	defer closeSinks()

	engine, err := core.NewEngine(k, policy,
		core.WithLogger(log),
		core.WithMetrics(steps),
		core.WithEmitter(emit.NewEmitter(sink, policy.TagsPaths(), log)),
		core.WithWorkers(cfg.Routing.Workers),
		core.WithUnfilledPolicy(cfg.UnfilledPolicy()),
		core.WithRunID(runID),
	)
	if err != nil {
		return err
	}
	defer engine.Close()

	if cfg.Query.Addr != "" {
		_, stopQuery, err := serveGRPC(cfg.Query.Addr, query.NewServer(query.FromEngine(engine), log, queries), log)
		if err != nil {
			return fmt.Errorf("listen for queries: %w", err)
		}
		defer stopQuery()
	}

	duration := cfg.Clock.Duration
	if duration == 0 {
		duration = sc.Duration(cfg.Clock.Cadence)
	}
	tc := timectrl.NewTimeController(time.Unix(0, 0).UTC(), cfg.Clock.Cadence, cfg.ClockMode())

	emitted := 0
	tick := engine.TickListener(sc, cfg.Output.Retries, cfg.Output.Backoff)
	tc.AddListener(func(ctx context.Context, elapsed time.Duration) error {
		err := tick(ctx, elapsed)
		if errors.Is(err, core.ErrNoStepInput) {
			log.Debug(ctx, "no scenario step yet", logging.String("elapsed", elapsed.String()))
			return nil
		}
		if err == nil {
			emitted++
		}
		return err
	})

	log.Info(ctx, "starting routing run",
		logging.String("scenario", cfg.Scenario),
		logging.String("policy", policy.Name()),
		logging.Bool("symmetric", cfg.Routing.Symmetric),
		logging.Int("satellites", sc.Satellites),
		logging.Int("ground_stations", sc.GroundStations),
		logging.String("cadence", cfg.Clock.Cadence.String()),
		logging.String("duration", duration.String()),
		logging.String("mode", tc.Mode.String()),
	)
	if err := tc.Run(ctx, duration); err != nil {
		return err
	}

	fmt.Fprintf(out, "run %s: %d steps emitted", runID, emitted)
	if latest := engine.Latest(); latest != nil {
		fmt.Fprintf(out, ", last step %d with %d entries (%d drops)", latest.TimeNs, latest.Table.Len(), latest.Table.Drops())
	}
	fmt.Fprintln(out)
	return nil
}

func loadScenario(k *kb.KnowledgeBase, path string) (*core.Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return core.LoadScenario(k, f)
}

// openSinks builds the configured sinks. The returned closer releases them
// in reverse order.
func openSinks(ctx context.Context, cfg *config.Config, numSatellites int, runID, policy string, log logging.Logger) (emit.Sink, func(), error) {
	var sinks emit.MultiSink
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn(ctx, "failed to close sink", logging.Err(err))
			}
		}
	}

	if cfg.Output.Files {
		files, err := emit.NewFileSink(cfg.Output.Dir)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, files)
	}
	if cfg.Output.Bolt != "" {
		store, err := emit.OpenBoltStore(cfg.Output.Bolt, numSatellites)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open bolt store: %w", err)
		}
		sinks = append(sinks, store)
		closers = append(closers, store.Close)
	}
	if cfg.Output.SQLite != "" {
		archive, err := emit.NewSQLiteArchive(ctx, cfg.Output.SQLite, runID, policy, log)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open archive: %w", err)
		}
		sinks = append(sinks, archive)
		closers = append(closers, archive.Close)
	}
	return sinks, closeAll, nil
}
