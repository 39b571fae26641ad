package main

import (
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/constellation-router/internal/config"
	"github.com/signalsfoundry/constellation-router/internal/logging"
)

type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
	log logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "satroute",
		Short:        "Per-step routing plane of a satellite constellation simulator",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML run configuration")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&a.logFormat, "log-format", "", "text or json")

	root.AddCommand(
		newRunCmd(a),
		newReplayCmd(a),
		newLookupCmd(a),
		newServeCmd(a),
	)
	return root
}

// init loads the configuration: defaults, then the config file, then the
// environment, then persistent flags.
func (a *app) init(cmd *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	a.cfg = cfg

	lc := cfg.Logging()
	lc.Output = cmd.ErrOrStderr()
	a.log = logging.New(lc).With(logging.String("command", cmd.Name()))
	return nil
}
