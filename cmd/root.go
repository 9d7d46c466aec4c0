package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loryanstrant/unifi-documenter/internal/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	serve := newServeCmd(opts)

	root := &cobra.Command{
		Use:   "unifi-documenter",
		Short: "Generate documentation for UniFi network controllers",
		Long: `Connects to one or more UniFi controllers on a daily schedule and writes
a document per controller describing its sites, networks, devices and clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default searches ./config.yaml and /etc/unifi-documenter/config.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		serve,
		newRunCmd(opts),
		newHealthCmd(opts),
		newConnectivityCmd(opts),
		newVersionCmd(),
	)
	return root
}

// bootstrap loads the configuration and builds the logger from it.
func (o *rootOptions) bootstrap() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Logging, o.verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.Sugar(), nil
}
