package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/loryanstrant/unifi-documenter/internal/controller"
	"github.com/loryanstrant/unifi-documenter/internal/health"
	"github.com/loryanstrant/unifi-documenter/internal/version"
)

func newHealthCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the configuration and print a JSON health report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			report := health.Check(cfg, version.Version)
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Healthy() {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

func newConnectivityCmd(root *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check-connectivity",
		Short: "Contact every controller and print a JSON connectivity report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			factory := controller.NewFactory(controller.OptionsFromConfig(cfg.HTTP))
			checker := health.NewChecker(factory, logger, health.WithProbeTimeout(timeout))

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			report := checker.Connectivity(ctx, cfg.Controllers)
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.AllReachable() {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", health.DefaultProbeTimeout, "TCP probe timeout per controller")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
