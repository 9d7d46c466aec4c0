package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/loryanstrant/unifi-documenter/internal/orchestrator"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Document every controller once and exit",
		Long:  `Runs a single documentation pass. Exits non-zero when no controllers are configured or any controller failed.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := newApp(cfg, logger, nil)
			if err != nil {
				logger.Errorw("Failed to start", "error", err)
				return err
			}
			defer a.Close()

			result, err := a.orchestrator.Run(cmd.Context())
			if errors.Is(err, orchestrator.ErrNoControllers) {
				return &exitError{code: 1}
			}
			if err != nil {
				return err
			}
			if !result.OK() {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}
