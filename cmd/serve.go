package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loryanstrant/unifi-documenter/internal/api"
	"github.com/loryanstrant/unifi-documenter/internal/config"
	"github.com/loryanstrant/unifi-documenter/internal/health"
	"github.com/loryanstrant/unifi-documenter/internal/scheduler"
	"github.com/loryanstrant/unifi-documenter/internal/version"
)

const shutdownTimeout = 30 * time.Second

// program implements service.Interface.
type program struct {
	app    *app
	sched  *scheduler.Scheduler
	server *http.Server
	logger *zap.SugaredLogger
	cancel context.CancelFunc
}

// Start must not block.
func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	if err := p.sched.Start(ctx); err != nil {
		cancel()
		return err
	}

	if p.server != nil {
		go func() {
			p.logger.Infow("HTTP server listening", "addr", p.server.Addr)
			if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				p.logger.Errorw("HTTP server error", "error", err)
			}
		}()
	}
	return nil
}

// Stop waits for an in-flight run to finish before returning.
func (p *program) Stop(service.Service) error {
	p.logger.Infow("Shutting down")

	if p.cancel != nil {
		p.cancel()
	}
	p.sched.Stop()

	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := p.server.Shutdown(ctx); err != nil {
			p.logger.Errorw("Server forced to shutdown", "error", err)
		}
	}

	p.app.Close()
	p.logger.Infow("Service stopped")
	return nil
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var serviceAction string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and HTTP API",
		Long: `Runs one documentation pass immediately, then once a day at the configured
time. Can be installed as a system service with --service install.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svcConfig, err := serviceConfig(root)
			if err != nil {
				return err
			}

			if serviceAction != "" {
				if !slices.Contains(service.ControlAction[:], serviceAction) {
					return fmt.Errorf("unknown service action %q, expected one of %v", serviceAction, service.ControlAction)
				}
				s, err := service.New(&program{}, svcConfig)
				if err != nil {
					return err
				}
				if err := service.Control(s, serviceAction); err != nil {
					return fmt.Errorf("failed to %s service: %w", serviceAction, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service action '%s' completed successfully.\n", serviceAction)
				return nil
			}

			cfg, logger, err := root.bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			prg, err := newProgram(cfg, logger)
			if err != nil {
				logger.Errorw("Failed to start", "error", err)
				return err
			}

			s, err := service.New(prg, svcConfig)
			if err != nil {
				return err
			}
			logger.Infow("Starting UniFi documentation service", "version", version.Version)
			return s.Run()
		},
	}

	cmd.Flags().StringVar(&serviceAction, "service", "", "service action: start, stop, restart, install, uninstall")
	return cmd
}

func serviceConfig(root *rootOptions) (*service.Config, error) {
	args := []string{"serve"}
	if root.configPath != "" {
		path, err := filepath.Abs(root.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		args = append(args, "--config", path)
	}
	if root.verbose {
		args = append(args, "--verbose")
	}
	return &service.Config{
		Name:        "unifi-documenter",
		DisplayName: "UniFi Documenter",
		Description: "Generates daily documentation for UniFi network controllers",
		Arguments:   args,
	}, nil
}

func newProgram(cfg *config.Config, logger *zap.SugaredLogger) (*program, error) {
	hour, minute, err := cfg.ScheduleClock()
	if err != nil {
		return nil, err
	}

	var sched *scheduler.Scheduler
	a, err := newApp(cfg, logger, func(t time.Time) time.Time { return sched.Next(t) })
	if err != nil {
		return nil, err
	}

	sched, err = scheduler.New(scheduler.Options{
		Timezone:     cfg.Timezone,
		Hour:         hour,
		Minute:       minute,
		MisfireGrace: cfg.MisfireGrace,
	}, func(ctx context.Context) error {
		_, err := a.orchestrator.Run(ctx)
		return err
	}, logger, scheduler.WithSkipRecorder(a.metrics))
	if err != nil {
		a.Close()
		return nil, err
	}

	prg := &program{
		app:    a,
		sched:  sched,
		logger: logger,
	}

	if cfg.Server.Port > 0 {
		checker := health.NewChecker(a.factory, logger)
		server := api.New(cfg, version.Version, sched, a.orchestrator, checker, a.metrics.Handler(), logger)
		prg.server = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      server.Router(),
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:  60 * time.Second,
		}
	}
	return prg, nil
}
