package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/acoustic-workbench-api/internal/app"
	"github.com/noah-isme/acoustic-workbench-api/pkg/config"
	"github.com/noah-isme/acoustic-workbench-api/pkg/logger"
)

// session carries the application built by the root command's pre-run.
type session struct {
	app    *app.App
	logger *zap.Logger
}

func rootCommand() *cobra.Command {
	s := &session{}

	root := &cobra.Command{
		Use:           "harvester",
		Short:         "Harvest uploaded audio into recordings",
		SilenceUsage:  true,
	}
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logr, err := logger.New(cfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		a, err := app.New(cfg, logr)
		if err != nil {
			return err
		}
		s.app, s.logger = a, logr
		return nil
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if s.app != nil {
			s.app.Close()
		}
		if s.logger != nil {
			_ = s.logger.Sync()
		}
	}

	root.AddCommand(scanCommand(s), harvestCommand(s), workerCommand(s), cleanupCommand(s))
	return root
}

func scanCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [harvest-id]",
		Short: "Scan a harvest's upload directory and gather item metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseHarvestID(args[0])
			if err != nil {
				return err
			}
			report, err := s.app.InlineHarvests(cmd.Context()).Scan(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func harvestCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "harvest [harvest-id]",
		Short: "Import every pending item of a harvest as a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseHarvestID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			// delete jobs scheduled by the harvester need a running queue
			s.app.StartWorkers(ctx)
			defer s.app.StopWorkers()

			harvests := s.app.InlineHarvests(ctx)
			queued, err := harvests.Harvest(ctx, id)
			if err != nil {
				return err
			}
			summary, _, err := harvests.Summary(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"processed": queued, "summary": summary})
		},
	}
}

func workerCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume harvest and delete jobs until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s.app.StartWorkers(ctx)
			s.logger.Sugar().Infow("harvest workers started", "concurrency", s.app.Config.Harvest.WorkerConcurrency)
			<-ctx.Done()
			s.app.StopWorkers()
			s.logger.Sugar().Infow("harvest workers stopped")
			return nil
		},
	}
}

func cleanupCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup [harvest-id]",
		Short: "Delete the uploaded originals of completed items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseHarvestID(args[0])
			if err != nil {
				return err
			}
			n, err := s.app.CleanupOriginals(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"harvest_id": id, "cleaned": n})
		},
	}
}

func parseHarvestID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid harvest id %q", raw)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
