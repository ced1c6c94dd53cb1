package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"triage/internal/usecase"
)

var workerOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Classify pending tickets on a schedule",
	Long: `Sweep tickets left in the pending state (submitted with --async, or
orphaned by a crash) and classify them. The schedule is worker.sweep_schedule,
a cron expression with an optional seconds field or a descriptor such as
"@every 1m". Stops on SIGINT or SIGTERM after running classifications finish.

Examples:
  triage worker
  triage worker --once`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "sweep once and exit")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	sweeper, err := usecase.NewSweeper(a.service, cfg.Worker.SweepSchedule, cfg.Worker.SweepBatch, a.logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if workerOnce {
		n, err := sweeper.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Dispatched %d pending tickets\n", n)
		printFinOps(out, a.service.Stats(), 0)
		return nil
	}

	// pick up leftovers before waiting for the first tick
	if _, err := sweeper.RunOnce(ctx); err != nil {
		a.logger.Error("initial sweep failed", zap.Error(err))
	}
	err = sweeper.Run(ctx)
	a.logger.Info("worker stopping", zap.Any("stats", a.service.Stats()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
