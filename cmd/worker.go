package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
}

var expiryWorkerCmd = &cobra.Command{
	Use:   "expiry",
	Short: "Deactivate expired grants on a schedule",
	Long:  `Sweep role memberships, permission grants and module assignments whose expiry has passed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startExpiryWorker()
	},
}

var (
	expirySchedule string
	expiryOnce     bool
)

func startExpiryWorker() error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	deps, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()
	lg := deps.Logger

	if expiryOnce {
		sweep, err := deps.Sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("deactivated %d permission grants, %d module assignments, %d role memberships\n",
			sweep.PermissionGrants, sweep.ModuleAssignments, sweep.RoleMemberships)
		return nil
	}

	schedule := expirySchedule
	if schedule == "" {
		schedule = cfg.Expiry.Schedule
	}
	if err := deps.Sweeper.Start(schedule); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	lg.Info("expiry worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	lg.Info("received signal, shutting down expiry worker", "signal", sig.String())

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	deps.Sweeper.Stop(stopCtx)
	if stopCtx.Err() != nil {
		lg.Warn("shutdown timeout reached, forcing exit")
	}
	return nil
}

func init() {
	expiryWorkerCmd.Flags().StringVar(&expirySchedule, "schedule", "", "cron spec (overrides config), e.g. @every 30s")
	expiryWorkerCmd.Flags().BoolVar(&expiryOnce, "once", false, "run a single sweep and exit")

	workerCmd.AddCommand(expiryWorkerCmd)
}
