package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"devloop/internal/orch"
	"devloop/pkg/agent/middleware/metrics"
	"devloop/pkg/logx"
)

type runFlags struct {
	taskID string
	dryRun bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one backlog task end to end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTask(cmd, g, f)
		},
	}
	cmd.Flags().StringVar(&f.taskID, "task", "", "task ID to run (default: next eligible task)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "converge and check without branching or committing")
	return cmd
}

func runTask(cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	dir, cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if err := unlockSecrets(cmd, dir); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logx.NewLogger("devloop")
	recorder := metrics.Nop()
	if addr := cfg.Metrics.ListenAddr; addr != "" {
		reg := prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		srv := newMetricsServer(addr, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server: %v", err)
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
		logger.Info("serving metrics on %s", addr)
	}

	o, err := orch.New(orch.Options{RepoDir: dir, Config: cfg, Recorder: recorder})
	if err != nil {
		return err
	}
	report, err := o.RunTask(ctx, orch.RunOptions{TaskID: f.taskID, DryRun: f.dryRun})
	if errors.Is(err, orch.ErrNoTask) {
		fmt.Fprintln(cmd.OutOrStdout(), "No eligible task.")
		return nil
	}
	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}
	return err
}

func printReport(w io.Writer, r *orch.Report) {
	fmt.Fprintf(w, "Task:    %s %s\n", r.Task.ID, r.Task.Title)
	fmt.Fprintf(w, "Status:  %s\n", r.Status)
	fmt.Fprintf(w, "Rounds:  %d\n", r.Rounds)
	if r.LogDir != "" {
		fmt.Fprintf(w, "Logs:    %s\n", r.LogDir)
	}
	if r.Commit != nil {
		fmt.Fprintf(w, "Commit:  %s on %s\n", r.Commit.Head, r.Commit.Branch)
	}
	if u := r.Usage; u != nil {
		fmt.Fprintf(w, "Usage:   %d requests, %d tokens, $%.4f\n", u.RequestCount, u.TotalTokens, u.TotalCost)
	}
	if r.Problem != "" {
		fmt.Fprintf(w, "Problem: %s\n", r.Problem)
	}
}
