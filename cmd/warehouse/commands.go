package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/channel-warehouse/internal/report"
)

var errOrphanFacts = errors.New("fact rows with unresolved dimension keys")

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect new messages from the configured channels into the raw store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, rep *report.RunReport) error {
			res, err := a.collect(ctx)
			rep.Collect = res
			return err
		})
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Append every data lake batch to the raw store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, rep *report.RunReport) error {
			res, err := a.load(ctx, flagSample)
			rep.Load = res
			return err
		})
	},
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the channel and date dimensions and load new facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, rep *report.RunReport) error {
			res, err := a.build(ctx)
			rep.Build = res
			return err
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect, then build the warehouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, rep *report.RunReport) error {
			res, err := a.collect(ctx)
			rep.Collect = res
			if err != nil {
				return err
			}
			if flagSample {
				if rep.Load, err = a.load(ctx, true); err != nil {
					return err
				}
			}
			rep.Build, err = a.build(ctx)
			return err
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Print row counts, orphan checks and samples of the warehouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, flagDryRun)
		if err != nil {
			return err
		}
		defer a.Close()
		return verify(cmd, a)
	},
}

func init() {
	runCmd.Flags().BoolVar(&flagSample, "sample", false, "also load the lake, seeding it with the sample batch when empty")
}

// withApp opens the app, runs fn under the run lock and prints the report,
// including for a run that failed part way.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app, rep *report.RunReport) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, flagDryRun)
	if err != nil {
		return err
	}
	defer a.Close()
	return execute(cmd, a, fn)
}

func execute(cmd *cobra.Command, a *app, fn func(ctx context.Context, a *app, rep *report.RunReport) error) error {
	rep := newRunReport()
	runErr := a.exclusive(cmd.Context(), func(ctx context.Context) error {
		return fn(ctx, a, &rep)
	})
	rep.FinishedAt = time.Now()

	report.LogRun(rep)
	out, err := a.renderer.RenderRun(rep)
	if err != nil {
		return errors.Join(runErr, err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return runErr
}

func verify(cmd *cobra.Command, a *app) error {
	v, err := report.Verify(cmd.Context(), a.store)
	if err != nil {
		return err
	}
	out, err := a.renderer.RenderVerify(v)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	if !v.OK() {
		return fmt.Errorf("%w: %d", errOrphanFacts, v.Orphans)
	}
	return nil
}
