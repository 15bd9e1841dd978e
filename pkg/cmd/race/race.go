//nolint:funlen // cobra commands
package race

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrpracing/racegarage/pkg/cmd/app"
	"github.com/xrpracing/racegarage/pkg/config"
	"github.com/xrpracing/racegarage/pkg/lifecycle"
)

func NewTrainCmd() *cobra.Command {
	var attrs []int
	cmd := &cobra.Command{
		Use:   "train",
		Short: "trains the selected car (pays the train fee)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				a.Present(cmd.OutOrStdout())
				res, err := a.Controller.Train(ctx, attrs)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "trained %s -> %s (training #%d)\n",
					res.PreviousCarID, res.CarID, res.TrainingCount)
				if len(res.TrainedAttributes) > 0 {
					fmt.Fprintf(out, "trained attributes: %v\n", res.TrainedAttributes)
				}
				if res.Message != "" {
					fmt.Fprintln(out, res.Message)
				}
				return nil
			}, app.WithBackend())
		},
	}
	cmd.Flags().IntSliceVar(&attrs, "attr", nil, "attribute index to train (repeatable, default all)")
	return cmd
}

func NewTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "tests the speed of the selected car",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				p := a.Present(cmd.OutOrStdout())
				reading, err := a.Controller.TestSpeed(ctx)
				if err != nil {
					return err
				}
				p.SpeedTest(reading)
				return nil
			}, app.WithBackend())
		},
	}
}

func NewRaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "race",
		Short: "enters a race with the selected car (pays the entry fee)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				p := a.Present(cmd.OutOrStdout())
				opts := lifecycle.RaceOptions{
					View:     ctx,
					Headless: config.NoAnimation,
				}
				if !config.NoAnimation {
					opts.OnFrame = p.Frame
				}
				summary, err := a.Controller.EnterRace(ctx, opts)
				if err != nil {
					return err
				}
				p.Summary(summary)
				return nil
			}, app.WithBackend())
		},
	}
	cmd.Flags().BoolVar(&config.NoAnimation, "no-animation", false,
		"compute the local race without real-time frames")
	return cmd
}

func NewLatestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "shows the latest race of the wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				p := a.Present(cmd.OutOrStdout())
				s, err := a.Controller.RefreshLatestRace(ctx)
				if err != nil {
					return err
				}
				if s == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "no races yet")
					return nil
				}
				p.Summary(s)
				return nil
			}, app.WithBackend())
		},
	}
}
