//nolint:funlen // cobra commands
package garage

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrpracing/racegarage/pkg/cmd/app"
)

func NewGarageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "garage",
		Short: "manage the cars of the wallet",
	}
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newSelectCmd())
	cmd.AddCommand(newSellCmd())
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "lists the cars",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				cars, err := a.Controller.Garage(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(cars) == 0 {
					fmt.Fprintln(out, "no cars yet, use 'rgc garage create'")
					return nil
				}
				selected := a.Controller.State().SelectedCar
				for _, c := range cars {
					marker := " "
					if c.ID == selected {
						marker = "*"
					}
					fmt.Fprintf(out, "%s %-40s trained %2dx  created %s\n",
						marker, c.ID, c.TrainingCount, c.CreatedAt)
				}
				return nil
			}, app.WithBackend())
		},
	}
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "creates a new car",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				car, err := a.Controller.CreateCar(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created car %s\n", car.ID)
				return nil
			}, app.WithBackend())
		},
	}
}

func newSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <car-id>",
		Short: "selects the car used for training and races",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				return a.Controller.SelectCar(ctx, args[0])
			})
		},
	}
}

func newSellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sell [car-id]",
		Short: "sells a car (default: the selected car)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			carID := ""
			if len(args) == 1 {
				carID = args[0]
			}
			return app.Run(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Controller.SellCar(ctx, carID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\nrefund: %s XRP\n", res.Message, res.Refund)
				if sel := a.Controller.State().SelectedCar; sel != "" {
					fmt.Fprintf(out, "selected car: %s\n", sel)
				}
				return nil
			}, app.WithBackend())
		},
	}
}
