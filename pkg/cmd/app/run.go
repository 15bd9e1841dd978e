package app

import (
	"context"

	"github.com/spf13/cobra"
)

// Run sets up logging and the app, calls fn and closes the app afterwards.
func Run(cmd *cobra.Command, fn func(ctx context.Context, a *App) error, opts ...Option) error {
	SetupLogger()
	ctx, cancel := Context()
	defer cancel()
	a, err := Setup(ctx, opts...)
	if err != nil {
		return err
	}
	defer a.Close()
	cmd.SilenceUsage = true
	return fn(ctx, a)
}
