package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vectable/internal/flows"
)

var basicCmd = &cobra.Command{
	Use:   "basic",
	Short: "Create the food table and run a similarity search",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runFlow(cmd, func(ctx context.Context, env *flows.Env) error {
			_, err := flows.Basic(ctx, env)
			return err
		})
	},
}

var hybridCmd = &cobra.Command{
	Use:   "hybrid",
	Short: "Index the food table and run a filtered hybrid query",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runFlow(cmd, func(ctx context.Context, env *flows.Env) error {
			_, err := flows.Hybrid(ctx, env)
			return err
		})
	},
}

var versioningCmd = &cobra.Command{
	Use:   "versioning",
	Short: "Append rows and check the earlier version out again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runFlow(cmd, func(ctx context.Context, env *flows.Env) error {
			_, err := flows.Versioning(ctx, env)
			return err
		})
	},
}
