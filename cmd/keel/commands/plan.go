package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <plan-file>",
		Short: "Print the resolved execution order without building anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := c.app.Plan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Print(report)
			return nil
		},
	}
}
