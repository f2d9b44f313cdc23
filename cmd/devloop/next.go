package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"devloop/internal/orch"
)

func newNextCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Print the next eligible task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			o, err := orch.New(orch.Options{RepoDir: dir, Config: cfg})
			if err != nil {
				return err
			}
			task, ok, err := o.NextTask()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No eligible task.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", task.ID, task.Title)
			return nil
		},
	}
}
