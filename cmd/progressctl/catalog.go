package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"acadium-backend/internal/catalog"
)

func newCatalogCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog commands",
	}
	command.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List learning paths and their step counts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cat, err := loadCatalog()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TOOL\tNAME\tCATEGORY\tSTEPS")
				for _, tool := range cat.Tools {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", tool.ID, tool.Name, tool.Category, tool.TotalSteps())
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "validate [file]",
			Short: "Validate a catalog file",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var (
					cat *catalog.Catalog
					err error
				)
				if len(args) == 1 {
					cat, err = catalog.LoadFile(args[0])
				} else {
					cat, err = loadCatalog()
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "catalog ok: %d tools\n", len(cat.Tools))
				return nil
			},
		},
	)
	return command
}
