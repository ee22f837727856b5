package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/birbparty/nestlink/sdk"
	"github.com/spf13/cobra"
)

func newPortfoliosCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "portfolios",
		Aliases: []string{"pf"},
		Short:   "Work with portfolios",
	}
	cmd.AddCommand(newPortfoliosListCmd(flags))
	return cmd
}

func newPortfoliosListCmd(flags *globalFlags) *cobra.Command {
	var (
		page   sdk.PageRequest
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your portfolios",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withClient(cmd, func(ctx context.Context, c *sdk.Client, _ *Session) error {
				result, err := c.Portfolios.List(ctx, page)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), result)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPUBLIC\tUPDATED")
				for _, p := range result.Items {
					fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.ID, p.Name, p.Public, p.UpdatedAt.Format("2006-01-02 15:04"))
				}
				if err := w.Flush(); err != nil {
					return err
				}

				pg := result.Pagination
				fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d total\n", pg.Page, pg.TotalPages, pg.Total)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&page.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&page.PageSize, "page-size", 20, "items per page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw page as JSON")
	return cmd
}
