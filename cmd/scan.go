package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadscout/internal/app"
	"github.com/JakeFAU/leadscout/internal/scan"
)

func newScanCmd() *cobra.Command {
	var (
		deep  bool
		token string
	)
	cmd := &cobra.Command{
		Use:   "scan QUERY",
		Short: "Run a structured Places scan and print the summary as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := scan.Request{
				Query:             strings.Join(args, " "),
				ContinuationToken: token,
				DeepScan:          deep,
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				summary, err := a.Scanner().Run(cmd.Context(), req)
				if perr := printJSON(cmd, summary); perr != nil {
					return perr
				}
				if err != nil {
					return fmt.Errorf("scan: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "follow continuation tokens up to scan.page_budget pages")
	cmd.Flags().StringVar(&token, "token", "", "continuation token from a previous scan")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
