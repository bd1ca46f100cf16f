package cmd

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadscout/internal/app"
	"github.com/JakeFAU/leadscout/internal/lead"
)

func newBrowseCmd() *cobra.Command {
	var maxResults int
	cmd := &cobra.Command{
		Use:   "browse QUERY",
		Short: "Run one browser session in the foreground and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			params := lead.BrowserRunParams{
				Query:      strings.Join(args, " "),
				MaxResults: maxResults,
			}
			return withApp(ctx, func(a *app.App) error {
				res, err := a.Browser().Run(ctx, params)
				if perr := printJSON(cmd, res); perr != nil {
					return perr
				}
				if err != nil {
					return fmt.Errorf("browser run: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "stop after examining this many result cards (0 uses browser.max_results)")
	return cmd
}
