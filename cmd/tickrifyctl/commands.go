package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tickrify1/tickrify.com-sub000/app"
	"github.com/tickrify1/tickrify.com-sub000/app/analysis"
	"github.com/tickrify1/tickrify.com-sub000/app/config"
	"github.com/tickrify1/tickrify.com-sub000/app/usage"
)

const defaultUser = "local-dev"

func newRootCmd() *cobra.Command {
	var srv *app.Server

	rootCmd := &cobra.Command{
		Use:   "tickrifyctl",
		Short: "Tickrify - chart analysis from the terminal",
		Long: `tickrifyctl runs chart analyses and inspects plans and usage against the
same storage the HTTP server uses.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			srv, err = app.Bootstrap(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if srv != nil {
				srv.Close()
			}
		},
	}
	rootCmd.PersistentFlags().String("user", defaultUser, "User id to act as")

	server := func() *app.Server { return srv }
	rootCmd.AddCommand(newAnalyzeCmd(server))
	rootCmd.AddCommand(newPlansCmd(server))
	rootCmd.AddCommand(newUsageCmd(server))
	rootCmd.AddCommand(newHistoryCmd(server))
	return rootCmd
}

func newAnalyzeCmd(server func() *app.Server) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [IMAGE]",
		Short: "Analyze a chart screenshot",
		Long: `Analyze a chart screenshot and print the recommendation.
Example: tickrifyctl analyze chart.png --symbol=BTCUSDT`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			symbol, _ := cmd.Flags().GetString("symbol")
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			start := time.Now()
			result, err := server().Orchestrator().Analyze(ctx, analysis.Request{
				UserID:      userID,
				Symbol:      symbol,
				ImageBase64: base64.StdEncoding.EncodeToString(raw),
				ContentType: http.DetectContentType(raw),
			})
			if err != nil {
				return err
			}
			fmt.Println(renderAnalysis(result))
			fmt.Println(mutedStyle.Render(fmt.Sprintf("took %s", time.Since(start).Round(time.Millisecond))))
			return nil
		},
	}
	cmd.Flags().String("symbol", "", "Ticker symbol shown on the chart")
	return cmd
}

func newPlansCmd(server func() *app.Server) *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List subscription plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(renderPlans(server().Billing().Catalog().Plans()))
			return nil
		},
	}
}

func newUsageCmd(server func() *app.Server) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show this month's analysis usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			ctx := cmd.Context()
			planType, limit, err := server().Billing().Limit(ctx, userID)
			if err != nil {
				return err
			}
			cur, err := server().Usage().Current(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Println(renderUsage(userID, planType, cur.Key(), cur.Count, limit, usage.Remaining(cur.Count, limit)))
			return nil
		},
	}
}

func newHistoryCmd(server func() *app.Server) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List recent analyses and signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			ctx := cmd.Context()
			analyses, err := server().History().Analyses(ctx, userID)
			if err != nil {
				return err
			}
			signals, err := server().History().Signals(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Println(renderHistory(analyses, signals))
			return nil
		},
	}
}
