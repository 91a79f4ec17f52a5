package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"strategy-engine/internal/store"
	"strategy-engine/pkg/utils"
)

func newPortfolioCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Inspect portfolios",
	}
	cmd.AddCommand(newPortfolioShowCmd(app), newPortfolioTradesCmd(app))
	return cmd
}

func newPortfolioShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <portfolio-id>",
		Short: "Show portfolio holdings and cash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			summary, err := app.Store.GetPortfolioSummary(ctx, args[0])
			if err != nil {
				return err
			}
			holdings, err := app.Store.GetPortfolioHoldingsDetailed(ctx, args[0])
			if err != nil {
				return err
			}

			color.Cyan("Portfolio %s", summary.PortfolioID)
			fmt.Printf("Total value: %s   Cash: %s\n\n",
				utils.FormatMoney(summary.TotalValue), utils.FormatMoney(summary.Cash))

			if len(holdings) == 0 {
				fmt.Println("No open positions.")
				return nil
			}

			fmt.Printf("%-8s %8s %12s %12s %12s %9s\n", "SYMBOL", "QTY", "COST", "PRICE", "VALUE", "GAIN")
			for _, h := range holdings {
				line := fmt.Sprintf("%-8s %8d %12s %12s %12s %9s",
					h.Symbol, h.Quantity,
					utils.FormatMoney(h.CostBasis),
					utils.FormatMoney(h.CurrentPrice),
					utils.FormatMoney(h.CurrentValue),
					utils.FormatPercent(h.GainPct))
				switch {
				case h.GainPct > 0:
					color.Green("%s", line)
				case h.GainPct < 0:
					color.Red("%s", line)
				default:
					fmt.Println(line)
				}
			}
			return nil
		},
	}
}

func newPortfolioTradesCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "trades <portfolio-id>",
		Short: "List recent trades",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trades, err := app.Store.GetTrades(cmd.Context(), store.TradeFilter{
				PortfolioID: args[0],
				Limit:       limit,
			})
			if err != nil {
				return err
			}
			if len(trades) == 0 {
				fmt.Println("No trades recorded.")
				return nil
			}
			for _, t := range trades {
				fmt.Printf("%s  %-4s %-8s %6d @ %10s  %12s  %s\n",
					t.ExecutedAt.Format("2006-01-02 15:04"),
					t.Side, t.Symbol, t.Quantity,
					utils.FormatMoney(t.Price),
					utils.FormatMoney(t.Value),
					utils.Truncate(t.Note, 50))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "maximum trades to show")
	return cmd
}
