package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/models"
)

var (
	updateSymbols   []string
	updateStart     string
	updateEnd       string
	updateNoPrices  bool
	updateNoReturns bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run one update batch and print the result as JSON",
	Long: `Fetches prices for the given symbols (or the head of the catalog when none are
given) from the day after each symbol's latest stored date, then recomputes returns.`,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringSliceVar(&updateSymbols, "symbols", nil, "Symbols to update, e.g. 2330.TW,6488.TWO,^TWII")
	updateCmd.Flags().StringVar(&updateStart, "start", "", "Requested start date (YYYY-MM-DD)")
	updateCmd.Flags().StringVar(&updateEnd, "end", "", "Requested end date (YYYY-MM-DD), defaults to today in Taipei")
	updateCmd.Flags().BoolVar(&updateNoPrices, "no-prices", false, "Skip fetching prices")
	updateCmd.Flags().BoolVar(&updateNoReturns, "no-returns", false, "Skip recomputing returns")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := models.UpdateRequest{
		Symbols:       updateSymbols,
		UpdatePrices:  !updateNoPrices,
		UpdateReturns: !updateNoReturns,
	}
	if updateStart != "" {
		start, err := calendar.ParseDate(updateStart)
		if err != nil {
			return err
		}
		req.StartDate = &start
	}
	if updateEnd != "" {
		end, err := calendar.ParseDate(updateEnd)
		if err != nil {
			return err
		}
		req.EndDate = &end
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	resp := a.updater.Update(ctx, req)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
