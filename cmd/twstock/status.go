package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/catalog"
	"github.com/trogers1052/twstock-service/internal/database"
)

var statusSymbols []string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest stored trading day per symbol",
	Long: `Prints the watermark the next incremental update will start from. Without
--symbols the stored catalog is listed.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringSliceVar(&statusSymbols, "symbols", nil, "Storage keys to report, e.g. 2330.TW,6488.TWO")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	db.SetLogger(logger)

	symbols := statusSymbols
	if len(symbols) == 0 {
		entries, err := db.LoadCatalog(ctx)
		if err != nil {
			return err
		}
		symbols = catalog.Symbols(entries, 0)
	}

	latest, err := db.LatestPriceDates(ctx, symbols)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tLATEST")
	for _, s := range symbols {
		date := "-"
		if d, ok := latest[s]; ok {
			date = calendar.FormatDate(d)
		}
		fmt.Fprintf(w, "%s\t%s\n", s, date)
	}
	return w.Flush()
}
