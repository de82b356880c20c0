package database

import (
	"context"
	"fmt"
	"time"

	"github.com/trogers1052/twstock-service/internal/models"
)

// LoadCatalog reads the symbol catalog table. It satisfies catalog.Loader via catalog.LoaderFunc.
func (db *DB) LoadCatalog(ctx context.Context) ([]models.CatalogEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT symbol, name, COALESCE(market, ''), updated_at
		FROM stock_symbols
		ORDER BY symbol ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load symbol catalog: %w", err)
	}
	defer rows.Close()

	var entries []models.CatalogEntry
	for rows.Next() {
		var e models.CatalogEntry
		var market string
		if err := rows.Scan(&e.Symbol, &e.Name, &market, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		e.Market = models.Market(market)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertCatalog inserts or refreshes catalog entries in one transaction
func (db *DB) UpsertCatalog(ctx context.Context, entries []models.CatalogEntry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stock_symbols (symbol, name, market, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			market = EXCLUDED.market,
			updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Symbol, e.Name, string(e.Market), now); err != nil {
			return fmt.Errorf("failed to upsert catalog entry %s: %w", e.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
