package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ReplaceConfig defines a whole-table replacement.
type ReplaceConfig struct {
	Table   string   // target table (e.g., "energy.technology_costs")
	Columns []string // columns being copied, in row order
}

// ReplaceTable swaps the contents of a table in one transaction:
//  1. DELETE every existing row
//  2. COPY the new rows in
//  3. Commit
//
// Readers see either the old snapshot or the new one, never a mix.
func ReplaceTable(ctx context.Context, pool Pool, cfg ReplaceConfig, rows [][]any) (int64, error) {
	if cfg.Table == "" {
		return 0, eris.New("db: replace: no table specified")
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", sanitizeTable(cfg.Table))); err != nil {
		return 0, eris.Wrapf(err, "db: replace: clear %s", cfg.Table)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, identifier(cfg.Table), cfg.Columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, eris.Wrapf(err, "db: replace: COPY INTO %s", cfg.Table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit tx")
	}
	return n, nil
}
