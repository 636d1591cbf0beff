// Package publish writes a reconciled cost table to Postgres.
package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/techmap/internal/db"
	"github.com/sells-group/techmap/internal/model"
	"github.com/sells-group/techmap/internal/resilience"
)

// DefaultTable is the table written when none is configured.
const DefaultTable = "technology_costs"

// ErrNotPublishable is returned when a run's status forbids publishing.
var ErrNotPublishable = eris.New("publish: run status does not allow publishing")

// Columns are the published columns, in COPY order.
var Columns = []string{
	"run_id",
	"row_index",
	model.ColTechnology,
	model.ColParameter,
	model.ColValue,
	"raw_value",
	model.ColUnit,
	model.ColSource,
	model.ColFurtherDescription,
	model.ColCurrencyYear,
	"extra",
}

// Publisher replaces the contents of a cost table with a run's output.
type Publisher struct {
	pool  db.Pool
	table string
	retry resilience.RetryConfig
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTable sets the target table, optionally schema-qualified.
func WithTable(table string) Option {
	return func(p *Publisher) {
		if table != "" {
			p.table = table
		}
	}
}

// WithRetry sets the retry policy for the replace transaction.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(p *Publisher) { p.retry = cfg }
}

// New creates a Publisher writing through pool.
func New(pool db.Pool, opts ...Option) *Publisher {
	p := &Publisher{
		pool:  pool,
		table: DefaultTable,
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.retry.OnRetry == nil {
		p.retry.OnRetry = resilience.RetryLogger("publish " + p.table)
	}
	return p
}

// Table returns the target table name.
func (p *Publisher) Table() string { return p.table }

// EnsureTable creates the target table (and its schema) when missing.
func (p *Publisher) EnsureTable(ctx context.Context) error {
	ident := pgx.Identifier{p.table}
	if schema, name, ok := strings.Cut(p.table, "."); ok {
		ident = pgx.Identifier{schema, name}
		if _, err := p.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
			return eris.Wrapf(err, "publish: create schema %s", schema)
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id              TEXT    NOT NULL,
	row_index           INTEGER NOT NULL,
	technology          TEXT    NOT NULL,
	parameter           TEXT    NOT NULL,
	value               NUMERIC,
	raw_value           TEXT    NOT NULL DEFAULT '',
	unit                TEXT    NOT NULL DEFAULT '',
	source              TEXT    NOT NULL DEFAULT '',
	further_description TEXT    NOT NULL DEFAULT '',
	currency_year       TEXT    NOT NULL DEFAULT '',
	extra               JSONB,
	PRIMARY KEY (run_id, row_index)
)`, ident.Sanitize())

	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return eris.Wrapf(err, "publish: create table %s", p.table)
	}
	return nil
}

// Publish replaces the table contents with records. Only runs whose status
// is publishable are written; the replace is retried on transient errors.
func (p *Publisher) Publish(ctx context.Context, runID string, status model.RunStatus, records []model.TechnologyRecord) (int64, error) {
	if !status.Publishable() {
		return 0, eris.Wrapf(ErrNotPublishable, "publish: run %s has status %s", runID, status)
	}
	if runID == "" {
		return 0, eris.New("publish: run id is required")
	}

	rows := Rows(runID, records)
	cfg := db.ReplaceConfig{Table: p.table, Columns: Columns}

	n, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (int64, error) {
		return db.ReplaceTable(ctx, p.pool, cfg, rows)
	})
	if err != nil {
		return 0, eris.Wrapf(err, "publish: replace %s", p.table)
	}

	zap.L().Info("publish: table replaced",
		zap.String("table", p.table),
		zap.String("run_id", runID),
		zap.Int64("rows", n),
	)
	return n, nil
}

// Rows converts records to COPY rows matching Columns.
func Rows(runID string, records []model.TechnologyRecord) [][]any {
	rows := make([][]any, len(records))
	for i, r := range records {
		var extra map[string]string
		if len(r.Extra) > 0 {
			extra = r.Extra
		}
		rows[i] = []any{
			runID,
			int32(i), //nolint:gosec // row counts fit in int32
			r.Technology,
			r.Parameter,
			numeric(r),
			r.RawValue,
			r.Unit,
			r.Source,
			r.FurtherDescription,
			r.CurrencyYear,
			extra,
		}
	}
	return rows
}

func numeric(r model.TechnologyRecord) pgtype.Numeric {
	if !r.Value.Valid {
		return pgtype.Numeric{}
	}
	d := r.Value.Decimal
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
