package publish

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/techmap/internal/model"
	"github.com/sells-group/techmap/internal/resilience"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func records() []model.TechnologyRecord {
	return []model.TechnologyRecord{
		{
			Technology: "H2-charger",
			Parameter:  "investment",
			Value:      decimal.NewNullDecimal(decimal.RequireFromString("500.25")),
			RawValue:   "500.25",
			Unit:       "EUR/kW",
			Source:     "DEA",
			Extra:      map[string]string{"notes": "2030"},
		},
		{Technology: "onwind", Parameter: "FOM", RawValue: "", Unit: "%/year", Source: "DEA"},
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(nil)
	assert.Equal(t, DefaultTable, p.Table())
	assert.Equal(t, "energy.costs", New(nil, WithTable("energy.costs")).Table())
	assert.Equal(t, DefaultTable, New(nil, WithTable("")).Table())
}

func TestEnsureTable(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "energy"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "energy"."costs"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, New(mock, WithTable("energy.costs")).EnsureTable(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureTable_Error(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "technology_costs"`).WillReturnError(errors.New("permission denied"))

	err := New(mock).EnsureTable(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish: create table technology_costs")
}

func TestPublish(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "technology_costs"`).WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"technology_costs"}, Columns).WillReturnResult(2)
	mock.ExpectCommit()

	n, err := New(mock, WithRetry(fastRetry())).Publish(context.Background(), "run-1", model.RunStatusSuccessWithWarnings, records())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_RefusesFailedRun(t *testing.T) {
	mock := newMock(t)

	_, err := New(mock).Publish(context.Background(), "run-1", model.RunStatusFailure, records())
	require.ErrorIs(t, err, ErrNotPublishable)

	_, err = New(mock).Publish(context.Background(), "run-1", model.RunStatusRunning, records())
	require.ErrorIs(t, err, ErrNotPublishable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_RequiresRunID(t *testing.T) {
	_, err := New(newMock(t)).Publish(context.Background(), "", model.RunStatusSuccess, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run id is required")
}

func TestPublish_RetriesTransient(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM`).WillReturnError(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"technology_costs"}, Columns).WillReturnResult(2)
	mock.ExpectCommit()

	n, err := New(mock, WithRetry(fastRetry())).Publish(context.Background(), "run-2", model.RunStatusSuccess, records())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_PermanentErrorNotRetried(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM`).WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})
	mock.ExpectRollback()

	_, err := New(mock, WithRetry(fastRetry())).Publish(context.Background(), "run-3", model.RunStatusSuccess, records())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish: replace technology_costs")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRows(t *testing.T) {
	rows := Rows("run-1", records())
	require.Len(t, rows, 2)
	require.Len(t, rows[0], len(Columns))

	assert.Equal(t, "run-1", rows[0][0])
	assert.Equal(t, int32(0), rows[0][1])
	assert.Equal(t, "H2-charger", rows[0][2])
	assert.Equal(t, pgtype.Numeric{Int: big.NewInt(50025), Exp: -2, Valid: true}, rows[0][4])
	assert.Equal(t, "500.25", rows[0][5])
	assert.Equal(t, map[string]string{"notes": "2030"}, rows[0][10])

	assert.Equal(t, int32(1), rows[1][1])
	assert.Equal(t, pgtype.Numeric{}, rows[1][4])
	assert.Nil(t, rows[1][10])
}
