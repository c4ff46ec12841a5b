package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type dbCall struct {
	sql  string
	args []any
}

// fakeDB zaznamenává volání a vrací připravené odpovědi.
type fakeDB struct {
	execs    []dbCall
	execErrs map[int]error // index volání Exec -> chyba

	queries  []dbCall
	queryErr error

	rowQueries []dbCall
	row        pgx.Row
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, dbCall{sql: sql, args: args})
	if err := f.execErrs[len(f.execs)-1]; err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, dbCall{sql: sql, args: args})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return nil, errors.New("fakeDB: Query rows not supported")
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.rowQueries = append(f.rowQueries, dbCall{sql: sql, args: args})
	return f.row
}

// fakeRow vyplní cíle Scan hodnotami v pořadí.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case **int64:
			v, _ := r.values[i].(*int64)
			*p = v
		case *int64:
			*p = r.values[i].(int64)
		default:
			return errors.New("fakeRow: unsupported scan target")
		}
	}
	return nil
}

// testStore vrací Store nad fakeDB a čítač uvolněných spojení.
func testStore(db DBTX, acquireErr error) (*Store, *int) {
	released := 0
	return &Store{
		acquire: func(context.Context) (DBTX, func(), error) {
			if acquireErr != nil {
				return nil, nil, acquireErr
			}
			return db, func() { released++ }, nil
		},
	}, &released
}

func int64Ptr(v int64) *int64 { return &v }
