// Package store zapouzdřuje práci s Postgresem: zápis měření, registr
// zařízení a vozidel a sestavování dotazů nad historií.
// Zbytek aplikace neví, jak se píše SQL, jen volá metody Queries.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX je podmnožina API, kterou sdílí *pgxpool.Pool, *pgxpool.Conn i pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store drží connection pool. Každá operace si přes Session půjčí vlastní
// spojení a na konci ho vždy vrátí zpět do poolu.
type Store struct {
	acquire func(ctx context.Context) (DBTX, func(), error)
}

// New vytvoří Store nad existujícím poolem. Pool vlastní volající (main) a zavírá ho on.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		acquire: func(ctx context.Context) (DBTX, func(), error) {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return nil, nil, err
			}
			return conn, conn.Release, nil
		},
	}
}

// NewWithDB vytvoří Store nad jediným DBTX, které se nikam nevrací.
// Hodí se pro transakce a testy.
func NewWithDB(db DBTX) *Store {
	return &Store{
		acquire: func(context.Context) (DBTX, func(), error) {
			return db, func() {}, nil
		},
	}
}

// Connect otevře pool a ověří spojení pingem.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chyba konfigurace DB: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("DB není dostupná: %w", err)
	}
	return pool, nil
}

// Session půjčí z poolu jedno spojení, předá ho fn a po návratu ho uvolní,
// a to i když fn vrátí chybu nebo zpanikaří.
func (s *Store) Session(ctx context.Context, fn func(q *Queries) error) error {
	db, release, err := s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("nelze získat spojení z poolu: %w", err)
	}
	defer release()

	return fn(&Queries{db: db})
}

// Queries nese jedno konkrétní spojení. Platí jen uvnitř Session.
type Queries struct {
	db DBTX
}

// NewQueries obalí libovolné DBTX (pool, spojení, transakci).
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}
