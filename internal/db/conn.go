// Package db provides the database connection contract shared by the listing
// store and the backfill runner.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

// Execer runs a statement that returns no rows. Both Conn and pgx.Tx satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Querier runs statements that return rows.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn is a single database connection with manual transaction control.
// *pgx.Conn and pgxmock.PgxConnIface both implement it.
type Conn interface {
	Execer
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

// ConnectFunc opens a Conn for a connection string.
type ConnectFunc func(ctx context.Context, connString string) (Conn, error)

// Connect opens a single pgx connection. Statements run outside an explicit
// transaction autocommit, so callers that write must Begin first.
func Connect(ctx context.Context, connString string) (Conn, error) {
	pgxCfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "db: parse connection string")
	}

	conn, err := pgx.ConnectConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrapf(err, "db: connect to %s", Host(connString))
	}
	return conn, nil
}

// Host returns the host:port/database part of a connection string with
// credentials removed, suitable for logging. It returns "unknown" when the
// string cannot be parsed.
func Host(connString string) string {
	pgCfg, err := pgconn.ParseConfig(connString)
	if err != nil {
		return "unknown"
	}
	host := pgCfg.Host
	if pgCfg.Port != 0 {
		host = fmt.Sprintf("%s:%d", host, pgCfg.Port)
	}
	if pgCfg.Database != "" {
		host += "/" + pgCfg.Database
	}
	return host
}
