// Package database creates the application database inside the running engine.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const existsQuery = `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`

// duplicateDatabase is the SQLSTATE raised when CREATE DATABASE loses a race.
const duplicateDatabase = "42P04"

// Catalog is the part of *pgx.Conn the provisioner needs.
type Catalog interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close(ctx context.Context) error
}

// Dialer opens a single connection to the administrative database.
type Dialer func(ctx context.Context, connString string) (Catalog, error)

// Dial opens a pgx connection. There is no pool: each Ensure uses one
// short-lived connection.
func Dial(ctx context.Context, connString string) (Catalog, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Provisioner makes sure a named database exists.
type Provisioner struct {
	dial       Dialer
	connString string
	logger     *slog.Logger
}

func NewProvisioner(connString string, logger *slog.Logger) *Provisioner {
	return NewProvisionerWithDialer(Dial, connString, logger)
}

func NewProvisionerWithDialer(dial Dialer, connString string, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		dial:       dial,
		connString: connString,
		logger:     logger.With("component", "provisioner"),
	}
}

// Ensure creates the database if the catalog has no entry for it and reports
// whether it did. The name comes from trusted configuration, not user input;
// it is quoted as an identifier so the created name matches the catalog check exactly.
func (p *Provisioner) Ensure(ctx context.Context, name string) (bool, error) {
	conn, err := p.dial(ctx, p.connString)
	if err != nil {
		return false, fmt.Errorf("connect to postgres: %w", err)
	}
	defer func() {
		// ctx may already be cancelled; closing must still happen.
		if err := conn.Close(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn("close connection", "error", err)
		}
	}()

	var exists bool
	if err := conn.QueryRow(ctx, existsQuery, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check database %q: %w", name, err)
	}
	if exists {
		p.logger.Info("database exists, nothing to do", "database", name)
		return false, nil
	}

	p.logger.Info("creating database", "database", name)
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == duplicateDatabase {
			p.logger.Info("database created concurrently", "database", name)
			return false, nil
		}
		return false, fmt.Errorf("create database %q: %w", name, err)
	}
	p.logger.Info("created database", "database", name)
	return true, nil
}
