// Package postgres is the durable backing store. Every multi-row write runs
// in one transaction; agreement commits are compare-and-swapped on the
// agreement's version column so concurrent appenders serialise without
// holding locks across the identity check.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pactline/internal/platform/config"
	id "pactline/pkg/domain"
	"pactline/pkg/platform/sentinel"
	txcontext "pactline/pkg/platform/tx"
)

//go:embed migrations/001_init.sql
var migration001 string

const defaultTxTimeout = 5 * time.Second

// DB owns the connection pool. The typed views returned by its accessors
// implement the per-package store ports.
type DB struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

type Option func(*DB)

// WithTxTimeout bounds transactions started without a caller deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(db *DB) {
		if d > 0 {
			db.txTimeout = d
		}
	}
}

// Open connects, pings and applies the embedded schema.
func Open(ctx context.Context, cfg config.PostgresConfig, opts ...Option) (*DB, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 {
		pcfg.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db := &DB{pool: pool, txTimeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(db)
	}
	if err := db.applyMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) applyMigrations(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, migration001); err != nil {
		return fmt.Errorf("apply migration 001: %w", err)
	}
	return nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// Health reports whether the database answers.
func (db *DB) Health(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *DB) Agreements() *AgreementStore       { return &AgreementStore{db: db} }
func (db *DB) Verifications() *VerificationStore { return &VerificationStore{db: db} }
func (db *DB) Chains() *ChainSource              { return &ChainSource{db: db} }
func (db *DB) Audit() *AuditStore                { return &AuditStore{db: db} }
func (db *DB) Outbox() *OutboxStore              { return &OutboxStore{db: db} }

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// q returns the transaction carried by ctx, or the pool.
func (db *DB) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db.pool
}

// inTx runs fn inside a transaction. A transaction already carried by ctx is
// joined rather than nested.
func (db *DB) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.txTimeout)
		defer cancel()
	}

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// classify maps driver failures onto store sentinels. Errors that already
// carry a sentinel pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, s := range []error{sentinel.ErrNotFound, sentinel.ErrConflict, sentinel.ErrAlreadyExists, sentinel.ErrUnavailable} {
		if errors.Is(err, s) {
			return err
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
		}
		return err
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}

func notFound(what string, key fmt.Stringer) error {
	return fmt.Errorf("%s %s: %w", what, key, sentinel.ErrNotFound)
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func agreementUUID(v *id.AgreementID) *uuid.UUID {
	if v == nil {
		return nil
	}
	u := v.UUID()
	return &u
}

func signerUUID(v *id.SignerID) *uuid.UUID {
	if v == nil {
		return nil
	}
	u := v.UUID()
	return &u
}

func agreementIDFrom(u *uuid.UUID) *id.AgreementID {
	if u == nil {
		return nil
	}
	v := id.AgreementID(*u)
	return &v
}

func signerIDFrom(u *uuid.UUID) *id.SignerID {
	if u == nil {
		return nil
	}
	v := id.SignerID(*u)
	return &v
}
