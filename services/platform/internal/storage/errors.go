package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateEmail   = errors.New("email already registered")
	ErrDuplicateKeyHash = errors.New("api key hash already exists")
	ErrQuotaExceeded    = errors.New("active api key quota exceeded")
)

const (
	tenantsEmailConstraint  = "tenants_email_key"
	apiKeysHashConstraint   = "api_keys_key_hash_key"
	sqliteTenantsEmailIndex = "tenants.email"
	sqliteAPIKeysHashIndex  = "api_keys.key_hash"
)

func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case tenantsEmailConstraint:
			return ErrDuplicateEmail
		case apiKeysHashConstraint:
			return ErrDuplicateKeyHash
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrNotFound, pgErr.Detail)

	case pgerrcode.InvalidTextRepresentation:
		return ErrNotFound

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection,
		pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("database unavailable: %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s: %w", pgErr.Code, pgErr.Message, err)
	}
}

func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}

	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return err
	}

	switch sqErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		msg := sqErr.Error()
		switch {
		case strings.Contains(msg, sqliteTenantsEmailIndex):
			return ErrDuplicateEmail
		case strings.Contains(msg, sqliteAPIKeysHashIndex):
			return ErrDuplicateKeyHash
		}
		return fmt.Errorf("unique constraint violation: %w", err)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: foreign key", ErrNotFound)
	}
	return err
}

func mapSQLError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return mapSQLiteError(err)
}

func rowsAffectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return mapSQLError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
