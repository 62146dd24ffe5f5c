package pgstore

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hurrycache/hurrycache/pkg/cacheerr"
)

// wrapPgErr classifies a Postgres driver error into a cacheerr.Kind,
// grounded on the teacher's pkg/store/metadata/postgres mapPgError: gorm's
// postgres dialector surfaces pgx's own error types (pgx.ErrNoRows,
// *pgconn.PgError) even though the query layer above it is gorm, not pgx
// directly. A nil err returns nil.
func wrapPgErr(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return cacheerr.Wrap(cacheerr.KindNotFound, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		// 23505 unique_violation, 23503 foreign_key_violation,
		// 23514 check_constraint_violation, 23502 not_null_violation:
		// the caller sent data this store's schema rejects.
		case "23505", "23503", "23514", "23502":
			return cacheerr.Wrap(cacheerr.KindValidation, op, err)
		// 08000-08006 connection errors, 57014 query_canceled,
		// 40001 serialization_failure, 40P01 deadlock_detected: transient,
		// safe to retry.
		case "08000", "08003", "08006", "57014", "40001", "40P01":
			return cacheerr.Wrap(cacheerr.KindTransport, op, err)
		default:
			return cacheerr.Wrap(cacheerr.KindLocalIO, op, err)
		}
	}

	return cacheerr.Wrap(cacheerr.KindTransport, op, err)
}
