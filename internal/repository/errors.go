// Package repository implements the MySQL persistence of the booking
// engine.  Repositories return the sentinel errors of package booking so
// the service can tell a missing row, a stale version, lock contention and
// a duplicate booking reference apart.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/court-slot-booking/internal/booking"
	"github.com/iliyamo/court-slot-booking/internal/model"
)

// ErrConflict is returned when a catalog write would overlap an existing
// active window.  Handlers translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// MySQL server error numbers the repositories translate.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// translate maps driver errors onto the booking sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return booking.ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry:
			if strings.Contains(me.Message, "booking_reference") {
				return fmt.Errorf("%w: %s", booking.ErrDuplicateReference, me.Message)
			}
			return fmt.Errorf("%w: %s", ErrConflict, me.Message)
		case errLockWaitTimeout, errDeadlock:
			return fmt.Errorf("%w: %s", booking.ErrLockTimeout, me.Message)
		}
	}
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func dateArg(t time.Time) string { return t.Format(model.DateLayout) }
