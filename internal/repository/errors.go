// Package repository defines error values that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// reservation coordinator to distinguish between failure scenarios
// without inspecting driver-specific error codes themselves.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrShowtimeNotFound is returned when a showtime row does not exist.
var ErrShowtimeNotFound = errors.New("showtime not found")

// ErrBookingNotFound is returned when a booking row does not exist or is
// not visible to the caller.
var ErrBookingNotFound = errors.New("booking not found")

// MySQL server error numbers the booking flow branches on.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// IsDuplicateEntry reports whether err is a MySQL duplicate-key
// violation, e.g. a second insert into the unique (showtime_id, seat_id)
// index of showtime_booked_seats.
func IsDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}

// IsLockContention reports whether err means the transaction lost a lock
// wait (timeout or deadlock victim). Callers surface this as a retryable
// condition rather than a business rejection.
func IsLockContention(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == mysqlErrLockWaitTimeout || me.Number == mysqlErrDeadlock
}
