// Package booking implements the reservation transaction coordinator and
// the payment status sink. Every rejection a caller can act on is a
// typed error defined here; handlers branch on these with errors.Is and
// errors.As to produce specific user-facing messages instead of a
// generic "booking failed".
package booking

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBusy is returned when the reservation lost the showtime lock wait
// (timeout or deadlock). Unlike SeatsTakenError, the caller may retry
// the exact same seat selection.
var ErrBusy = errors.New("showtime is busy, retry the reservation")

// InvalidRequestError rejects malformed input before any storage work:
// an empty seat list or duplicate seat ids.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid reservation request: " + e.Reason
}

// InvalidSeatError rejects seats that do not belong to the showtime's
// theater.
type InvalidSeatError struct {
	SeatIDs []uint64
}

func (e *InvalidSeatError) Error() string {
	return "seats not in this theater: " + joinIDs(e.SeatIDs)
}

// InsufficientCapacityError rejects requests for more seats than the
// showtime has left. Remaining tells the caller how many seats they
// could still get.
type InsufficientCapacityError struct {
	Remaining uint32
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("not enough seats available, %d remaining", e.Remaining)
}

// SeatsTakenError rejects requests that conflict with committed
// assignments. SeatIDs names the conflicting seats when they are known;
// it is empty when the conflict was only detected by the unique
// constraint at commit time.
type SeatsTakenError struct {
	SeatIDs []uint64
}

func (e *SeatsTakenError) Error() string {
	if len(e.SeatIDs) == 0 {
		return "seats already taken"
	}
	return "seats already taken: " + joinIDs(e.SeatIDs)
}

// PersistenceError wraps a storage fault unrelated to business rules.
// The transaction is guaranteed rolled back when this is returned.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "booking persistence failure: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

func joinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}
