package booking

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

// Store runs a function inside a single database transaction. The
// implementation must roll back on every non-nil return and on panic, so
// a reservation can never be partially applied, including when the
// caller's context is cancelled mid-flight.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// ShowtimeInventory is the coordinator's view of the showtime rows. Both
// methods participate in the caller's transaction; GetForUpdateTx blocks
// until any competing transaction holding the same row lock finishes.
type ShowtimeInventory interface {
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, showtimeID uint64) (*model.Showtime, error)
	DecrementRemainingTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, n uint32) error
}

// SeatCatalog validates that requested seats physically exist in a
// theater. Reads only; no locking.
type SeatCatalog interface {
	FilterByTheaterTx(ctx context.Context, tx *sql.Tx, theaterID uint64, seatIDs []uint64) ([]uint64, error)
}

// BookingLedger appends bookings and their seat assignments.
type BookingLedger interface {
	CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error
	CreateAssignmentsBulkTx(ctx context.Context, tx *sql.Tx, assignments []model.SeatAssignment) error
	AssignedSeatsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64) ([]uint64, error)
}

// Coordinator is the single entry point that turns a seat-selection
// request into either a committed booking or a typed rejection. Two
// concurrent requests for overlapping seats on the same showtime can
// never both succeed: the showtime row lock serializes them, and the
// unique (showtime_id, seat_id) index backstops the lock.
type Coordinator struct {
	store     Store
	inventory ShowtimeInventory
	catalog   SeatCatalog
	ledger    BookingLedger
	logger    *logrus.Logger
}

// NewCoordinator constructs a Coordinator. All dependencies must be
// non-nil; a nil logger falls back to the logrus standard logger.
func NewCoordinator(store Store, inventory ShowtimeInventory, catalog SeatCatalog, ledger BookingLedger, logger *logrus.Logger) *Coordinator {
	if store == nil || inventory == nil || catalog == nil || ledger == nil {
		panic("nil dependency passed to NewCoordinator")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{
		store:     store,
		inventory: inventory,
		catalog:   catalog,
		ledger:    ledger,
		logger:    logger,
	}
}

// ReserveRequest is a validated-on-entry seat selection for one
// showtime.
type ReserveRequest struct {
	ShowtimeID uint64
	SeatIDs    []uint64
	Booker     model.BookerIdentity
}

// Reserve validates and commits a booking atomically.
//
// The whole decision runs in one transaction: lock the showtime row,
// check capacity, validate the seats against the theater, check for
// committed assignments, then insert the booking, its assignments and
// decrement the remaining-seat counter. Any failure rolls the
// transaction back completely; there is no partial booking.
//
// Rejections: *InvalidRequestError, repository.ErrShowtimeNotFound,
// *InsufficientCapacityError, *InvalidSeatError, *SeatsTakenError,
// ErrBusy (retryable with the same seats), *PersistenceError.
func (co *Coordinator) Reserve(ctx context.Context, req ReserveRequest) (*model.Booking, error) {
	if len(req.SeatIDs) == 0 {
		return nil, &InvalidRequestError{Reason: "no seats requested"}
	}
	seen := make(map[uint64]struct{}, len(req.SeatIDs))
	for _, id := range req.SeatIDs {
		if id == 0 {
			return nil, &InvalidRequestError{Reason: "seat id must be positive"}
		}
		if _, dup := seen[id]; dup {
			return nil, &InvalidRequestError{Reason: "duplicate seat ids in request"}
		}
		seen[id] = struct{}{}
	}

	var booked *model.Booking
	err := co.store.RunInTx(ctx, func(tx *sql.Tx) error {
		// Serialization point: all concurrent attempts for this
		// showtime queue behind the row lock.
		showtime, err := co.inventory.GetForUpdateTx(ctx, tx, req.ShowtimeID)
		if err != nil {
			return err
		}
		n := uint32(len(req.SeatIDs))
		if showtime.AvailableSeats < n {
			return &InsufficientCapacityError{Remaining: showtime.AvailableSeats}
		}
		valid, err := co.catalog.FilterByTheaterTx(ctx, tx, showtime.TheaterID, req.SeatIDs)
		if err != nil {
			return err
		}
		if len(valid) != len(req.SeatIDs) {
			return &InvalidSeatError{SeatIDs: missingFrom(req.SeatIDs, valid)}
		}
		taken, err := co.ledger.AssignedSeatsTx(ctx, tx, req.ShowtimeID, req.SeatIDs)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return &SeatsTakenError{SeatIDs: taken}
		}

		b := &model.Booking{
			ShowtimeID:       req.ShowtimeID,
			Booker:           req.Booker,
			SeatCount:        n,
			TotalAmountCents: showtime.PriceCents * n,
			BookingStatus:    model.BookingStatusConfirmed,
			PaymentStatus:    model.PaymentStatusUnpaid,
		}
		if err := co.ledger.CreateTx(ctx, tx, b); err != nil {
			return err
		}
		assignments := make([]model.SeatAssignment, 0, len(req.SeatIDs))
		for _, sid := range req.SeatIDs {
			assignments = append(assignments, model.SeatAssignment{
				ShowtimeID: req.ShowtimeID,
				SeatID:     sid,
				BookingID:  b.ID,
			})
		}
		if err := co.ledger.CreateAssignmentsBulkTx(ctx, tx, assignments); err != nil {
			return err
		}
		if err := co.inventory.DecrementRemainingTx(ctx, tx, req.ShowtimeID, n); err != nil {
			return err
		}
		booked = b
		return nil
	})
	if err != nil {
		return nil, co.classify(req, err)
	}

	co.logger.WithFields(logrus.Fields{
		"booking_id":   booked.ID,
		"showtime_id":  booked.ShowtimeID,
		"seat_count":   booked.SeatCount,
		"total_amount": booked.TotalAmountCents,
	}).Info("booking committed")
	return booked, nil
}

// classify turns an error surfaced out of the transaction into the
// taxonomy Reserve documents. Business rejections pass through; driver
// errors map to ErrBusy or SeatsTakenError; anything else is a
// persistence failure.
func (co *Coordinator) classify(req ReserveRequest, err error) error {
	switch {
	case isRejection(err):
		return err
	case repository.IsLockContention(err):
		co.logger.WithField("showtime_id", req.ShowtimeID).Warn("reservation lost lock wait")
		return ErrBusy
	case repository.IsDuplicateEntry(err):
		// A concurrent writer slipped past the early assignment check.
		// The constraint held; report the conflict, not a fault.
		co.logger.WithField("showtime_id", req.ShowtimeID).Warn("unique seat constraint hit at commit")
		return &SeatsTakenError{}
	default:
		co.logger.WithError(err).WithField("showtime_id", req.ShowtimeID).Error("reservation failed")
		return &PersistenceError{Err: err}
	}
}

func isRejection(err error) bool {
	if errors.Is(err, repository.ErrShowtimeNotFound) || errors.Is(err, ErrBusy) {
		return true
	}
	switch err.(type) {
	case *InvalidRequestError, *InvalidSeatError, *InsufficientCapacityError, *SeatsTakenError:
		return true
	}
	return false
}

func missingFrom(requested, present []uint64) []uint64 {
	have := make(map[uint64]struct{}, len(present))
	for _, id := range present {
		have[id] = struct{}{}
	}
	missing := make([]uint64, 0)
	for _, id := range requested {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
