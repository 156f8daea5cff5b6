package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// SeatRepo provides read access to the seat catalog: the static mapping
// of theater to physical seats. Seats never change as part of booking,
// so no method here takes a lock.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo returns a SeatRepo bound to the given database.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// FilterByTheaterTx returns the subset of seatIDs that belong to the
// given theater. The coordinator compares the result against the
// requested set to detect seats from the wrong theater. Runs inside the
// caller's transaction so the validation shares the booking snapshot.
// Passing an empty slice returns an empty slice.
func (r *SeatRepo) FilterByTheaterTx(ctx context.Context, tx *sql.Tx, theaterID uint64, seatIDs []uint64) ([]uint64, error) {
	if len(seatIDs) == 0 {
		return []uint64{}, nil
	}
	placeholders := make([]string, 0, len(seatIDs))
	args := make([]interface{}, 0, len(seatIDs)+1)
	args = append(args, theaterID)
	for _, id := range seatIDs {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	query := `SELECT id FROM seats WHERE theater_id = ? AND id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := make([]uint64, 0, len(seatIDs))
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found = append(found, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return found, nil
}

// ListByTheater returns every seat of a theater ordered by row label and
// seat number. Used by the seat-map endpoint; ordering keeps the
// rendered grid deterministic.
func (r *SeatRepo) ListByTheater(ctx context.Context, theaterID uint64) ([]model.Seat, error) {
	const q = `SELECT id, theater_id, row_label, seat_number, created_at
               FROM seats
               WHERE theater_id = ?
               ORDER BY row_label, seat_number`
	rows, err := r.db.QueryContext(ctx, q, theaterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seats := make([]model.Seat, 0)
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.TheaterID, &s.RowLabel, &s.SeatNumber, &s.CreatedAt); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return seats, nil
}
