package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// BookingRepo is the durable booking ledger. Writes happen only inside
// the reservation coordinator's transaction; the payment sink updates
// payment columns and nothing else. No method here mutates seat
// assignments outside that flow.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// CreateTx inserts a booking within the scope of an existing
// transaction, populating the generated ID and DB-default timestamps on
// the provided record. The caller must commit or roll back.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings
               (user_id, showtime_id, customer_name, customer_email, customer_phone,
                seat_count, total_amount_cents, booking_status, payment_status)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		b.Booker.UserID, b.ShowtimeID, b.Booker.Name, b.Booker.Email, b.Booker.Phone,
		b.SeatCount, b.TotalAmountCents, b.BookingStatus, b.PaymentStatus,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	// Query back the row to populate timestamps set by DB defaults.
	const sel = `SELECT created_at, updated_at FROM bookings WHERE id = ?`
	return tx.QueryRowContext(ctx, sel, b.ID).Scan(&b.CreatedAt, &b.UpdatedAt)
}

// CreateAssignmentsBulkTx inserts the booking's seat assignments in two
// bulk statements: booking_seats (the seats owned by the booking) and
// showtime_booked_seats (the per-showtime sold state). The unique index
// on (showtime_id, seat_id) in showtime_booked_seats is the last line of
// defense against double-selling; a violation surfaces as a duplicate
// entry error that IsDuplicateEntry recognizes. Passing an empty slice
// has no effect and returns nil.
func (r *BookingRepo) CreateAssignmentsBulkTx(ctx context.Context, tx *sql.Tx, assignments []model.SeatAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	ownQ := `INSERT INTO booking_seats (booking_id, seat_id) VALUES `
	ownArgs := make([]interface{}, 0, len(assignments)*2)
	soldQ := `INSERT INTO showtime_booked_seats (showtime_id, seat_id, booking_id) VALUES `
	soldArgs := make([]interface{}, 0, len(assignments)*3)
	for i, a := range assignments {
		if i > 0 {
			ownQ += ","
			soldQ += ","
		}
		ownQ += "(?, ?)"
		ownArgs = append(ownArgs, a.BookingID, a.SeatID)
		soldQ += "(?, ?, ?)"
		soldArgs = append(soldArgs, a.ShowtimeID, a.SeatID, a.BookingID)
	}
	if _, err := tx.ExecContext(ctx, ownQ, ownArgs...); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, soldQ, soldArgs...)
	return err
}

// AssignedSeatsTx returns which of the requested seats already have a
// committed assignment for the showtime. The coordinator uses the result
// to reject conflicting requests with the exact seat ids instead of
// relying on a bare constraint violation. Runs inside the caller's
// transaction so the answer is consistent with the held showtime lock.
func (r *BookingRepo) AssignedSeatsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64) ([]uint64, error) {
	if len(seatIDs) == 0 {
		return []uint64{}, nil
	}
	placeholders := make([]string, 0, len(seatIDs))
	args := make([]interface{}, 0, len(seatIDs)+1)
	args = append(args, showtimeID)
	for _, id := range seatIDs {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	query := `SELECT seat_id FROM showtime_booked_seats WHERE showtime_id = ? AND seat_id IN (` +
		strings.Join(placeholders, ",") + `)`
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	taken := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		taken = append(taken, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return taken, nil
}

// BookedSeatIDs returns every committed seat id for a showtime. Used by
// the public seat-map endpoint to overlay sold seats on the layout.
func (r *BookingRepo) BookedSeatIDs(ctx context.Context, showtimeID uint64) ([]uint64, error) {
	const q = `SELECT seat_id FROM showtime_booked_seats WHERE showtime_id = ?`
	rows, err := r.db.QueryContext(ctx, q, showtimeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// BookedSeat is a seat reference embedded in booking responses.
type BookedSeat struct {
	SeatID     uint64 `json:"seat_id"`
	RowLabel   string `json:"row_label"`
	SeatNumber uint32 `json:"seat_number"`
}

// BookingDetail is a booking joined with its showtime, movie, theater
// and seat labels, shaped for confirmation pages and order history.
type BookingDetail struct {
	ID               uint64       `json:"id"`
	ShowtimeID       uint64       `json:"showtime_id"`
	BookingStatus    string       `json:"booking_status"`
	PaymentStatus    string       `json:"payment_status"`
	PaymentMethod    *string      `json:"payment_method,omitempty"`
	SeatCount        uint32       `json:"seat_count"`
	TotalAmountCents uint32       `json:"total_amount_cents"`
	CustomerName     string       `json:"customer_name"`
	CustomerEmail    string       `json:"customer_email"`
	MovieTitle       string       `json:"movie_title"`
	TheaterName      string       `json:"theater_name"`
	StartsAt         time.Time    `json:"starts_at"`
	CreatedAt        time.Time    `json:"created_at"`
	Seats            []BookedSeat `json:"seats"`
}

const bookingDetailQuery = `SELECT b.id, b.showtime_id, b.booking_status, b.payment_status, b.payment_method,
       b.seat_count, b.total_amount_cents, b.customer_name, b.customer_email,
       m.title, t.name, st.starts_at, b.created_at
FROM bookings b
JOIN showtimes st ON st.id = b.showtime_id
JOIN movies m ON m.id = st.movie_id
JOIN theaters t ON t.id = st.theater_id`

func scanBookingDetail(scan func(dest ...interface{}) error) (*BookingDetail, error) {
	var d BookingDetail
	var method sql.NullString
	err := scan(
		&d.ID, &d.ShowtimeID, &d.BookingStatus, &d.PaymentStatus, &method,
		&d.SeatCount, &d.TotalAmountCents, &d.CustomerName, &d.CustomerEmail,
		&d.MovieTitle, &d.TheaterName, &d.StartsAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if method.Valid {
		m := method.String
		d.PaymentMethod = &m
	}
	d.Seats = []BookedSeat{}
	return &d, nil
}

// GetDetailForUser returns a single booking with joined display fields,
// restricted to the given user to enforce ownership. Returns
// ErrBookingNotFound when no such booking exists for the user.
func (r *BookingRepo) GetDetailForUser(ctx context.Context, bookingID, userID uint64) (*BookingDetail, error) {
	q := bookingDetailQuery + ` WHERE b.id = ? AND b.user_id = ?`
	row := r.db.QueryRowContext(ctx, q, bookingID, userID)
	d, err := scanBookingDetail(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	one := []BookingDetail{*d}
	if err := r.attachSeats(ctx, one, map[uint64]int{d.ID: 0}); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// ListByUser returns all bookings of a user, newest first, with seats
// populated in a single follow-up query.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]BookingDetail, error) {
	q := bookingDetailQuery + ` WHERE b.user_id = ? ORDER BY b.created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := make([]BookingDetail, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		d, err := scanBookingDetail(rows.Scan)
		if err != nil {
			return nil, err
		}
		index[d.ID] = len(details)
		details = append(details, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return details, nil
	}
	if err := r.attachSeats(ctx, details, index); err != nil {
		return nil, err
	}
	return details, nil
}

// attachSeats populates the Seats slice of each detail in one query over
// booking_seats joined with the seat catalog. index maps booking id to
// its position in details.
func (r *BookingRepo) attachSeats(ctx context.Context, details []BookingDetail, index map[uint64]int) error {
	ids := make([]interface{}, 0, len(index))
	placeholders := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
		placeholders = append(placeholders, "?")
	}
	query := `SELECT bs.booking_id, bs.seat_id, se.row_label, se.seat_number
              FROM booking_seats bs
              JOIN seats se ON se.id = bs.seat_id
              WHERE bs.booking_id IN (` + strings.Join(placeholders, ",") + `)
              ORDER BY bs.booking_id, se.row_label, se.seat_number`
	rows, err := r.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var bookingID uint64
		var seat BookedSeat
		if err := rows.Scan(&bookingID, &seat.SeatID, &seat.RowLabel, &seat.SeatNumber); err != nil {
			return err
		}
		if pos, ok := index[bookingID]; ok {
			details[pos].Seats = append(details[pos].Seats, seat)
		}
	}
	return rows.Err()
}

// PaymentState is the slice of a booking the payment sink operates on.
type PaymentState struct {
	BookingID     uint64
	BookingStatus string
	PaymentStatus string
	PaymentTxnID  *string
}

// PaymentStateTx loads the payment columns of a booking with an
// exclusive lock so that concurrent confirmation replays serialize.
// Returns ErrBookingNotFound when the booking does not exist.
func (r *BookingRepo) PaymentStateTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (*PaymentState, error) {
	const q = `SELECT id, booking_status, payment_status, payment_txn_id
               FROM bookings WHERE id = ? FOR UPDATE`
	var st PaymentState
	var txnID sql.NullString
	err := tx.QueryRowContext(ctx, q, bookingID).Scan(&st.BookingID, &st.BookingStatus, &st.PaymentStatus, &txnID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if txnID.Valid {
		v := txnID.String
		st.PaymentTxnID = &v
	}
	return &st, nil
}

// UpdatePaymentTx writes the payment outcome onto the booking. Called
// only by the payment sink after PaymentStateTx decided the transition
// is required. Seat assignments and available_seats are never touched
// here.
func (r *BookingRepo) UpdatePaymentTx(ctx context.Context, tx *sql.Tx, bookingID uint64, bookingStatus, paymentStatus, method, txnID string) error {
	const q = `UPDATE bookings
               SET booking_status = ?, payment_status = ?, payment_method = ?, payment_txn_id = ?, updated_at = CURRENT_TIMESTAMP
               WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, bookingStatus, paymentStatus, method, txnID, bookingID)
	return err
}
