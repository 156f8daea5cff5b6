package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// ShowtimeRepo owns persistence for showtimes, including the
// available_seats counter that the reservation coordinator guards with a
// row lock. All timestamps are stored in UTC.
type ShowtimeRepo struct {
	db *sql.DB
}

// NewShowtimeRepo returns a ShowtimeRepo bound to the given database.
func NewShowtimeRepo(db *sql.DB) *ShowtimeRepo { return &ShowtimeRepo{db: db} }

// DB exposes the underlying sql.DB. It allows callers to begin
// transactions spanning multiple repositories.
func (r *ShowtimeRepo) DB() *sql.DB { return r.db }

const showtimeColumns = `id, movie_id, theater_id, starts_at, price_cents, total_seats, available_seats, created_at, updated_at`

func scanShowtime(row *sql.Row) (*model.Showtime, error) {
	var s model.Showtime
	err := row.Scan(
		&s.ID, &s.MovieID, &s.TheaterID, &s.StartsAt,
		&s.PriceCents, &s.TotalSeats, &s.AvailableSeats,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowtimeNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetByID retrieves a showtime by its ID. It returns ErrShowtimeNotFound
// when no matching row exists.
func (r *ShowtimeRepo) GetByID(ctx context.Context, id uint64) (*model.Showtime, error) {
	q := `SELECT ` + showtimeColumns + ` FROM showtimes WHERE id = ?`
	return scanShowtime(r.db.QueryRowContext(ctx, q, id))
}

// GetForUpdateTx loads a showtime row with an exclusive lock inside the
// provided transaction. This is the serialization point of the booking
// flow: every concurrent reservation attempt for the same showtime
// queues behind this SELECT ... FOR UPDATE until the holder commits or
// rolls back. Attempts for different showtimes do not block each other.
// Returns ErrShowtimeNotFound when the row does not exist.
func (r *ShowtimeRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Showtime, error) {
	q := `SELECT ` + showtimeColumns + ` FROM showtimes WHERE id = ? FOR UPDATE`
	return scanShowtime(tx.QueryRowContext(ctx, q, id))
}

// DecrementRemainingTx subtracts n from available_seats within the
// caller's transaction. The caller must already hold the row lock via
// GetForUpdateTx and must have verified that n seats remain; the
// available_seats >= n guard in the WHERE clause is a final consistency
// check, not a substitute for the capacity check.
func (r *ShowtimeRepo) DecrementRemainingTx(ctx context.Context, tx *sql.Tx, id uint64, n uint32) error {
	const q = `UPDATE showtimes SET available_seats = available_seats - ? WHERE id = ? AND available_seats >= ?`
	res, err := tx.ExecContext(ctx, q, n, id, n)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("decrement available_seats: showtime %d has fewer than %d seats left", id, n)
	}
	return nil
}

// UpcomingShowtime is the row shape returned by ListUpcomingByMovie for
// the public browse endpoint. Movie and theater attributes are joined in
// so clients need a single request per listing.
type UpcomingShowtime struct {
	ID             uint64    `json:"id"`
	MovieID        uint64    `json:"movie_id"`
	MovieTitle     string    `json:"movie_title"`
	Duration       uint32    `json:"duration"`
	Genre          string    `json:"genre"`
	Rating         string    `json:"rating"`
	TheaterID      uint64    `json:"theater_id"`
	TheaterName    string    `json:"theater_name"`
	StartsAt       time.Time `json:"starts_at"`
	PriceCents     uint32    `json:"price_cents"`
	TotalSeats     uint32    `json:"total_seats"`
	AvailableSeats uint32    `json:"available_seats"`
}

// ListUpcomingByMovie returns future showtimes for a movie ordered by
// start time. Past showtimes are filtered out in SQL so the listing
// never offers screenings that can no longer be booked.
func (r *ShowtimeRepo) ListUpcomingByMovie(ctx context.Context, movieID uint64) ([]UpcomingShowtime, error) {
	const q = `SELECT st.id, m.id, m.title, m.duration, m.genre, m.rating,
                      t.id, t.name, st.starts_at, st.price_cents, st.total_seats, st.available_seats
               FROM showtimes st
               JOIN movies m ON m.id = st.movie_id
               JOIN theaters t ON t.id = st.theater_id
               WHERE st.movie_id = ? AND st.starts_at >= UTC_TIMESTAMP()
               ORDER BY st.starts_at ASC`
	rows, err := r.db.QueryContext(ctx, q, movieID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]UpcomingShowtime, 0)
	for rows.Next() {
		var u UpcomingShowtime
		if err := rows.Scan(
			&u.ID, &u.MovieID, &u.MovieTitle, &u.Duration, &u.Genre, &u.Rating,
			&u.TheaterID, &u.TheaterName, &u.StartsAt, &u.PriceCents, &u.TotalSeats, &u.AvailableSeats,
		); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
