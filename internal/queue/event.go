// Package queue holds the broker message payloads and the background
// consumer for confirmed bookings.
package queue

// BookingConfirmedEvent is published after a booking transaction
// commits. It carries a denormalized snapshot so downstream consumers
// (ticket delivery, notification, analytics) never have to query the
// primary database.
type BookingConfirmedEvent struct {
	BookingID        uint64   `json:"booking_id"`
	UserID           uint64   `json:"user_id"`
	ShowtimeID       uint64   `json:"showtime_id"`
	MovieTitle       string   `json:"movie_title"`
	TheaterName      string   `json:"theater_name"`
	StartsAt         string   `json:"starts_at"`
	SeatLabels       []string `json:"seats"`
	TotalAmountCents uint64   `json:"total_amount_cents"`
	CustomerEmail    string   `json:"customer_email"`
	ConfirmedAt      string   `json:"confirmed_at"`
}
