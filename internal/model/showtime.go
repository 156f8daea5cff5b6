package model

import "time"

// Showtime represents a scheduled screening of a movie in a theater.
// AvailableSeats is the authoritative remaining-capacity counter; it is
// mutated only by the reservation coordinator while the row is locked.
//
// Fields:
//  ID             – primary key identifier.
//  MovieID        – movie being screened.
//  TheaterID      – theater where the screening takes place.
//  StartsAt       – when the screening begins (UTC).
//  PriceCents     – ticket price in cents for this showtime.
//  TotalSeats     – fixed seating capacity of the showtime.
//  AvailableSeats – seats not yet committed to a booking.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Showtime struct {
	ID             uint64    // showtimes.id
	MovieID        uint64    // showtimes.movie_id
	TheaterID      uint64    // showtimes.theater_id
	StartsAt       time.Time // showtimes.starts_at
	PriceCents     uint32    // showtimes.price_cents
	TotalSeats     uint32    // showtimes.total_seats
	AvailableSeats uint32    // showtimes.available_seats
	CreatedAt      time.Time // showtimes.created_at
	UpdatedAt      time.Time // showtimes.updated_at
}
