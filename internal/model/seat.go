package model

import "time"

// Seat describes a physical seat in a theater. Seats are reused across
// every showtime scheduled in the same theater; "sold" state lives in
// the per-showtime seat assignments, never here.
//
// Fields:
//  ID         – primary key identifier.
//  TheaterID  – theater to which this seat belongs.
//  RowLabel   – letter or string designating the row.
//  SeatNumber – number of the seat within the row.
//  CreatedAt  – creation timestamp.
type Seat struct {
	ID         uint64    // seats.id
	TheaterID  uint64    // seats.theater_id
	RowLabel   string    // seats.row_label
	SeatNumber uint32    // seats.seat_number
	CreatedAt  time.Time // seats.created_at
}

// Theater represents a screening venue. Theaters and their seat layout
// are managed administratively and are read-only for the booking flow.
type Theater struct {
	ID        uint64    // theaters.id
	Name      string    // theaters.name
	CreatedAt time.Time // theaters.created_at
}
