package model

import "time"

// Booking status values. A booking is created CONFIRMED by the
// coordinator; CANCELLED is reachable only through a separate
// administrative flow.
const (
	BookingStatusPending   = "PENDING"
	BookingStatusConfirmed = "CONFIRMED"
	BookingStatusCancelled = "CANCELLED"
)

// Payment status values. Seats are committed at reservation time, so a
// FAILED payment does not release them.
const (
	PaymentStatusUnpaid = "UNPAID"
	PaymentStatusPaid   = "PAID"
	PaymentStatusFailed = "FAILED"
)

// BookerIdentity is the customer snapshot stored on a booking. It is
// denormalized on purpose: later profile edits must not alter historical
// orders. The authentication layer supplies it already verified.
type BookerIdentity struct {
	UserID uint64  // users.id of the booker
	Name   string  // display name at booking time
	Email  string  // contact email at booking time
	Phone  *string // optional phone number
}

// Booking records a customer's purchase of one or more seats for a
// single showtime.
//
// Fields:
//  ID               – primary key, generated on commit.
//  ShowtimeID       – showtime being booked.
//  Booker           – identity snapshot taken at booking time.
//  SeatCount        – number of seats in the booking.
//  TotalAmountCents – price snapshot: showtime price × seat count.
//  BookingStatus    – PENDING, CONFIRMED or CANCELLED.
//  PaymentStatus    – UNPAID, PAID or FAILED.
//  PaymentMethod    – gateway that settled the booking, if any.
//  PaymentTxnID     – gateway transaction reference, if any.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Booking struct {
	ID               uint64         // bookings.id
	ShowtimeID       uint64         // bookings.showtime_id
	Booker           BookerIdentity // bookings.customer_* snapshot columns
	SeatCount        uint32         // bookings.seat_count
	TotalAmountCents uint32         // bookings.total_amount_cents
	BookingStatus    string         // bookings.booking_status
	PaymentStatus    string         // bookings.payment_status
	PaymentMethod    *string        // bookings.payment_method (nullable)
	PaymentTxnID     *string        // bookings.payment_txn_id (nullable)
	CreatedAt        time.Time      // bookings.created_at
	UpdatedAt        time.Time      // bookings.updated_at
}

// SeatAssignment binds a seat, for one specific showtime, to one
// booking. The (ShowtimeID, SeatID) pair is unique in the store; that
// constraint is what makes double-selling impossible. Assignments are
// created only inside a successful booking commit and share the
// lifetime of their booking.
type SeatAssignment struct {
	ID         uint64 // showtime_booked_seats.id
	ShowtimeID uint64 // showtime_booked_seats.showtime_id
	SeatID     uint64 // showtime_booked_seats.seat_id
	BookingID  uint64 // showtime_booked_seats.booking_id
}

// Movie holds the read-only movie attributes joined into booking and
// showtime responses. Content management is out of scope.
type Movie struct {
	ID       uint64 // movies.id
	Title    string // movies.title
	Duration uint32 // movies.duration (minutes)
	Genre    string // movies.genre
	Rating   string // movies.rating
}
