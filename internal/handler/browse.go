package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

// BrowseHandler serves the public, unauthenticated read endpoints:
// showtime listings per movie and the per-showtime seat map.
type BrowseHandler struct {
	Showtimes *repository.ShowtimeRepo
	Seats     *repository.SeatRepo
	Bookings  *repository.BookingRepo
}

// NewBrowseHandler constructs a BrowseHandler. All repositories must be
// non-nil.
func NewBrowseHandler(showtimes *repository.ShowtimeRepo, seats *repository.SeatRepo, bookings *repository.BookingRepo) *BrowseHandler {
	if showtimes == nil || seats == nil || bookings == nil {
		panic("nil repository passed to NewBrowseHandler")
	}
	return &BrowseHandler{Showtimes: showtimes, Seats: seats, Bookings: bookings}
}

// ListShowtimes handles GET /v1/showtimes?movie_id=N, returning future
// showtimes of a movie ordered by start time.
func (h *BrowseHandler) ListShowtimes(c echo.Context) error {
	movieID, err := strconv.ParseUint(c.QueryParam("movie_id"), 10, 64)
	if err != nil || movieID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "movie_id query parameter is required"})
	}
	items, err := h.Showtimes.ListUpcomingByMovie(c.Request().Context(), movieID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// SeatMapEntry is one seat in the seat-map response, with its sold
// state for the requested showtime.
type SeatMapEntry struct {
	SeatID     uint64 `json:"seat_id"`
	RowLabel   string `json:"row_label"`
	SeatNumber uint32 `json:"seat_number"`
	Booked     bool   `json:"booked"`
}

// SeatMap handles GET /v1/showtimes/:id/seats. It overlays the
// committed assignments of the showtime on the theater's seat layout.
// The response is a snapshot: a seat shown free here can still be lost
// to a concurrent booking, and only the reservation transaction decides.
func (h *BrowseHandler) SeatMap(c echo.Context) error {
	showtimeID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || showtimeID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	ctx := c.Request().Context()

	showtime, err := h.Showtimes.GetByID(ctx, showtimeID)
	if err != nil {
		if errors.Is(err, repository.ErrShowtimeNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "showtime not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	seats, err := h.Seats.ListByTheater(ctx, showtime.TheaterID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	bookedIDs, err := h.Bookings.BookedSeatIDs(ctx, showtimeID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	booked := make(map[uint64]struct{}, len(bookedIDs))
	for _, id := range bookedIDs {
		booked[id] = struct{}{}
	}

	entries := make([]SeatMapEntry, 0, len(seats))
	for _, s := range seats {
		_, sold := booked[s.ID]
		entries = append(entries, SeatMapEntry{
			SeatID:     s.ID,
			RowLabel:   s.RowLabel,
			SeatNumber: s.SeatNumber,
			Booked:     sold,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"showtime_id":     showtime.ID,
		"theater_id":      showtime.TheaterID,
		"starts_at":       showtime.StartsAt,
		"price_cents":     showtime.PriceCents,
		"total_seats":     showtime.TotalSeats,
		"available_seats": showtime.AvailableSeats,
		"seats":           entries,
	})
}
