package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/movie-ticket-booking/internal/booking"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/queue"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
	queue_publisher "github.com/iliyamo/movie-ticket-booking/internal/service"
)

// Reserver commits a seat selection or returns one of the reservation
// rejections. Satisfied by *booking.Coordinator.
type Reserver interface {
	Reserve(ctx context.Context, req booking.ReserveRequest) (*model.Booking, error)
}

// BookingHandler serves the authenticated booking endpoints: creating a
// booking, fetching one booking and listing the caller's history.
type BookingHandler struct {
	Reserver Reserver
	Bookings *repository.BookingRepo
	Logger   *logrus.Logger

	// publish sends the confirmation event after a commit. Best effort;
	// overridable in tests.
	publish func(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// NewBookingHandler constructs a BookingHandler. Reserver and Bookings
// must be non-nil.
func NewBookingHandler(reserver Reserver, bookings *repository.BookingRepo, logger *logrus.Logger) *BookingHandler {
	if reserver == nil || bookings == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BookingHandler{
		Reserver: reserver,
		Bookings: bookings,
		Logger:   logger,
		publish:  queue_publisher.PublishBookingConfirmed,
	}
}

// Create handles POST /v1/bookings. The request body carries the
// showtime id and the exact seats the customer picked; the booker
// identity comes from the verified token, never from the body. On
// success it returns 201 with the joined booking detail. Conflicts
// return 409 with the contested seat ids so the client can re-render
// its seat map, and a lock timeout returns 503 with Retry-After since
// the same request may well succeed a moment later.
func (h *BookingHandler) Create(c echo.Context) error {
	booker, err := bookerFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var body struct {
		ShowtimeID uint64   `json:"showtime_id"`
		SeatIDs    []uint64 `json:"seat_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ShowtimeID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "showtime_id is required"})
	}

	ctx := c.Request().Context()
	booked, err := h.Reserver.Reserve(ctx, booking.ReserveRequest{
		ShowtimeID: body.ShowtimeID,
		SeatIDs:    body.SeatIDs,
		Booker:     booker,
	})
	if err != nil {
		return h.rejectReservation(c, err)
	}

	detail, err := h.Bookings.GetDetailForUser(ctx, booked.ID, booker.UserID)
	if err != nil {
		// The booking is committed; degrade to the bare record rather
		// than reporting a failure the client would retry.
		h.Logger.WithError(err).WithField("booking_id", booked.ID).Warn("booking detail fetch failed after commit")
		return c.JSON(http.StatusCreated, echo.Map{"booking_id": booked.ID})
	}

	h.publishConfirmed(booker.UserID, detail)
	return c.JSON(http.StatusCreated, detail)
}

func (h *BookingHandler) rejectReservation(c echo.Context, err error) error {
	var invalidReq *booking.InvalidRequestError
	var invalidSeat *booking.InvalidSeatError
	var capacity *booking.InsufficientCapacityError
	var taken *booking.SeatsTakenError

	switch {
	case errors.As(err, &invalidReq):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": invalidReq.Reason})
	case errors.As(err, &invalidSeat):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":    "seats do not belong to this theater",
			"seat_ids": invalidSeat.SeatIDs,
		})
	case errors.Is(err, repository.ErrShowtimeNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "showtime not found"})
	case errors.As(err, &capacity):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "not enough seats remaining",
			"remaining": capacity.Remaining,
		})
	case errors.As(err, &taken):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":    "seats already booked",
			"seat_ids": taken.SeatIDs,
		})
	case errors.Is(err, booking.ErrBusy):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "showtime busy, retry shortly"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "booking failed"})
	}
}

// publishConfirmed emits the booking.confirmed event in the background.
// A broker outage costs the event, not the booking.
func (h *BookingHandler) publishConfirmed(userID uint64, detail *repository.BookingDetail) {
	labels := make([]string, 0, len(detail.Seats))
	for _, s := range detail.Seats {
		labels = append(labels, s.RowLabel+strconv.FormatUint(uint64(s.SeatNumber), 10))
	}
	ev := queue.BookingConfirmedEvent{
		BookingID:        detail.ID,
		UserID:           userID,
		ShowtimeID:       detail.ShowtimeID,
		MovieTitle:       detail.MovieTitle,
		TheaterName:      detail.TheaterName,
		StartsAt:         detail.StartsAt.UTC().Format(time.RFC3339),
		SeatLabels:       labels,
		TotalAmountCents: uint64(detail.TotalAmountCents),
		CustomerEmail:    detail.CustomerEmail,
		ConfirmedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.publish(ctx, ev); err != nil {
			h.Logger.WithError(err).WithField("booking_id", ev.BookingID).Warn("booking event publish failed")
		}
	}()
}

// Get handles GET /v1/bookings/:id. Ownership is enforced in SQL, so a
// foreign booking id is indistinguishable from a missing one.
func (h *BookingHandler) Get(c echo.Context) error {
	userID, err := userIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bookingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || bookingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	detail, err := h.Bookings.GetDetailForUser(c.Request().Context(), bookingID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, detail)
}

// List handles GET /v1/my-bookings, returning the caller's bookings
// newest first.
func (h *BookingHandler) List(c echo.Context) error {
	userID, err := userIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	details, err := h.Bookings.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": details})
}
