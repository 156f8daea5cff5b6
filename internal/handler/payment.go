package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/movie-ticket-booking/internal/booking"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/payment"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

// PaymentApplier applies a verified payment outcome to a booking.
// Satisfied by *booking.PaymentSink.
type PaymentApplier interface {
	Apply(ctx context.Context, conf booking.PaymentConfirmation) error
}

// PaymentHandler drives the payment leg of a booking: issuing signed
// ECPay checkout parameters, receiving the gateway's server-to-server
// callback, and a generic JSON confirmation endpoint for other
// gateways.
type PaymentHandler struct {
	Sink      PaymentApplier
	Bookings  *repository.BookingRepo
	ECPay     payment.ECPayConfig
	ReturnURL string
	Logger    *logrus.Logger
}

// NewPaymentHandler constructs a PaymentHandler. Sink and Bookings must
// be non-nil.
func NewPaymentHandler(sink PaymentApplier, bookings *repository.BookingRepo, ecpay payment.ECPayConfig, returnURL string, logger *logrus.Logger) *PaymentHandler {
	if sink == nil || bookings == nil {
		panic("nil dependency passed to NewPaymentHandler")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PaymentHandler{Sink: sink, Bookings: bookings, ECPay: ecpay, ReturnURL: returnURL, Logger: logger}
}

// Checkout handles POST /v1/payments/ecpay/checkout. It returns the
// signed AioCheckOut form fields for one of the caller's unpaid
// bookings; the client posts them to the gateway. A fresh
// MerchantTradeNo is minted per attempt since ECPay requires uniqueness
// across retries of the same booking.
func (h *PaymentHandler) Checkout(c echo.Context) error {
	userID, err := userIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		BookingID uint64 `json:"booking_id"`
	}
	if err := c.Bind(&body); err != nil || body.BookingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking_id is required"})
	}

	detail, err := h.Bookings.GetDetailForUser(c.Request().Context(), body.BookingID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if detail.PaymentStatus == model.PaymentStatusPaid {
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking already paid"})
	}

	itemName := fmt.Sprintf("%s x%d", detail.MovieTitle, detail.SeatCount)
	fields := payment.CheckoutFields(h.ECPay, h.ReturnURL,
		detail.ID, uint64(detail.TotalAmountCents), itemName, time.Now())
	return c.JSON(http.StatusOK, echo.Map{
		"action": payment.CheckoutURL,
		"fields": fields,
	})
}

// ECPayCallback handles POST /v1/payments/ecpay/callback, the gateway's
// form-encoded result notification. ECPay expects a plain-text body of
// "1|OK" to stop retrying; anything else is treated as failure and the
// notification is redelivered. The CheckMacValue is verified before any
// field is trusted, and the booking id is recovered from the
// MerchantTradeNo issued at checkout.
func (h *PaymentHandler) ECPayCallback(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		return c.String(http.StatusBadRequest, "0|malformed form")
	}
	if !payment.VerifyCallback(h.ECPay, form) {
		h.Logger.Warn("ecpay callback rejected: CheckMacValue mismatch")
		return c.String(http.StatusBadRequest, "0|CheckMacValue verification failed")
	}

	bookingID, err := payment.ParseMerchantTradeNo(form.Get("MerchantTradeNo"))
	if err != nil {
		h.Logger.WithField("merchant_trade_no", form.Get("MerchantTradeNo")).
			Warn("ecpay callback rejected: bad trade number")
		return c.String(http.StatusBadRequest, "0|malformed MerchantTradeNo")
	}

	conf := booking.PaymentConfirmation{
		BookingID:     bookingID,
		Succeeded:     form.Get("RtnCode") == "1",
		Method:        "ecpay",
		TransactionID: form.Get("TradeNo"),
	}
	if err := h.Sink.Apply(c.Request().Context(), conf); err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return c.String(http.StatusNotFound, "0|booking not found")
		}
		return c.String(http.StatusInternalServerError, "0|internal error")
	}
	return c.String(http.StatusOK, "1|OK")
}

// Confirm handles POST /v1/payments/confirm, a JSON endpoint for
// gateways without a dedicated callback format. Authentication happens
// upstream; the body is trusted once the request reaches here.
func (h *PaymentHandler) Confirm(c echo.Context) error {
	var body struct {
		BookingID     uint64 `json:"booking_id"`
		Succeeded     bool   `json:"succeeded"`
		Method        string `json:"method"`
		TransactionID string `json:"transaction_id"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.BookingID == 0 || body.Method == "" || body.TransactionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking_id, method and transaction_id are required"})
	}
	conf := booking.PaymentConfirmation{
		BookingID:     body.BookingID,
		Succeeded:     body.Succeeded,
		Method:        body.Method,
		TransactionID: body.TransactionID,
	}
	if err := h.Sink.Apply(c.Request().Context(), conf); err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "payment confirmation failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "applied"})
}
