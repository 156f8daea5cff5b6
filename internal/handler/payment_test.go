package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-ticket-booking/internal/booking"
	"github.com/iliyamo/movie-ticket-booking/internal/payment"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

var testECPay = payment.ECPayConfig{
	MerchantID: "2000132",
	HashKey:    "5294y06JbISpM5x9",
	HashIV:     "v77hoKGq4kWxNNIS",
}

type stubSink struct {
	got []booking.PaymentConfirmation
	err error
}

func (s *stubSink) Apply(ctx context.Context, conf booking.PaymentConfirmation) error {
	s.got = append(s.got, conf)
	return s.err
}

func newPaymentHandler(t *testing.T, sink PaymentApplier) (*PaymentHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	repo, mock, db := newBookingRepoMock(t)
	h := NewPaymentHandler(sink, repo, testECPay, "https://example.com/v1/payments/ecpay/callback", quietLogger())
	return h, mock, func() { db.Close() }
}

func signedCallbackForm(params map[string]string) url.Values {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("CheckMacValue", payment.CheckMacValue(testECPay, params))
	return form
}

func postCallback(e *echo.Echo, h *PaymentHandler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/ecpay/callback", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = h.ECPayCallback(c)
	return rec
}

func TestECPayCallbackSuccess(t *testing.T) {
	e := echo.New()
	sink := &stubSink{}
	h, _, cleanup := newPaymentHandler(t, sink)
	defer cleanup()

	form := signedCallbackForm(map[string]string{
		"MerchantID":      testECPay.MerchantID,
		"MerchantTradeNo": "BK000011123456789012",
		"TradeNo":         "2309041234567890",
		"RtnCode":         "1",
		"TradeAmt":        "700",
	})
	rec := postCallback(e, h, form)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1|OK", rec.Body.String())
	require.Len(t, sink.got, 1)
	assert.Equal(t, uint64(11), sink.got[0].BookingID)
	assert.True(t, sink.got[0].Succeeded)
	assert.Equal(t, "ecpay", sink.got[0].Method)
	assert.Equal(t, "2309041234567890", sink.got[0].TransactionID)
}

func TestECPayCallbackFailureResult(t *testing.T) {
	e := echo.New()
	sink := &stubSink{}
	h, _, cleanup := newPaymentHandler(t, sink)
	defer cleanup()

	form := signedCallbackForm(map[string]string{
		"MerchantID":      testECPay.MerchantID,
		"MerchantTradeNo": "BK000011123456789012",
		"TradeNo":         "2309041234567890",
		"RtnCode":         "10200095",
	})
	rec := postCallback(e, h, form)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.got, 1)
	assert.False(t, sink.got[0].Succeeded)
}

func TestECPayCallbackRejectsBadSignature(t *testing.T) {
	e := echo.New()
	sink := &stubSink{}
	h, _, cleanup := newPaymentHandler(t, sink)
	defer cleanup()

	form := signedCallbackForm(map[string]string{
		"MerchantID":      testECPay.MerchantID,
		"MerchantTradeNo": "BK000011123456789012",
		"RtnCode":         "1",
	})
	form.Set("RtnCode", "0") // tamper after signing
	rec := postCallback(e, h, form)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "0|"))
	assert.Empty(t, sink.got)
}

func TestECPayCallbackRejectsBadTradeNo(t *testing.T) {
	e := echo.New()
	sink := &stubSink{}
	h, _, cleanup := newPaymentHandler(t, sink)
	defer cleanup()

	form := signedCallbackForm(map[string]string{
		"MerchantID":      testECPay.MerchantID,
		"MerchantTradeNo": "ZZ-not-a-trade-no",
		"RtnCode":         "1",
	})
	rec := postCallback(e, h, form)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sink.got)
}

func TestECPayCallbackUnknownBooking(t *testing.T) {
	e := echo.New()
	sink := &stubSink{err: repository.ErrBookingNotFound}
	h, _, cleanup := newPaymentHandler(t, sink)
	defer cleanup()

	form := signedCallbackForm(map[string]string{
		"MerchantID":      testECPay.MerchantID,
		"MerchantTradeNo": "BK000099123456789012",
		"RtnCode":         "1",
	})
	rec := postCallback(e, h, form)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "0|"))
}

func TestCheckoutReturnsSignedFields(t *testing.T) {
	e := echo.New()
	sink := &stubSink{}
	h, mock, cleanup := newPaymentHandler(t, sink)
	defer cleanup()

	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	detail := sqlmock.NewRows([]string{
		"id", "showtime_id", "booking_status", "payment_status", "payment_method",
		"seat_count", "total_amount_cents", "customer_name", "customer_email",
		"title", "name", "starts_at", "created_at",
	}).AddRow(11, 1, "CONFIRMED", "UNPAID", nil, 2, 70000, "Ada", "ada@example.com",
		"Dune", "Grand Hall", now.Add(48*time.Hour), now)
	mock.ExpectQuery(`WHERE b\.id = \? AND b\.user_id = \?`).
		WithArgs(uint64(11), uint64(7)).
		WillReturnRows(detail)
	mock.ExpectQuery(`FROM booking_seats bs`).
		WithArgs(uint64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"booking_id", "seat_id", "row_label", "seat_number"}).
			AddRow(11, 101, "A", 1).
			AddRow(11, 102, "A", 2))

	c, rec := newBookingContext(e, http.MethodPost, "/v1/payments/ecpay/checkout", `{"booking_id":11}`)
	require.NoError(t, h.Checkout(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Action string            `json:"action"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, payment.CheckoutURL, payload.Action)
	assert.Equal(t, "700", payload.Fields["TotalAmount"])
	assert.Equal(t, "BK000011", payload.Fields["MerchantTradeNo"][:8])
	assert.Equal(t, "Dune x2", payload.Fields["ItemName"])

	// The returned CheckMacValue must verify against the fields.
	form := url.Values{}
	for k, v := range payload.Fields {
		form.Set(k, v)
	}
	assert.True(t, payment.VerifyCallback(testECPay, form))
}

func TestCheckoutRejectsPaidBooking(t *testing.T) {
	e := echo.New()
	sink := &stubSink{}
	h, mock, cleanup := newPaymentHandler(t, sink)
	defer cleanup()

	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	detail := sqlmock.NewRows([]string{
		"id", "showtime_id", "booking_status", "payment_status", "payment_method",
		"seat_count", "total_amount_cents", "customer_name", "customer_email",
		"title", "name", "starts_at", "created_at",
	}).AddRow(11, 1, "CONFIRMED", "PAID", "ecpay", 2, 70000, "Ada", "ada@example.com",
		"Dune", "Grand Hall", now.Add(48*time.Hour), now)
	mock.ExpectQuery(`WHERE b\.id = \? AND b\.user_id = \?`).
		WithArgs(uint64(11), uint64(7)).
		WillReturnRows(detail)
	mock.ExpectQuery(`FROM booking_seats bs`).
		WithArgs(uint64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"booking_id", "seat_id", "row_label", "seat_number"}))

	c, rec := newBookingContext(e, http.MethodPost, "/v1/payments/ecpay/checkout", `{"booking_id":11}`)
	require.NoError(t, h.Checkout(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckoutUnknownBooking(t *testing.T) {
	e := echo.New()
	sink := &stubSink{}
	h, mock, cleanup := newPaymentHandler(t, sink)
	defer cleanup()

	mock.ExpectQuery(`WHERE b\.id = \? AND b\.user_id = \?`).
		WithArgs(uint64(99), uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	c, rec := newBookingContext(e, http.MethodPost, "/v1/payments/ecpay/checkout", `{"booking_id":99}`)
	require.NoError(t, h.Checkout(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmAppliesPayment(t *testing.T) {
	e := echo.New()
	sink := &stubSink{}
	h, _, cleanup := newPaymentHandler(t, sink)
	defer cleanup()

	body := `{"booking_id":11,"succeeded":true,"method":"linepay","transaction_id":"LP-1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/confirm", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Confirm(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.got, 1)
	assert.Equal(t, "linepay", sink.got[0].Method)
}

func TestConfirmValidatesBody(t *testing.T) {
	e := echo.New()
	sink := &stubSink{}
	h, _, cleanup := newPaymentHandler(t, sink)
	defer cleanup()

	for _, body := range []string{
		`{}`,
		`{"booking_id":11}`,
		`{"booking_id":11,"method":"linepay"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/confirm", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		require.NoError(t, h.Confirm(e.NewContext(req, rec)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, sink.got)
}
