package booking

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

// PaymentLedger is the sink's narrow view of the booking ledger: read
// the payment columns under lock, write the transition.
type PaymentLedger interface {
	PaymentStateTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (*repository.PaymentState, error)
	UpdatePaymentTx(ctx context.Context, tx *sql.Tx, bookingID uint64, bookingStatus, paymentStatus, method, txnID string) error
}

// PaymentConfirmation is an externally-verified payment result. Gateway
// signature checking happened before this is constructed.
type PaymentConfirmation struct {
	BookingID     uint64
	Succeeded     bool
	Method        string // e.g. "ecpay", "linepay"
	TransactionID string // gateway transaction reference
}

// PaymentSink applies payment confirmations to bookings. It is
// idempotent: replaying the same confirmation leaves the booking
// unchanged and returns nil. It never touches seat assignments or the
// available-seat counter; seat commitment happened at reservation time,
// and a failed payment does not release seats.
type PaymentSink struct {
	store  Store
	ledger PaymentLedger
	logger *logrus.Logger
}

// NewPaymentSink constructs a PaymentSink.
func NewPaymentSink(store Store, ledger PaymentLedger, logger *logrus.Logger) *PaymentSink {
	if store == nil || ledger == nil {
		panic("nil dependency passed to NewPaymentSink")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PaymentSink{store: store, ledger: ledger, logger: logger}
}

// Apply transitions the booking's payment state in a single-row update.
// Success marks the booking PAID and promotes PENDING bookings to
// CONFIRMED; failure marks it FAILED. A booking that is already PAID is
// never downgraded, so replays and out-of-order failure callbacks are
// safe. Returns repository.ErrBookingNotFound when the key resolves to
// no booking.
func (ps *PaymentSink) Apply(ctx context.Context, conf PaymentConfirmation) error {
	err := ps.store.RunInTx(ctx, func(tx *sql.Tx) error {
		st, err := ps.ledger.PaymentStateTx(ctx, tx, conf.BookingID)
		if err != nil {
			return err
		}
		if st.PaymentStatus == model.PaymentStatusPaid {
			if !conf.Succeeded {
				ps.logger.WithField("booking_id", conf.BookingID).
					Warn("ignoring failure confirmation for already paid booking")
			}
			return nil
		}
		target := model.PaymentStatusFailed
		bookingStatus := st.BookingStatus
		if conf.Succeeded {
			target = model.PaymentStatusPaid
			if bookingStatus == model.BookingStatusPending {
				bookingStatus = model.BookingStatusConfirmed
			}
		}
		if st.PaymentStatus == target && st.PaymentTxnID != nil && *st.PaymentTxnID == conf.TransactionID {
			return nil // exact replay
		}
		return ps.ledger.UpdatePaymentTx(ctx, tx, conf.BookingID, bookingStatus, target, conf.Method, conf.TransactionID)
	})
	if err != nil {
		if err == repository.ErrBookingNotFound {
			return err
		}
		ps.logger.WithError(err).WithField("booking_id", conf.BookingID).Error("payment confirmation failed")
		return &PersistenceError{Err: err}
	}
	ps.logger.WithFields(logrus.Fields{
		"booking_id": conf.BookingID,
		"succeeded":  conf.Succeeded,
		"method":     conf.Method,
	}).Info("payment confirmation applied")
	return nil
}
