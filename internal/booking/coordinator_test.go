package booking

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

// fakeBackend is an in-memory stand-in for the transactional store and
// the three repositories. RunInTx serializes callers with a mutex the
// way the showtime row lock does, and restores a snapshot when the
// function fails, so rollback semantics hold.
type fakeBackend struct {
	mu           sync.Mutex
	showtimes    map[uint64]model.Showtime
	theaterSeats map[uint64]map[uint64]bool
	assigned     map[uint64]map[uint64]uint64 // showtime -> seat -> booking
	bookings     map[uint64]model.Booking
	nextID       uint64

	assignErr error // forced failure for CreateAssignmentsBulkTx
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		showtimes:    map[uint64]model.Showtime{},
		theaterSeats: map[uint64]map[uint64]bool{},
		assigned:     map[uint64]map[uint64]uint64{},
		bookings:     map[uint64]model.Booking{},
		nextID:       1,
	}
}

func (f *fakeBackend) addShowtime(id, theaterID uint64, price, total uint32) {
	f.showtimes[id] = model.Showtime{
		ID: id, TheaterID: theaterID, PriceCents: price,
		TotalSeats: total, AvailableSeats: total,
	}
}

func (f *fakeBackend) addSeats(theaterID uint64, seatIDs ...uint64) {
	if f.theaterSeats[theaterID] == nil {
		f.theaterSeats[theaterID] = map[uint64]bool{}
	}
	for _, id := range seatIDs {
		f.theaterSeats[theaterID][id] = true
	}
}

func (f *fakeBackend) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.snapshot()
	if err := fn(nil); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

type backendSnapshot struct {
	showtimes map[uint64]model.Showtime
	assigned  map[uint64]map[uint64]uint64
	bookings  map[uint64]model.Booking
	nextID    uint64
}

func (f *fakeBackend) snapshot() backendSnapshot {
	s := backendSnapshot{
		showtimes: map[uint64]model.Showtime{},
		assigned:  map[uint64]map[uint64]uint64{},
		bookings:  map[uint64]model.Booking{},
		nextID:    f.nextID,
	}
	for k, v := range f.showtimes {
		s.showtimes[k] = v
	}
	for st, seats := range f.assigned {
		cp := map[uint64]uint64{}
		for seat, b := range seats {
			cp[seat] = b
		}
		s.assigned[st] = cp
	}
	for k, v := range f.bookings {
		s.bookings[k] = v
	}
	return s
}

func (f *fakeBackend) restore(s backendSnapshot) {
	f.showtimes = s.showtimes
	f.assigned = s.assigned
	f.bookings = s.bookings
	f.nextID = s.nextID
}

func (f *fakeBackend) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Showtime, error) {
	st, ok := f.showtimes[id]
	if !ok {
		return nil, repository.ErrShowtimeNotFound
	}
	cp := st
	return &cp, nil
}

func (f *fakeBackend) DecrementRemainingTx(ctx context.Context, tx *sql.Tx, id uint64, n uint32) error {
	st := f.showtimes[id]
	if st.AvailableSeats < n {
		return errors.New("available_seats underflow")
	}
	st.AvailableSeats -= n
	f.showtimes[id] = st
	return nil
}

func (f *fakeBackend) FilterByTheaterTx(ctx context.Context, tx *sql.Tx, theaterID uint64, seatIDs []uint64) ([]uint64, error) {
	found := make([]uint64, 0, len(seatIDs))
	for _, id := range seatIDs {
		if f.theaterSeats[theaterID][id] {
			found = append(found, id)
		}
	}
	return found, nil
}

func (f *fakeBackend) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	b.ID = f.nextID
	f.nextID++
	f.bookings[b.ID] = *b
	return nil
}

func (f *fakeBackend) CreateAssignmentsBulkTx(ctx context.Context, tx *sql.Tx, assignments []model.SeatAssignment) error {
	if f.assignErr != nil {
		return f.assignErr
	}
	for _, a := range assignments {
		if f.assigned[a.ShowtimeID] == nil {
			f.assigned[a.ShowtimeID] = map[uint64]uint64{}
		}
		if _, taken := f.assigned[a.ShowtimeID][a.SeatID]; taken {
			return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
		}
		f.assigned[a.ShowtimeID][a.SeatID] = a.BookingID
	}
	return nil
}

func (f *fakeBackend) AssignedSeatsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64) ([]uint64, error) {
	taken := make([]uint64, 0)
	for _, id := range seatIDs {
		if _, ok := f.assigned[showtimeID][id]; ok {
			taken = append(taken, id)
		}
	}
	return taken, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestCoordinator(f *fakeBackend) *Coordinator {
	return NewCoordinator(f, f, f, f, quietLogger())
}

func testBooker() model.BookerIdentity {
	return model.BookerIdentity{UserID: 7, Name: "Ada", Email: "ada@example.com"}
}

func TestReserveHappyPath(t *testing.T) {
	f := newFakeBackend()
	f.addShowtime(1, 10, 35000, 50)
	f.addSeats(10, 101, 102, 103)

	co := newTestCoordinator(f)
	b, err := co.Reserve(context.Background(), ReserveRequest{
		ShowtimeID: 1, SeatIDs: []uint64{101, 103}, Booker: testBooker(),
	})
	require.NoError(t, err)
	require.NotNil(t, b)

	assert.Equal(t, uint32(2), b.SeatCount)
	assert.Equal(t, uint32(70000), b.TotalAmountCents)
	assert.Equal(t, model.BookingStatusConfirmed, b.BookingStatus)
	assert.Equal(t, model.PaymentStatusUnpaid, b.PaymentStatus)

	assert.Equal(t, uint32(48), f.showtimes[1].AvailableSeats)
	assert.Equal(t, b.ID, f.assigned[1][101])
	assert.Equal(t, b.ID, f.assigned[1][103])
}

func TestReservePriceSnapshot(t *testing.T) {
	f := newFakeBackend()
	f.addShowtime(1, 10, 1250, 50)
	f.addSeats(10, 101, 102, 103)

	co := newTestCoordinator(f)
	b, err := co.Reserve(context.Background(), ReserveRequest{
		ShowtimeID: 1, SeatIDs: []uint64{101, 102, 103}, Booker: testBooker(),
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(3750), b.TotalAmountCents)
}

func TestReserveRejectsBadInput(t *testing.T) {
	f := newFakeBackend()
	f.addShowtime(1, 10, 100, 50)
	f.addSeats(10, 101)
	co := newTestCoordinator(f)

	cases := map[string][]uint64{
		"empty seat list": {},
		"zero seat id":    {101, 0},
		"duplicate seats": {101, 101},
	}
	for name, seats := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := co.Reserve(context.Background(), ReserveRequest{
				ShowtimeID: 1, SeatIDs: seats, Booker: testBooker(),
			})
			var invalid *InvalidRequestError
			require.ErrorAs(t, err, &invalid)
		})
	}
	// Nothing touched storage.
	assert.Equal(t, uint32(50), f.showtimes[1].AvailableSeats)
	assert.Empty(t, f.bookings)
}

func TestReserveShowtimeNotFound(t *testing.T) {
	co := newTestCoordinator(newFakeBackend())
	_, err := co.Reserve(context.Background(), ReserveRequest{
		ShowtimeID: 42, SeatIDs: []uint64{1}, Booker: testBooker(),
	})
	assert.ErrorIs(t, err, repository.ErrShowtimeNotFound)
}

func TestReserveInsufficientCapacity(t *testing.T) {
	f := newFakeBackend()
	f.addShowtime(1, 10, 100, 2)
	f.addSeats(10, 101, 102, 103)
	co := newTestCoordinator(f)

	_, err := co.Reserve(context.Background(), ReserveRequest{
		ShowtimeID: 1, SeatIDs: []uint64{101, 102, 103}, Booker: testBooker(),
	})
	var capErr *InsufficientCapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, uint32(2), capErr.Remaining)
}

func TestReserveInvalidSeats(t *testing.T) {
	f := newFakeBackend()
	f.addShowtime(1, 10, 100, 50)
	f.addSeats(10, 101, 102)
	co := newTestCoordinator(f)

	_, err := co.Reserve(context.Background(), ReserveRequest{
		ShowtimeID: 1, SeatIDs: []uint64{101, 999}, Booker: testBooker(),
	})
	var seatErr *InvalidSeatError
	require.ErrorAs(t, err, &seatErr)
	assert.Equal(t, []uint64{999}, seatErr.SeatIDs)
	assert.Equal(t, uint32(50), f.showtimes[1].AvailableSeats)
}

func TestReserveSeatsAlreadyTaken(t *testing.T) {
	f := newFakeBackend()
	f.addShowtime(1, 10, 100, 50)
	f.addSeats(10, 101, 102, 103)
	co := newTestCoordinator(f)

	_, err := co.Reserve(context.Background(), ReserveRequest{
		ShowtimeID: 1, SeatIDs: []uint64{101, 102}, Booker: testBooker(),
	})
	require.NoError(t, err)

	_, err = co.Reserve(context.Background(), ReserveRequest{
		ShowtimeID: 1, SeatIDs: []uint64{102, 103}, Booker: testBooker(),
	})
	var taken *SeatsTakenError
	require.ErrorAs(t, err, &taken)
	assert.Equal(t, []uint64{102}, taken.SeatIDs)

	// Only the first reservation decremented the counter.
	assert.Equal(t, uint32(48), f.showtimes[1].AvailableSeats)
	assert.Len(t, f.bookings, 1)
}

func TestReserveDuplicateEntryAtCommit(t *testing.T) {
	f := newFakeBackend()
	f.addShowtime(1, 10, 100, 50)
	f.addSeats(10, 101)
	f.assignErr = &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	co := newTestCoordinator(f)

	_, err := co.Reserve(context.Background(), ReserveRequest{
		ShowtimeID: 1, SeatIDs: []uint64{101}, Booker: testBooker(),
	})
	var taken *SeatsTakenError
	require.ErrorAs(t, err, &taken)
	assert.Empty(t, taken.SeatIDs)

	// Rolled back completely.
	assert.Equal(t, uint32(50), f.showtimes[1].AvailableSeats)
	assert.Empty(t, f.bookings)
}

func TestReserveLockContentionMapsToBusy(t *testing.T) {
	for _, num := range []uint16{1205, 1213} {
		f := newFakeBackend()
		f.addShowtime(1, 10, 100, 50)
		f.addSeats(10, 101)
		f.assignErr = &mysql.MySQLError{Number: num}
		co := newTestCoordinator(f)

		_, err := co.Reserve(context.Background(), ReserveRequest{
			ShowtimeID: 1, SeatIDs: []uint64{101}, Booker: testBooker(),
		})
		assert.ErrorIs(t, err, ErrBusy)
		assert.Empty(t, f.bookings)
	}
}

func TestReservePersistenceFailureRollsBack(t *testing.T) {
	f := newFakeBackend()
	f.addShowtime(1, 10, 100, 50)
	f.addSeats(10, 101)
	f.assignErr = errors.New("connection reset")
	co := newTestCoordinator(f)

	_, err := co.Reserve(context.Background(), ReserveRequest{
		ShowtimeID: 1, SeatIDs: []uint64{101}, Booker: testBooker(),
	})
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, uint32(50), f.showtimes[1].AvailableSeats)
	assert.Empty(t, f.bookings)
}

func TestReserveConcurrentOverlapSingleWinner(t *testing.T) {
	f := newFakeBackend()
	f.addShowtime(1, 10, 100, 50)
	f.addSeats(10, 101, 102)
	co := newTestCoordinator(f)

	const attempts = 16
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = co.Reserve(context.Background(), ReserveRequest{
				ShowtimeID: 1, SeatIDs: []uint64{101, 102}, Booker: testBooker(),
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			var taken *SeatsTakenError
			require.ErrorAs(t, err, &taken)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, uint32(48), f.showtimes[1].AvailableSeats)
	assert.Len(t, f.assigned[1], 2)
}

func TestReserveConcurrentDisjointAllSucceed(t *testing.T) {
	f := newFakeBackend()
	f.addShowtime(1, 10, 100, 50)
	seatIDs := make([]uint64, 0, 20)
	for i := uint64(101); i < 121; i++ {
		seatIDs = append(seatIDs, i)
	}
	f.addSeats(10, seatIDs...)
	co := newTestCoordinator(f)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = co.Reserve(context.Background(), ReserveRequest{
				ShowtimeID: 1,
				SeatIDs:    []uint64{seatIDs[i*2], seatIDs[i*2+1]},
				Booker:     testBooker(),
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	// Conservation: remaining plus assigned equals total capacity.
	assert.Equal(t, uint32(30), f.showtimes[1].AvailableSeats)
	assert.Len(t, f.assigned[1], 20)
}
