package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"transcomarapa/internal/domain"
	"transcomarapa/internal/models"
	"transcomarapa/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type saleFixture struct {
	trip     *models.Trip
	customer *models.User

	tripRepo   *fakeTripRepo
	saleRepo   *fakeSaleRepo
	ticketRepo *fakeTicketRepo
	parcelRepo *fakeParcelRepo
	entryRepo  *fakeEntryRepo
	cache      *fakeCache
	locks      SeatLockService
	qr         *fakeQRGateway
	card       *fakeCardGateway
	svc        SaleService
}

func newSaleFixture(maxSeats int) *saleFixture {
	f := &saleFixture{
		trip:       newTestTrip(10),
		saleRepo:   newFakeSaleRepo(),
		ticketRepo: newFakeTicketRepo(),
		parcelRepo: newFakeParcelRepo(),
		entryRepo:  newFakeEntryRepo(),
		cache:      newFakeCache(),
		qr:         &fakeQRGateway{},
		card:       &fakeCardGateway{},
	}
	f.customer = &models.User{
		ID:         primitive.NewObjectID(),
		FirstName:  "Juan",
		LastName:   "Flores",
		DocumentID: "7781234",
		Phone:      "70012345",
		Email:      "juan@example.com",
		Role:       models.UserRoleCustomer,
	}
	f.tripRepo = newFakeTripRepo(f.trip)
	log := newTestLogger()
	f.locks = NewSeatLockService(f.cache, 10*time.Second, log)
	payments := NewPaymentService(
		f.entryRepo, f.saleRepo, f.parcelRepo, f.ticketRepo,
		f.qr, f.card, fakeTx{}, log,
		"transcomarapa", 5*time.Second,
	)
	f.svc = NewSaleService(
		f.tripRepo, newFakeUserRepo(f.customer), f.saleRepo, f.ticketRepo,
		f.parcelRepo, f.entryRepo, f.locks, payments, fakeTx{}, log, maxSeats,
	)
	return f
}

func (f *saleFixture) ticketRequest(seats []int, method models.PaymentMethod) *TicketSaleRequest {
	return &TicketSaleRequest{
		TripID:     f.trip.ID,
		CustomerID: f.customer.ID,
		Seats:      seats,
		Method:     method,
	}
}

func TestCreateTicketSaleCash(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	result, err := f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{7, 3}, models.PaymentMethodCash))
	if err != nil {
		t.Fatalf("CreateTicketSale: %v", err)
	}

	if result.Sale.Status != models.SaleStatusPaid {
		t.Errorf("cash sale should settle immediately, got %s", result.Sale.Status)
	}
	if result.Sale.TotalAmount != 70 {
		t.Errorf("expected total 70, got %v", result.Sale.TotalAmount)
	}
	if len(result.Tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(result.Tickets))
	}
	if result.Entry.Status != models.PaymentStatusPaid || result.Entry.PaidAt == nil {
		t.Errorf("cash entry should be paid: %+v", result.Entry)
	}

	sold, _ := f.ticketRepo.SoldSeats(ctx, f.trip.ID)
	if len(sold) != 2 {
		t.Errorf("expected 2 sold seats, got %v", sold)
	}

	// The checkout locks must not outlive the sale.
	for _, seat := range []int{3, 7} {
		held, _ := f.cache.Exists(ctx, seatLockKey(f.trip.ID, seat))
		if held {
			t.Errorf("seat %d lock leaked past checkout", seat)
		}
	}
}

func TestCreateTicketSaleSeatAlreadySold(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	err := f.ticketRepo.CreateMany(ctx, []*models.Ticket{
		{SaleID: primitive.NewObjectID(), TripID: f.trip.ID, Seat: 3},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{3, 4}, models.PaymentMethodCash))
	var seatErr *domain.SeatUnavailableError
	if !errors.As(err, &seatErr) {
		t.Fatalf("expected SeatUnavailableError, got %v", err)
	}
	if len(seatErr.Seats) != 1 || seatErr.Seats[0] != 3 {
		t.Fatalf("expected conflict on seat 3, got %v", seatErr.Seats)
	}

	// Seat 4 was never sold and must not be left held.
	held, _ := f.cache.Exists(ctx, seatLockKey(f.trip.ID, 4))
	if held {
		t.Error("seat 4 lock leaked after failed checkout")
	}
}

func TestCreateTicketSaleSeatHeldByAnotherClerk(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	if _, err := f.cache.SetNX(ctx, seatLockKey(f.trip.ID, 5), "other-token", 10*time.Second); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{5}, models.PaymentMethodCash))
	var lockErr *domain.SeatLockedError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected SeatLockedError, got %v", err)
	}
	if len(lockErr.Seats) != 1 || lockErr.Seats[0] != 5 {
		t.Fatalf("expected held seat [5], got %v", lockErr.Seats)
	}
}

func TestCreateTicketSaleConcurrentLastSeat(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	const clerks = 8
	results := make([]error, clerks)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < clerks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{9}, models.PaymentMethodCash))
			results[i] = err
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
			continue
		}
		var lockErr *domain.SeatLockedError
		var seatErr *domain.SeatUnavailableError
		if !errors.As(err, &lockErr) && !errors.As(err, &seatErr) {
			t.Errorf("loser got an unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winning checkout, got %d", winners)
	}

	sold, _ := f.ticketRepo.SoldSeats(ctx, f.trip.ID)
	if len(sold) != 1 || sold[0] != 9 {
		t.Fatalf("expected seat 9 sold exactly once, got %v", sold)
	}
	if got := len(f.saleRepo.sales); got != 1 {
		t.Fatalf("expected exactly one sale, got %d", got)
	}
}

func TestCreateTicketSaleTooManySeats(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(2)

	_, err := f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{1, 2, 3}, models.PaymentMethodCash))
	if !errors.Is(err, domain.ErrTooManySeats) {
		t.Fatalf("expected ErrTooManySeats, got %v", err)
	}
}

func TestCreateTicketSaleDepartedTrip(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)
	f.trip.Departure = time.Now().Add(-time.Hour)

	_, err := f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{1}, models.PaymentMethodCash))
	if !errors.Is(err, domain.ErrTripNotSellable) {
		t.Fatalf("expected ErrTripNotSellable, got %v", err)
	}
}

func TestCreateTicketSaleQR(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	result, err := f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{1}, models.PaymentMethodQR))
	if err != nil {
		t.Fatalf("CreateTicketSale: %v", err)
	}

	if result.Sale.Status != models.SaleStatusPending {
		t.Errorf("qr sale should stay pending, got %s", result.Sale.Status)
	}
	if result.QRImage == "" {
		t.Error("expected a QR image in the result")
	}
	if result.Entry.CorrelationID == "" {
		t.Error("expected a correlation id on the ledger entry")
	}
	if len(f.qr.requests) != 1 {
		t.Fatalf("expected 1 gateway request, got %d", len(f.qr.requests))
	}
	if got := f.qr.requests[0].Amount; got != 35 {
		t.Errorf("expected gateway amount 35, got %v", got)
	}
}

func TestCreateTicketSaleGatewayDownUndoesSale(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)
	f.qr.requestFn = func(ctx context.Context, req *payment.QRRequest) (*payment.QRResponse, error) {
		return nil, errors.New("connection refused")
	}

	_, err := f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{1, 2}, models.PaymentMethodQR))
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}

	// Nothing persisted, seats back on sale.
	sold, _ := f.ticketRepo.SoldSeats(ctx, f.trip.ID)
	if len(sold) != 0 {
		t.Errorf("seats should be free again, still sold: %v", sold)
	}
	if len(f.saleRepo.sales) != 0 {
		t.Errorf("expected no sales left, got %d", len(f.saleRepo.sales))
	}
}

func TestCreateTicketSaleCardBelowMinimum(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)
	f.card.createFn = func(ctx context.Context, req *payment.IntentRequest) (*payment.IntentResponse, error) {
		return nil, &payment.AmountTooLowError{
			NativeCurrency:     "BOB",
			NativeMinimum:      "3.45",
			SettlementCurrency: "USD",
			SettlementMinimum:  0.50,
		}
	}

	_, err := f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{1}, models.PaymentMethodCard))
	var tooLow *domain.AmountTooLowError
	if !errors.As(err, &tooLow) {
		t.Fatalf("expected AmountTooLowError, got %v", err)
	}
	if tooLow.Currency != "BOB" {
		t.Errorf("expected minimum in sale currency, got %s", tooLow.Currency)
	}
}

func TestCancelSaleFreesSeats(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	result, err := f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{8}, models.PaymentMethodCash))
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.CancelSale(ctx, result.Sale.ID); err != nil {
		t.Fatalf("CancelSale: %v", err)
	}

	sale, _ := f.saleRepo.GetByID(ctx, result.Sale.ID)
	if sale.Status != models.SaleStatusCancelled {
		t.Errorf("expected cancelled tombstone, got %s", sale.Status)
	}
	sold, _ := f.ticketRepo.SoldSeats(ctx, f.trip.ID)
	if len(sold) != 0 {
		t.Errorf("seat should be free, still sold: %v", sold)
	}

	// A second cancel is an error, not a silent no-op.
	if err := f.svc.CancelSale(ctx, result.Sale.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on double cancel, got %v", err)
	}
}

func TestCancelSaleAfterDeparture(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	result, err := f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{8}, models.PaymentMethodCash))
	if err != nil {
		t.Fatal(err)
	}

	f.trip.Departure = time.Now().Add(-time.Minute)

	err = f.svc.CancelSale(ctx, result.Sale.ID)
	if !errors.Is(err, domain.ErrSaleNotCancellable) {
		t.Fatalf("expected ErrSaleNotCancellable, got %v", err)
	}
}

func TestCancelParcelSaleAfterDeparture(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	created, err := f.svc.CreateParcelSale(ctx, &ParcelSaleRequest{
		TripID:        f.trip.ID,
		CustomerID:    f.customer.ID,
		Weight:        8,
		RecipientName: "Maria Rojas",
		Modality:      models.ParcelPayAtOrigin,
		Method:        models.PaymentMethodCash,
		TotalAmount:   50,
	})
	if err != nil {
		t.Fatal(err)
	}

	f.trip.Departure = time.Now().Add(-time.Minute)

	err = f.svc.CancelSale(ctx, created.Sale.ID)
	if !errors.Is(err, domain.ErrSaleNotCancellable) {
		t.Fatalf("expected ErrSaleNotCancellable, got %v", err)
	}

	// The shipment and its collected cash stay on record.
	parcel, err := f.parcelRepo.GetBySaleID(ctx, created.Sale.ID)
	if err != nil {
		t.Fatalf("parcel must survive a rejected cancel: %v", err)
	}
	if parcel.CollectedOrigin != 50 {
		t.Errorf("collected cash record lost, got %v", parcel.CollectedOrigin)
	}
}

func TestRetryPaymentReissuesQR(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	result, err := f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{1}, models.PaymentMethodQR))
	if err != nil {
		t.Fatal(err)
	}
	first := result.Entry.CorrelationID

	retried, err := f.svc.RetryPayment(ctx, result.Sale.ID)
	if err != nil {
		t.Fatalf("RetryPayment: %v", err)
	}
	if retried.QRImage == "" {
		t.Error("expected a fresh QR image")
	}
	if retried.Entry.CorrelationID == first {
		t.Errorf("retry must issue a new correlation id, both were %s", first)
	}
}

func TestRetryPaymentOnSettledSale(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	result, err := f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{1}, models.PaymentMethodCash))
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.RetryPayment(ctx, result.Sale.ID)
	if !errors.Is(err, domain.ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
}

func TestCreateParcelSaleOriginCash(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	result, err := f.svc.CreateParcelSale(ctx, &ParcelSaleRequest{
		TripID:        f.trip.ID,
		CustomerID:    f.customer.ID,
		Weight:        8,
		Description:   "Caja de repuestos",
		RecipientName: "Maria Rojas",
		Modality:      models.ParcelPayAtOrigin,
		Method:        models.PaymentMethodCash,
		TotalAmount:   50,
	})
	if err != nil {
		t.Fatalf("CreateParcelSale: %v", err)
	}

	if result.Sale.Status != models.SaleStatusPaid {
		t.Errorf("cash origin parcel should settle immediately, got %s", result.Sale.Status)
	}
	if result.Parcel.CollectedOrigin != 50 {
		t.Errorf("expected 50 collected at origin, got %v", result.Parcel.CollectedOrigin)
	}
	if result.Entry != nil {
		t.Error("cash origin parcel should not open a ledger entry")
	}
}

func TestCreateParcelSaleSplit(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	result, err := f.svc.CreateParcelSale(ctx, &ParcelSaleRequest{
		TripID:        f.trip.ID,
		CustomerID:    f.customer.ID,
		Weight:        20,
		RecipientName: "Maria Rojas",
		Modality:      models.ParcelPaySplit,
		TotalAmount:   100,
		OriginAmount:  40,
	})
	if err != nil {
		t.Fatalf("CreateParcelSale: %v", err)
	}

	if result.Sale.Status != models.SaleStatusPending {
		t.Errorf("split parcel should stay pending, got %s", result.Sale.Status)
	}
	if result.Parcel.CollectedOrigin != 40 {
		t.Errorf("expected 40 collected at origin, got %v", result.Parcel.CollectedOrigin)
	}
}

func TestCreateParcelSaleSplitRejectsBadOriginAmount(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	_, err := f.svc.CreateParcelSale(ctx, &ParcelSaleRequest{
		TripID:        f.trip.ID,
		CustomerID:    f.customer.ID,
		Weight:        20,
		RecipientName: "Maria Rojas",
		Modality:      models.ParcelPaySplit,
		TotalAmount:   100,
		OriginAmount:  100,
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestConfirmDestinationPaymentCash(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	created, err := f.svc.CreateParcelSale(ctx, &ParcelSaleRequest{
		TripID:        f.trip.ID,
		CustomerID:    f.customer.ID,
		Weight:        20,
		RecipientName: "Maria Rojas",
		Modality:      models.ParcelPaySplit,
		TotalAmount:   100,
		OriginAmount:  40,
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := f.svc.ConfirmDestinationPayment(ctx, created.Sale.ID, models.PaymentMethodCash)
	if err != nil {
		t.Fatalf("ConfirmDestinationPayment: %v", err)
	}
	if result.Sale.Status != models.SaleStatusPaid {
		t.Errorf("expected sale paid after destination cash, got %s", result.Sale.Status)
	}

	parcel, _ := f.parcelRepo.GetBySaleID(ctx, created.Sale.ID)
	if parcel.CollectedDestination != 60 {
		t.Errorf("expected 60 collected at destination, got %v", parcel.CollectedDestination)
	}

	// The remainder is already in; confirming again is a settled-sale error.
	_, err = f.svc.ConfirmDestinationPayment(ctx, created.Sale.ID, models.PaymentMethodCash)
	if !errors.Is(err, domain.ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
}

func TestConfirmDestinationPaymentQR(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	created, err := f.svc.CreateParcelSale(ctx, &ParcelSaleRequest{
		TripID:        f.trip.ID,
		CustomerID:    f.customer.ID,
		Weight:        20,
		RecipientName: "Maria Rojas",
		Modality:      models.ParcelPayAtDestination,
		TotalAmount:   80,
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := f.svc.ConfirmDestinationPayment(ctx, created.Sale.ID, models.PaymentMethodQR)
	if err != nil {
		t.Fatalf("ConfirmDestinationPayment: %v", err)
	}
	if result.QRImage == "" {
		t.Error("expected a QR image for the destination leg")
	}
	if result.Entry == nil || result.Entry.Amount != 80 {
		t.Fatalf("expected an 80 BOB ledger entry, got %+v", result.Entry)
	}
}

func TestCheckPaymentStatusSettlesViaPoll(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	result, err := f.svc.CreateTicketSale(ctx, f.ticketRequest([]int{1}, models.PaymentMethodQR))
	if err != nil {
		t.Fatal(err)
	}

	f.qr.pollFn = func(ctx context.Context, correlationID string) (payment.ProviderStatus, error) {
		return payment.StatusPaid, nil
	}

	sale, err := f.svc.CheckPaymentStatus(ctx, result.Sale.ID)
	if err != nil {
		t.Fatalf("CheckPaymentStatus: %v", err)
	}
	if sale.Status != models.SaleStatusPaid {
		t.Fatalf("expected sale paid after poll, got %s", sale.Status)
	}
}

func TestFindCustomerByDocument(t *testing.T) {
	ctx := context.Background()
	f := newSaleFixture(10)

	found, err := f.svc.FindCustomerByDocument(ctx, "7781234")
	if err != nil {
		t.Fatalf("FindCustomerByDocument: %v", err)
	}
	if found.ID != f.customer.ID {
		t.Error("found the wrong customer")
	}

	if _, err := f.svc.FindCustomerByDocument(ctx, "0000000"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
