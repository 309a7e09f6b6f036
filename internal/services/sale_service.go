package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"transcomarapa/internal/domain"
	"transcomarapa/internal/models"
	"transcomarapa/internal/repositories/interfaces"
	"transcomarapa/internal/utils"
	"transcomarapa/pkg/logger"
	"transcomarapa/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TicketSaleRequest struct {
	TripID     primitive.ObjectID   `json:"trip_id" binding:"required"`
	CustomerID primitive.ObjectID   `json:"customer_id" binding:"required"`
	Seats      []int                `json:"seats" binding:"required" validate:"required,min=1,dive,min=1"`
	Method     models.PaymentMethod `json:"method" binding:"required" validate:"required,payment_method"`
}

type ParcelSaleRequest struct {
	TripID        primitive.ObjectID    `json:"trip_id" binding:"required"`
	CustomerID    primitive.ObjectID    `json:"customer_id" binding:"required"`
	Weight        float64               `json:"weight" binding:"required" validate:"required,gt=0"`
	Description   string                `json:"description"`
	RecipientName string                `json:"recipient_name" binding:"required" validate:"required"`
	Modality      models.ParcelModality `json:"modality" binding:"required" validate:"required,parcel_modality"`
	Method        models.PaymentMethod  `json:"method" validate:"omitempty,payment_method"`
	TotalAmount   float64               `json:"total_amount" binding:"required" validate:"required,gt=0"`
	OriginAmount  float64               `json:"origin_amount"`
}

// SaleDetail is the full read model of one sale.
type SaleDetail struct {
	Sale    *models.Sale           `json:"sale"`
	Tickets []*models.Ticket       `json:"tickets,omitempty"`
	Parcel  *models.Parcel         `json:"parcel,omitempty"`
	Entries []*models.PaymentEntry `json:"payment_entries"`
}

type SaleService interface {
	// CreateTicketSale sells seats on a trip. It locks the seats, re-checks
	// them against sold tickets, persists the sale atomically and then runs
	// the gateway leg for qr/card payments. A failed gateway leg undoes the
	// sale so the seats free up immediately.
	CreateTicketSale(ctx context.Context, req *TicketSaleRequest) (*models.CheckoutResult, error)

	// CreateParcelSale registers a shipment. The Method applies to the
	// origin leg; split and destination modalities leave a remainder to be
	// confirmed on delivery.
	CreateParcelSale(ctx context.Context, req *ParcelSaleRequest) (*models.CheckoutResult, error)

	GetSale(ctx context.Context, id primitive.ObjectID) (*SaleDetail, error)

	// CancelSale voids a sale before departure: line items and ledger
	// entries are removed, the sale itself stays as a cancelled tombstone.
	CancelSale(ctx context.Context, id primitive.ObjectID) error

	// RetryPayment reissues the gateway artifact for a still-pending sale:
	// a fresh QR or a fresh card intent.
	RetryPayment(ctx context.Context, saleID primitive.ObjectID) (*models.CheckoutResult, error)

	// ConfirmDestinationPayment collects the outstanding remainder of a
	// parcel sale at the destination counter.
	ConfirmDestinationPayment(ctx context.Context, saleID primitive.ObjectID, method models.PaymentMethod) (*models.CheckoutResult, error)

	// CheckPaymentStatus polls the gateway for pending entries and returns
	// the reconciled sale.
	CheckPaymentStatus(ctx context.Context, saleID primitive.ObjectID) (*models.Sale, error)

	// FindCustomerByDocument looks a customer up by national document id,
	// the way clerks identify walk-in buyers.
	FindCustomerByDocument(ctx context.Context, documentID string) (*models.User, error)

	// ListCustomerSales pages through one customer's purchase history.
	ListCustomerSales(ctx context.Context, customerID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Sale, int64, error)
}

type saleService struct {
	tripRepo   interfaces.TripRepository
	userRepo   interfaces.UserRepository
	saleRepo   interfaces.SaleRepository
	ticketRepo interfaces.TicketRepository
	parcelRepo interfaces.ParcelRepository
	entryRepo  interfaces.PaymentEntryRepository
	seatLocks  SeatLockService
	payments   PaymentService
	tx         TxRunner
	logger     *logger.Logger
	maxSeats   int
}

func NewSaleService(
	tripRepo interfaces.TripRepository,
	userRepo interfaces.UserRepository,
	saleRepo interfaces.SaleRepository,
	ticketRepo interfaces.TicketRepository,
	parcelRepo interfaces.ParcelRepository,
	entryRepo interfaces.PaymentEntryRepository,
	seatLocks SeatLockService,
	payments PaymentService,
	tx TxRunner,
	log *logger.Logger,
	maxSeats int,
) SaleService {
	return &saleService{
		tripRepo:   tripRepo,
		userRepo:   userRepo,
		saleRepo:   saleRepo,
		ticketRepo: ticketRepo,
		parcelRepo: parcelRepo,
		entryRepo:  entryRepo,
		seatLocks:  seatLocks,
		payments:   payments,
		tx:         tx,
		logger:     log,
		maxSeats:   maxSeats,
	}
}

func (s *saleService) CreateTicketSale(ctx context.Context, req *TicketSaleRequest) (*models.CheckoutResult, error) {
	seats, err := normalizeSeats(req.Seats, s.maxSeats)
	if err != nil {
		return nil, err
	}
	if !validMethod(req.Method) {
		return nil, fmt.Errorf("%w: unknown payment method %q", domain.ErrInvalidState, req.Method)
	}

	trip, err := s.tripRepo.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if !trip.Sellable(time.Now()) {
		return nil, domain.ErrTripNotSellable
	}
	for _, seat := range seats {
		if seat < 1 || seat > trip.TotalSeats {
			return nil, fmt.Errorf("%w: seat %d out of range", domain.ErrInvalidState, seat)
		}
	}

	customer, err := s.userRepo.GetByID(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	lockSet, err := s.seatLocks.AcquireSeats(ctx, trip.ID, seats)
	if err != nil {
		return nil, err
	}
	defer s.seatLocks.Release(ctx, lockSet)

	// Locks are advisory; the sold set is the truth, re-read under lock.
	sold, err := s.ticketRepo.SoldSeats(ctx, trip.ID)
	if err != nil {
		return nil, err
	}
	if conflicts := intersect(seats, sold); len(conflicts) > 0 {
		return nil, &domain.SeatUnavailableError{Seats: conflicts}
	}

	total := trip.Price * float64(len(seats))
	now := time.Now()

	sale := &models.Sale{
		Kind:        models.SaleKindTicket,
		Status:      models.SaleStatusPending,
		TotalAmount: total,
		Currency:    trip.Currency,
		CustomerID:  customer.ID,
		VehicleID:   trip.VehicleID,
	}
	entry := &models.PaymentEntry{
		Installment: 1,
		Amount:      total,
		Method:      req.Method,
		Status:      models.PaymentStatusPending,
	}
	if req.Method == models.PaymentMethodCash {
		sale.Status = models.SaleStatusPaid
		entry.Status = models.PaymentStatusPaid
		entry.PaidAt = &now
	}

	tickets := make([]*models.Ticket, 0, len(seats))
	for _, seat := range seats {
		tickets = append(tickets, &models.Ticket{
			TripID:  trip.ID,
			RouteID: trip.RouteID,
			Seat:    seat,
		})
	}

	err = s.tx.RunTransaction(ctx, func(txCtx context.Context) error {
		if err := s.saleRepo.Create(txCtx, sale); err != nil {
			return err
		}
		for _, t := range tickets {
			t.SaleID = sale.ID
		}
		if err := s.ticketRepo.CreateMany(txCtx, tickets); err != nil {
			return err
		}
		entry.SaleID = sale.ID
		return s.entryRepo.Create(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	result := &models.CheckoutResult{
		Sale:    sale,
		Tickets: tickets,
		Entry:   entry,
	}

	switch req.Method {
	case models.PaymentMethodQR:
		resp, err := s.payments.IssueQR(ctx, sale, customer, entry, ticketOrderLines(trip, seats))
		if err != nil {
			s.compensate(ctx, sale.ID)
			return nil, err
		}
		result.QRImage = resp.QRImage
	case models.PaymentMethodCard:
		resp, err := s.payments.CreateCardIntent(ctx, sale, entry)
		if err != nil {
			s.compensate(ctx, sale.ID)
			return nil, err
		}
		result.ClientSecret = resp.ClientSecret
	}

	s.logger.LogSaleEvent(sale.ID, "ticket_sale_created", map[string]interface{}{
		"trip_id": trip.ID.Hex(),
		"seats":   seats,
		"method":  req.Method,
		"total":   total,
	})
	return result, nil
}

func (s *saleService) CreateParcelSale(ctx context.Context, req *ParcelSaleRequest) (*models.CheckoutResult, error) {
	if req.TotalAmount <= 0 {
		return nil, fmt.Errorf("%w: total amount must be positive", domain.ErrInvalidState)
	}
	switch req.Modality {
	case models.ParcelPayAtOrigin:
		if !validMethod(req.Method) {
			return nil, fmt.Errorf("%w: unknown payment method %q", domain.ErrInvalidState, req.Method)
		}
	case models.ParcelPaySplit:
		if req.OriginAmount <= 0 || req.OriginAmount >= req.TotalAmount {
			return nil, fmt.Errorf("%w: split origin amount must be between 0 and the total", domain.ErrInvalidState)
		}
	case models.ParcelPayAtDestination:
	default:
		return nil, fmt.Errorf("%w: unknown parcel modality %q", domain.ErrInvalidState, req.Modality)
	}

	trip, err := s.tripRepo.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if !trip.Sellable(time.Now()) {
		return nil, domain.ErrTripNotSellable
	}

	customer, err := s.userRepo.GetByID(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	sale := &models.Sale{
		Kind:        models.SaleKindParcel,
		Status:      models.SaleStatusPending,
		TotalAmount: req.TotalAmount,
		Currency:    trip.Currency,
		CustomerID:  customer.ID,
		VehicleID:   trip.VehicleID,
	}
	parcel := &models.Parcel{
		TripID:        trip.ID,
		RouteID:       trip.RouteID,
		Weight:        req.Weight,
		Description:   req.Description,
		RecipientName: req.RecipientName,
		Modality:      req.Modality,
	}

	var entry *models.PaymentEntry
	switch req.Modality {
	case models.ParcelPayAtOrigin:
		if req.Method == models.PaymentMethodCash {
			parcel.CollectedOrigin = req.TotalAmount
			sale.Status = models.SaleStatusPaid
		} else {
			entry = &models.PaymentEntry{
				Installment: 1,
				Amount:      req.TotalAmount,
				Method:      req.Method,
				Status:      models.PaymentStatusPending,
			}
		}
	case models.ParcelPaySplit:
		// Origin leg is cash at the counter; the rest travels with the
		// parcel and is collected on delivery.
		parcel.CollectedOrigin = req.OriginAmount
	}

	err = s.tx.RunTransaction(ctx, func(txCtx context.Context) error {
		if err := s.saleRepo.Create(txCtx, sale); err != nil {
			return err
		}
		parcel.SaleID = sale.ID
		if err := s.parcelRepo.Create(txCtx, parcel); err != nil {
			return err
		}
		if entry != nil {
			entry.SaleID = sale.ID
			return s.entryRepo.Create(txCtx, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &models.CheckoutResult{
		Sale:   sale,
		Parcel: parcel,
		Entry:  entry,
	}

	if entry != nil {
		switch entry.Method {
		case models.PaymentMethodQR:
			resp, err := s.payments.IssueQR(ctx, sale, customer, entry, parcelOrderLines(parcel, entry.Amount))
			if err != nil {
				s.compensate(ctx, sale.ID)
				return nil, err
			}
			result.QRImage = resp.QRImage
		case models.PaymentMethodCard:
			resp, err := s.payments.CreateCardIntent(ctx, sale, entry)
			if err != nil {
				s.compensate(ctx, sale.ID)
				return nil, err
			}
			result.ClientSecret = resp.ClientSecret
		}
	}

	s.logger.LogSaleEvent(sale.ID, "parcel_sale_created", map[string]interface{}{
		"trip_id":  trip.ID.Hex(),
		"modality": req.Modality,
		"total":    req.TotalAmount,
	})
	return result, nil
}

func (s *saleService) GetSale(ctx context.Context, id primitive.ObjectID) (*SaleDetail, error) {
	sale, err := s.saleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &SaleDetail{Sale: sale}

	detail.Entries, err = s.entryRepo.GetBySaleID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch sale.Kind {
	case models.SaleKindTicket:
		detail.Tickets, err = s.ticketRepo.GetBySaleID(ctx, id)
		if err != nil {
			return nil, err
		}
	case models.SaleKindParcel:
		detail.Parcel, err = s.parcelRepo.GetBySaleID(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	return detail, nil
}

func (s *saleService) CancelSale(ctx context.Context, id primitive.ObjectID) error {
	sale, err := s.saleRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sale.Status == models.SaleStatusCancelled {
		return domain.ErrInvalidState
	}

	var tripID primitive.ObjectID
	switch sale.Kind {
	case models.SaleKindTicket:
		tickets, err := s.ticketRepo.GetBySaleID(ctx, id)
		if err != nil {
			return err
		}
		if len(tickets) > 0 {
			tripID = tickets[0].TripID
		}
	case models.SaleKindParcel:
		parcel, err := s.parcelRepo.GetBySaleID(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if parcel != nil {
			tripID = parcel.TripID
		}
	}
	if !tripID.IsZero() {
		trip, err := s.tripRepo.GetByID(ctx, tripID)
		if err != nil {
			return err
		}
		if trip.Departed(time.Now()) {
			return domain.ErrSaleNotCancellable
		}
	}

	err = s.tx.RunTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ticketRepo.DeleteBySaleID(txCtx, id); err != nil {
			return err
		}
		if err := s.parcelRepo.DeleteBySaleID(txCtx, id); err != nil {
			return err
		}
		if err := s.entryRepo.DeleteBySaleID(txCtx, id); err != nil {
			return err
		}
		return s.saleRepo.UpdateStatus(txCtx, id, models.SaleStatusCancelled)
	})
	if err != nil {
		return err
	}

	s.logger.LogSaleEvent(id, "sale_cancelled", map[string]interface{}{"kind": sale.Kind})
	return nil
}

func (s *saleService) RetryPayment(ctx context.Context, saleID primitive.ObjectID) (*models.CheckoutResult, error) {
	sale, err := s.saleRepo.GetByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status != models.SaleStatusPending {
		return nil, domain.ErrAlreadySettled
	}

	entries, err := s.entryRepo.GetBySaleID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	entry := pendingGatewayEntry(entries)
	if entry == nil {
		return nil, fmt.Errorf("%w: no pending gateway payment to retry", domain.ErrInvalidState)
	}

	customer, err := s.userRepo.GetByID(ctx, sale.CustomerID)
	if err != nil {
		return nil, err
	}

	result := &models.CheckoutResult{Sale: sale, Entry: entry}

	switch entry.Method {
	case models.PaymentMethodQR:
		lines, err := s.orderLinesForSale(ctx, sale, entry.Amount)
		if err != nil {
			return nil, err
		}
		resp, err := s.payments.IssueQR(ctx, sale, customer, entry, lines)
		if err != nil {
			return nil, err
		}
		result.QRImage = resp.QRImage
	case models.PaymentMethodCard:
		resp, err := s.payments.CreateCardIntent(ctx, sale, entry)
		if err != nil {
			return nil, err
		}
		result.ClientSecret = resp.ClientSecret
	}

	return result, nil
}

func (s *saleService) ConfirmDestinationPayment(ctx context.Context, saleID primitive.ObjectID, method models.PaymentMethod) (*models.CheckoutResult, error) {
	sale, err := s.saleRepo.GetByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Kind != models.SaleKindParcel {
		return nil, fmt.Errorf("%w: not a parcel sale", domain.ErrInvalidState)
	}
	if sale.Status == models.SaleStatusPaid {
		return nil, domain.ErrAlreadySettled
	}
	if sale.Status == models.SaleStatusCancelled {
		return nil, domain.ErrInvalidState
	}
	if !validMethod(method) {
		return nil, fmt.Errorf("%w: unknown payment method %q", domain.ErrInvalidState, method)
	}

	parcel, err := s.parcelRepo.GetBySaleID(ctx, saleID)
	if err != nil {
		return nil, err
	}

	paid, err := s.entryRepo.SumPaidBySale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	remainder := sale.TotalAmount - paid - parcel.CollectedOrigin - parcel.CollectedDestination
	if remainder <= amountEpsilon {
		return nil, domain.ErrAlreadySettled
	}

	if method == models.PaymentMethodCash {
		if err := s.parcelRepo.AddCollected(ctx, saleID, 0, remainder); err != nil {
			return nil, err
		}
		if _, err := s.payments.Reconcile(ctx, saleID); err != nil {
			return nil, err
		}
		sale, err = s.saleRepo.GetByID(ctx, saleID)
		if err != nil {
			return nil, err
		}
		return &models.CheckoutResult{Sale: sale, Parcel: parcel}, nil
	}

	entries, err := s.entryRepo.GetBySaleID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	entry := &models.PaymentEntry{
		SaleID:      saleID,
		Installment: len(entries) + 1,
		Amount:      remainder,
		Method:      method,
		Status:      models.PaymentStatusPending,
	}
	if err := s.entryRepo.Create(ctx, entry); err != nil {
		return nil, err
	}

	customer, err := s.userRepo.GetByID(ctx, sale.CustomerID)
	if err != nil {
		return nil, err
	}

	result := &models.CheckoutResult{Sale: sale, Parcel: parcel, Entry: entry}

	switch method {
	case models.PaymentMethodQR:
		resp, err := s.payments.IssueQR(ctx, sale, customer, entry, parcelOrderLines(parcel, remainder))
		if err != nil {
			return nil, err
		}
		result.QRImage = resp.QRImage
	case models.PaymentMethodCard:
		resp, err := s.payments.CreateCardIntent(ctx, sale, entry)
		if err != nil {
			return nil, err
		}
		result.ClientSecret = resp.ClientSecret
	}

	return result, nil
}

func (s *saleService) CheckPaymentStatus(ctx context.Context, saleID primitive.ObjectID) (*models.Sale, error) {
	entries, err := s.entryRepo.GetBySaleID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.Settled() || entry.Method == models.PaymentMethodCash {
			continue
		}
		if _, err := s.payments.CheckEntry(ctx, entry.ID); err != nil {
			return nil, err
		}
	}
	return s.saleRepo.GetByID(ctx, saleID)
}

func (s *saleService) FindCustomerByDocument(ctx context.Context, documentID string) (*models.User, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: empty document id", domain.ErrInvalidState)
	}
	return s.userRepo.GetByDocumentID(ctx, documentID)
}

func (s *saleService) ListCustomerSales(ctx context.Context, customerID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Sale, int64, error) {
	return s.saleRepo.ListByCustomer(ctx, customerID, params)
}

// compensate removes a sale whose gateway leg failed after commit. Best
// effort: leftovers are picked up by the stale reservation reaper.
func (s *saleService) compensate(ctx context.Context, saleID primitive.ObjectID) {
	err := s.tx.RunTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ticketRepo.DeleteBySaleID(txCtx, saleID); err != nil {
			return err
		}
		if err := s.parcelRepo.DeleteBySaleID(txCtx, saleID); err != nil {
			return err
		}
		if err := s.entryRepo.DeleteBySaleID(txCtx, saleID); err != nil {
			return err
		}
		return s.saleRepo.Delete(txCtx, saleID)
	})
	if err != nil {
		s.logger.WithError(err).WithSaleID(saleID).Error("failed to undo sale after gateway error")
	}
}

func (s *saleService) orderLinesForSale(ctx context.Context, sale *models.Sale, amount float64) ([]payment.OrderLine, error) {
	switch sale.Kind {
	case models.SaleKindTicket:
		tickets, err := s.ticketRepo.GetBySaleID(ctx, sale.ID)
		if err != nil {
			return nil, err
		}
		if len(tickets) == 0 {
			return nil, domain.ErrNotFound
		}
		trip, err := s.tripRepo.GetByID(ctx, tickets[0].TripID)
		if err != nil {
			return nil, err
		}
		seats := make([]int, 0, len(tickets))
		for _, t := range tickets {
			seats = append(seats, t.Seat)
		}
		return ticketOrderLines(trip, seats), nil
	default:
		parcel, err := s.parcelRepo.GetBySaleID(ctx, sale.ID)
		if err != nil {
			return nil, err
		}
		return parcelOrderLines(parcel, amount), nil
	}
}

func ticketOrderLines(trip *models.Trip, seats []int) []payment.OrderLine {
	lines := make([]payment.OrderLine, 0, len(seats))
	for _, seat := range seats {
		lines = append(lines, payment.OrderLine{
			Serial:   seat,
			Product:  fmt.Sprintf("Asiento %d - %s", seat, trip.RouteName),
			Quantity: 1,
			Price:    trip.Price,
			Discount: 0,
			Total:    trip.Price,
		})
	}
	return lines
}

func parcelOrderLines(parcel *models.Parcel, amount float64) []payment.OrderLine {
	product := "Encomienda"
	if parcel.Description != "" {
		product = "Encomienda - " + parcel.Description
	}
	return []payment.OrderLine{{
		Serial:   1,
		Product:  product,
		Quantity: 1,
		Price:    amount,
		Discount: 0,
		Total:    amount,
	}}
}

func normalizeSeats(seats []int, maxSeats int) ([]int, error) {
	if len(seats) == 0 {
		return nil, fmt.Errorf("%w: no seats requested", domain.ErrInvalidState)
	}

	seen := make(map[int]bool, len(seats))
	out := make([]int, 0, len(seats))
	for _, seat := range seats {
		if !seen[seat] {
			seen[seat] = true
			out = append(out, seat)
		}
	}
	if len(out) > maxSeats {
		return nil, domain.ErrTooManySeats
	}
	sort.Ints(out)
	return out, nil
}

func validMethod(method models.PaymentMethod) bool {
	switch method {
	case models.PaymentMethodCash, models.PaymentMethodQR, models.PaymentMethodCard:
		return true
	}
	return false
}

func intersect(a, b []int) []int {
	set := make(map[int]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	var out []int
	for _, v := range a {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}

func pendingGatewayEntry(entries []*models.PaymentEntry) *models.PaymentEntry {
	for _, e := range entries {
		if e.Status == models.PaymentStatusPending &&
			(e.Method == models.PaymentMethodQR || e.Method == models.PaymentMethodCard) {
			return e
		}
	}
	return nil
}
