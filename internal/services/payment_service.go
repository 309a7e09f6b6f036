package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"transcomarapa/internal/domain"
	"transcomarapa/internal/models"
	"transcomarapa/internal/repositories/interfaces"
	"transcomarapa/pkg/logger"
	"transcomarapa/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TxRunner runs a function inside a storage transaction. Satisfied by
// *database.MongoDB.
type TxRunner interface {
	RunTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Sale totals are money in float64; comparisons tolerate half a cent.
const amountEpsilon = 0.005

type PaymentService interface {
	// IssueQR asks the QR gateway for a fresh code and stores it on the
	// pending entry. Safe to call again for the same entry: each call
	// issues a new correlation id, so an abandoned QR cannot settle a
	// retried one.
	IssueQR(ctx context.Context, sale *models.Sale, payer *models.User, entry *models.PaymentEntry, lines []payment.OrderLine) (*payment.QRResponse, error)

	// CreateCardIntent opens a card payment intent for the entry amount.
	CreateCardIntent(ctx context.Context, sale *models.Sale, entry *models.PaymentEntry) (*payment.IntentResponse, error)

	// SettleEntry moves a pending ledger entry to a terminal status and
	// reconciles the owning sale, all in one transaction. Returns
	// domain.ErrAlreadySettled on replays.
	SettleEntry(ctx context.Context, entryID primitive.ObjectID, status models.PaymentStatus) error

	// Reconcile recomputes the sale status from its ledger plus any
	// out-of-band parcel collections. Settled sales are left untouched.
	Reconcile(ctx context.Context, saleID primitive.ObjectID) (models.SaleStatus, error)

	// HandleQRCallback settles the entry named by a gateway notification.
	HandleQRCallback(ctx context.Context, payload *payment.CallbackPayload) error

	// HandleCardWebhook verifies and applies a signed card gateway event.
	HandleCardWebhook(ctx context.Context, body []byte, signature string) error

	// CheckEntry polls the gateway for a pending entry and settles it if
	// the gateway reports a terminal state.
	CheckEntry(ctx context.Context, entryID primitive.ObjectID) (*models.PaymentEntry, error)
}

type paymentService struct {
	entryRepo  interfaces.PaymentEntryRepository
	saleRepo   interfaces.SaleRepository
	parcelRepo interfaces.ParcelRepository
	ticketRepo interfaces.TicketRepository
	qr         payment.QRGateway
	card       payment.CardGateway
	tx         TxRunner
	logger     *logger.Logger

	correlationPrefix string
	gatewayTimeout    time.Duration
}

func NewPaymentService(
	entryRepo interfaces.PaymentEntryRepository,
	saleRepo interfaces.SaleRepository,
	parcelRepo interfaces.ParcelRepository,
	ticketRepo interfaces.TicketRepository,
	qr payment.QRGateway,
	card payment.CardGateway,
	tx TxRunner,
	log *logger.Logger,
	correlationPrefix string,
	gatewayTimeout time.Duration,
) PaymentService {
	return &paymentService{
		entryRepo:         entryRepo,
		saleRepo:          saleRepo,
		parcelRepo:        parcelRepo,
		ticketRepo:        ticketRepo,
		qr:                qr,
		card:              card,
		tx:                tx,
		logger:            log,
		correlationPrefix: correlationPrefix,
		gatewayTimeout:    gatewayTimeout,
	}
}

func (s *paymentService) IssueQR(ctx context.Context, sale *models.Sale, payer *models.User, entry *models.PaymentEntry, lines []payment.OrderLine) (*payment.QRResponse, error) {
	correlationID := fmt.Sprintf("%s_%s", s.correlationPrefix, entry.ID.Hex())
	if entry.CorrelationID != "" {
		// Reissue: a new correlation id detaches the old QR for good.
		correlationID = fmt.Sprintf("%s_%s_%d", s.correlationPrefix, entry.ID.Hex(), time.Now().Unix())
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	resp, err := s.qr.RequestQR(gwCtx, &payment.QRRequest{
		CorrelationID: correlationID,
		Amount:        entry.Amount,
		Payer: payment.Payer{
			FullName:   payer.FullName(),
			DocumentID: payer.DocumentID,
			Phone:      payer.Phone,
			Email:      payer.Email,
			ClientCode: payer.ID.Hex(),
		},
		OrderLines: lines,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	if err := s.entryRepo.SetQRDetails(ctx, entry.ID, resp.QRImage, correlationID, resp.ExternalRef); err != nil {
		return nil, err
	}
	entry.QRImage = resp.QRImage
	entry.CorrelationID = correlationID
	entry.ExternalRef = resp.ExternalRef

	s.logger.LogPaymentEvent(entry.ID, "qr_issued", entry.Amount, sale.Currency)
	return resp, nil
}

func (s *paymentService) CreateCardIntent(ctx context.Context, sale *models.Sale, entry *models.PaymentEntry) (*payment.IntentResponse, error) {
	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	resp, err := s.card.CreateIntent(gwCtx, &payment.IntentRequest{
		Amount:      entry.Amount,
		Currency:    sale.Currency,
		Description: fmt.Sprintf("sale %s installment %d", sale.ID.Hex(), entry.Installment),
		Metadata: map[string]string{
			"sale_id":  sale.ID.Hex(),
			"entry_id": entry.ID.Hex(),
		},
	})
	if err != nil {
		var tooLow *payment.AmountTooLowError
		if errors.As(err, &tooLow) {
			return nil, &domain.AmountTooLowError{
				Currency: tooLow.NativeCurrency,
				Minimum:  tooLow.NativeMinimum,
			}
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	if err := s.entryRepo.SetIntentDetails(ctx, entry.ID, resp.IntentID, resp.SettlementCurrency, resp.SettlementAmount); err != nil {
		return nil, err
	}
	entry.PaymentIntentID = resp.IntentID
	entry.SettlementCurrency = resp.SettlementCurrency
	entry.SettlementAmount = resp.SettlementAmount

	s.logger.LogPaymentEvent(entry.ID, "intent_created", entry.Amount, sale.Currency)
	return resp, nil
}

func (s *paymentService) SettleEntry(ctx context.Context, entryID primitive.ObjectID, status models.PaymentStatus) error {
	if status != models.PaymentStatusPaid && status != models.PaymentStatusCancelled {
		return domain.ErrInvalidState
	}

	return s.tx.RunTransaction(ctx, func(txCtx context.Context) error {
		entry, err := s.entryRepo.GetByID(txCtx, entryID)
		if err != nil {
			return err
		}
		if err := s.entryRepo.Settle(txCtx, entryID, status, time.Now()); err != nil {
			return err
		}
		if _, err := s.reconcileLocked(txCtx, entry.SaleID); err != nil {
			return err
		}
		s.logger.LogPaymentEvent(entryID, "entry_"+string(status), entry.Amount, "")
		return nil
	})
}

func (s *paymentService) Reconcile(ctx context.Context, saleID primitive.ObjectID) (models.SaleStatus, error) {
	var status models.SaleStatus
	err := s.tx.RunTransaction(ctx, func(txCtx context.Context) error {
		var err error
		status, err = s.reconcileLocked(txCtx, saleID)
		return err
	})
	return status, err
}

// reconcileLocked recomputes the sale status from the ledger. Must run
// inside a transaction so the sum and the status write are one unit.
func (s *paymentService) reconcileLocked(ctx context.Context, saleID primitive.ObjectID) (models.SaleStatus, error) {
	sale, err := s.saleRepo.GetByID(ctx, saleID)
	if err != nil {
		return "", err
	}
	if sale.Status != models.SaleStatusPending {
		return sale.Status, nil
	}

	paid, err := s.entryRepo.SumPaidBySale(ctx, saleID)
	if err != nil {
		return "", err
	}

	if sale.Kind == models.SaleKindParcel {
		parcel, err := s.parcelRepo.GetBySaleID(ctx, saleID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
		if parcel != nil {
			paid += parcel.CollectedOrigin + parcel.CollectedDestination
		}
	}

	status := models.SaleStatusPending
	if paid >= sale.TotalAmount-amountEpsilon {
		status = models.SaleStatusPaid
	} else if paid == 0 {
		entries, err := s.entryRepo.GetBySaleID(ctx, saleID)
		if err != nil {
			return "", err
		}
		if len(entries) > 0 && allCancelled(entries) {
			status = models.SaleStatusCancelled
		}
	}

	if status != sale.Status {
		if err := s.saleRepo.UpdateStatus(ctx, saleID, status); err != nil {
			return "", err
		}
		if status == models.SaleStatusCancelled {
			// Free the seats right away; the cancelled sale and its
			// ledger stay behind as the audit trail.
			if err := s.ticketRepo.DeleteBySaleID(ctx, saleID); err != nil {
				return "", err
			}
		}
		s.logger.LogSaleEvent(saleID, "reconciled", map[string]interface{}{
			"status":     status,
			"paid_total": paid,
		})
	}
	return status, nil
}

func allCancelled(entries []*models.PaymentEntry) bool {
	for _, e := range entries {
		if e.Status != models.PaymentStatusCancelled {
			return false
		}
	}
	return true
}

func (s *paymentService) HandleQRCallback(ctx context.Context, payload *payment.CallbackPayload) error {
	status := payment.MapCallbackState(payload.StateCode())

	entry, err := s.entryRepo.GetByCorrelationID(ctx, payload.CompanyTransactionID)
	if errors.Is(err, domain.ErrNotFound) {
		// Some gateway versions only echo their own transaction id.
		entry, err = s.entryRepo.GetByExternalRef(ctx, payload.PagoFacilTransactionID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.WithFields(map[string]interface{}{
				"correlation_id": payload.CompanyTransactionID,
				"external_ref":   payload.PagoFacilTransactionID,
			}).Warn("qr callback for unknown payment")
		}
		return err
	}

	switch status {
	case payment.StatusPaid:
		err = s.SettleEntry(ctx, entry.ID, models.PaymentStatusPaid)
	case payment.StatusCancelled:
		err = s.SettleEntry(ctx, entry.ID, models.PaymentStatusCancelled)
	default:
		s.logger.LogPaymentEvent(entry.ID, "qr_callback_pending", entry.Amount, "")
		return nil
	}

	if errors.Is(err, domain.ErrAlreadySettled) {
		// Replayed notification; the first one already won.
		s.logger.LogPaymentEvent(entry.ID, "qr_callback_replay", entry.Amount, "")
		return nil
	}
	return err
}

func (s *paymentService) HandleCardWebhook(ctx context.Context, body []byte, signature string) error {
	event, err := s.card.VerifyWebhook(body, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	switch event.EventType {
	case "payment_intent.succeeded", "payment_intent.canceled":
	case "payment_intent.payment_failed":
		// Declines are not terminal: the clerk can retry with another
		// card against the same intent.
		s.logger.WithField("intent_id", event.IntentID).Info("card payment attempt failed")
		return nil
	default:
		s.logger.WithField("event_type", event.EventType).Debug("ignoring card webhook event")
		return nil
	}

	entry, err := s.entryRepo.GetByIntentID(ctx, event.IntentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.WithField("intent_id", event.IntentID).
				Warn("card webhook for unknown payment")
		}
		return err
	}

	status := models.PaymentStatusPaid
	if event.EventType == "payment_intent.canceled" {
		status = models.PaymentStatusCancelled
	}

	if err := s.SettleEntry(ctx, entry.ID, status); err != nil {
		if errors.Is(err, domain.ErrAlreadySettled) {
			s.logger.LogPaymentEvent(entry.ID, "card_webhook_replay", entry.Amount, "")
			return nil
		}
		return err
	}
	return nil
}

func (s *paymentService) CheckEntry(ctx context.Context, entryID primitive.ObjectID) (*models.PaymentEntry, error) {
	entry, err := s.entryRepo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Settled() {
		return entry, nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	var status payment.ProviderStatus
	switch entry.Method {
	case models.PaymentMethodQR:
		if entry.CorrelationID == "" {
			return entry, nil
		}
		status, err = s.qr.PollStatus(gwCtx, entry.CorrelationID)
	case models.PaymentMethodCard:
		if entry.PaymentIntentID == "" {
			return entry, nil
		}
		status, err = s.card.GetIntentStatus(gwCtx, entry.PaymentIntentID)
	default:
		return entry, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	switch status {
	case payment.StatusPaid:
		err = s.SettleEntry(ctx, entry.ID, models.PaymentStatusPaid)
	case payment.StatusCancelled:
		err = s.SettleEntry(ctx, entry.ID, models.PaymentStatusCancelled)
	default:
		return entry, nil
	}
	if err != nil && !errors.Is(err, domain.ErrAlreadySettled) {
		return nil, err
	}

	return s.entryRepo.GetByID(ctx, entryID)
}
