package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"transcomarapa/internal/domain"
	"transcomarapa/internal/models"
	"transcomarapa/internal/repositories/interfaces"
	"transcomarapa/pkg/logger"
)

// ReapStats summarizes one reaper sweep.
type ReapStats struct {
	Scanned   int
	Recovered int // gateway reported paid during the re-check
	Reclaimed int // reservation deleted, seats freed
}

// ReaperService sweeps sales whose gateway payment never arrived. Every
// stale entry gets one last live check against the gateway before its
// reservation is torn down, so a payment that landed after the callback was
// lost is never thrown away.
type ReaperService interface {
	Start(ctx context.Context)
	Stop()
	RunOnce(ctx context.Context) (*ReapStats, error)
}

type reaperService struct {
	entryRepo  interfaces.PaymentEntryRepository
	saleRepo   interfaces.SaleRepository
	ticketRepo interfaces.TicketRepository
	parcelRepo interfaces.ParcelRepository
	payments   PaymentService
	tx         TxRunner
	logger     *logger.Logger

	interval time.Duration
	grace    time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

func NewReaperService(
	entryRepo interfaces.PaymentEntryRepository,
	saleRepo interfaces.SaleRepository,
	ticketRepo interfaces.TicketRepository,
	parcelRepo interfaces.ParcelRepository,
	payments PaymentService,
	tx TxRunner,
	log *logger.Logger,
	interval, grace time.Duration,
) ReaperService {
	return &reaperService{
		entryRepo:  entryRepo,
		saleRepo:   saleRepo,
		ticketRepo: ticketRepo,
		parcelRepo: parcelRepo,
		payments:   payments,
		tx:         tx,
		logger:     log,
		interval:   interval,
		grace:      grace,
		stop:       make(chan struct{}),
	}
}

func (s *reaperService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats, err := s.RunOnce(ctx)
				if err != nil {
					s.logger.WithError(err).Error("reservation sweep failed")
					continue
				}
				if stats.Scanned > 0 {
					s.logger.WithFields(map[string]interface{}{
						"scanned":   stats.Scanned,
						"recovered": stats.Recovered,
						"reclaimed": stats.Reclaimed,
					}).Info("reservation sweep finished")
				}
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *reaperService) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *reaperService) RunOnce(ctx context.Context) (*ReapStats, error) {
	cutoff := time.Now().Add(-s.grace)
	entries, err := s.entryRepo.FindStalePending(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	stats := &ReapStats{Scanned: len(entries)}
	for _, entry := range entries {
		// One bad entry must not abort the sweep.
		if err := s.reapEntry(ctx, entry, stats); err != nil {
			s.logger.WithError(err).WithSaleID(entry.SaleID).
				Warn("failed to reap stale reservation")
		}
	}
	return stats, nil
}

func (s *reaperService) reapEntry(ctx context.Context, entry *models.PaymentEntry, stats *ReapStats) error {
	sale, err := s.saleRepo.GetByID(ctx, entry.SaleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	checked, err := s.payments.CheckEntry(ctx, entry.ID)
	if err != nil {
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			// Cannot verify, leave it for the next sweep.
			return err
		}
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	switch checked.Status {
	case models.PaymentStatusPaid:
		stats.Recovered++
		s.logger.LogPaymentEvent(entry.ID, "stale_payment_recovered", entry.Amount, "")
		return nil
	case models.PaymentStatusCancelled:
		// CheckEntry already reconciled the sale and freed the seats.
		stats.Reclaimed++
		return nil
	}

	// A sale that already carries money must never be torn down: a settled
	// sale, or a parcel with cash collected, loses only the abandoned
	// gateway leg.
	collected, err := s.collectedTotal(ctx, sale)
	if err != nil {
		return err
	}
	if sale.Status != models.SaleStatusPending || collected > 0 {
		err := s.payments.SettleEntry(ctx, entry.ID, models.PaymentStatusCancelled)
		if err != nil && !errors.Is(err, domain.ErrAlreadySettled) {
			return err
		}
		s.logger.LogPaymentEvent(entry.ID, "stale_entry_closed", entry.Amount, "")
		return nil
	}

	// Still pending at the gateway after the grace period: tear the
	// reservation down so the seats go back on sale.
	err = s.tx.RunTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ticketRepo.DeleteBySaleID(txCtx, entry.SaleID); err != nil {
			return err
		}
		if err := s.parcelRepo.DeleteBySaleID(txCtx, entry.SaleID); err != nil {
			return err
		}
		if err := s.entryRepo.DeleteBySaleID(txCtx, entry.SaleID); err != nil {
			return err
		}
		err := s.saleRepo.Delete(txCtx, entry.SaleID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}

	stats.Reclaimed++
	s.logger.LogSaleEvent(entry.SaleID, "stale_reservation_reclaimed", map[string]interface{}{
		"entry_id": entry.ID.Hex(),
		"method":   entry.Method,
	})
	return nil
}

// collectedTotal sums the money already on a sale: paid ledger entries plus
// cash collected on the parcel itself.
func (s *reaperService) collectedTotal(ctx context.Context, sale *models.Sale) (float64, error) {
	paid, err := s.entryRepo.SumPaidBySale(ctx, sale.ID)
	if err != nil {
		return 0, err
	}
	if sale.Kind == models.SaleKindParcel {
		parcel, err := s.parcelRepo.GetBySaleID(ctx, sale.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}
		if parcel != nil {
			paid += parcel.CollectedOrigin + parcel.CollectedDestination
		}
	}
	return paid, nil
}
