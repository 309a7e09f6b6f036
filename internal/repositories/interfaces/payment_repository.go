package interfaces

import (
	"context"
	"time"

	"transcomarapa/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentEntryRepository interface {
	Create(ctx context.Context, entry *models.PaymentEntry) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.PaymentEntry, error)
	GetBySaleID(ctx context.Context, saleID primitive.ObjectID) ([]*models.PaymentEntry, error)

	// Gateway correlation lookups. GetByExternalRef matches the provider's
	// own transaction id, for callbacks that omit the correlation id.
	GetByCorrelationID(ctx context.Context, correlationID string) (*models.PaymentEntry, error)
	GetByExternalRef(ctx context.Context, externalRef string) (*models.PaymentEntry, error)
	GetByIntentID(ctx context.Context, intentID string) (*models.PaymentEntry, error)

	// Settle moves a pending entry to a terminal status. Returns
	// domain.ErrAlreadySettled when the entry is no longer pending, which
	// makes gateway callback replays harmless.
	Settle(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus, paidAt time.Time) error

	// SetQRDetails stores a freshly issued QR on a pending entry.
	SetQRDetails(ctx context.Context, id primitive.ObjectID, qrImage, correlationID, externalRef string) error
	SetIntentDetails(ctx context.Context, id primitive.ObjectID, intentID, settlementCurrency string, settlementAmount float64) error

	// SumPaidBySale totals the paid entries of one sale's ledger.
	SumPaidBySale(ctx context.Context, saleID primitive.ObjectID) (float64, error)

	// FindStalePending returns pending gateway-backed entries created
	// before the cutoff, for the reservation reaper.
	FindStalePending(ctx context.Context, cutoff time.Time) ([]*models.PaymentEntry, error)

	DeleteBySaleID(ctx context.Context, saleID primitive.ObjectID) error
}
