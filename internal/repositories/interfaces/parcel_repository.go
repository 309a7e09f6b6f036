package interfaces

import (
	"context"

	"transcomarapa/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ParcelRepository interface {
	Create(ctx context.Context, parcel *models.Parcel) error
	GetBySaleID(ctx context.Context, saleID primitive.ObjectID) (*models.Parcel, error)

	// AddCollected increments the out-of-band cash counters.
	AddCollected(ctx context.Context, saleID primitive.ObjectID, origin, destination float64) error

	DeleteBySaleID(ctx context.Context, saleID primitive.ObjectID) error
}
