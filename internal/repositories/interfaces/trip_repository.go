package interfaces

import (
	"context"
	"time"

	"transcomarapa/internal/models"
	"transcomarapa/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TripRepository is read-only: trip scheduling is owned elsewhere, the sales
// engine only consults departures and prices.
type TripRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error)
	ListSellable(ctx context.Context, from time.Time, params *utils.PaginationParams) ([]*models.Trip, int64, error)
}
