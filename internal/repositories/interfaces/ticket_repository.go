package interfaces

import (
	"context"

	"transcomarapa/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TicketRepository interface {
	CreateMany(ctx context.Context, tickets []*models.Ticket) error
	GetBySaleID(ctx context.Context, saleID primitive.ObjectID) ([]*models.Ticket, error)

	// SoldSeats returns the seat numbers already ticketed for a trip.
	SoldSeats(ctx context.Context, tripID primitive.ObjectID) ([]int, error)
	CountByTrip(ctx context.Context, tripID primitive.ObjectID) (int64, error)

	DeleteBySaleID(ctx context.Context, saleID primitive.ObjectID) error
}
