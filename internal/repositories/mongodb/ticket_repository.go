package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"transcomarapa/internal/domain"
	"transcomarapa/internal/models"
	"transcomarapa/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type ticketRepository struct {
	collection *mongo.Collection
}

func NewTicketRepository(db *mongo.Database) interfaces.TicketRepository {
	return &ticketRepository{
		collection: db.Collection("tickets"),
	}
}

func (r *ticketRepository) CreateMany(ctx context.Context, tickets []*models.Ticket) error {
	now := time.Now()
	docs := make([]interface{}, 0, len(tickets))
	for _, t := range tickets {
		if t.ID.IsZero() {
			t.ID = primitive.NewObjectID()
		}
		t.CreatedAt = now
		docs = append(docs, t)
	}

	_, err := r.collection.InsertMany(ctx, docs)
	if err != nil {
		// The unique (trip_id, seat) index caught a concurrent sale.
		if mongo.IsDuplicateKeyError(err) {
			return r.seatConflict(ctx, tickets)
		}
		return fmt.Errorf("failed to create tickets: %w", err)
	}
	return nil
}

// seatConflict names the seats an insert collided on. An ordered insert may
// have written some of this sale's own rows before failing, so they are
// excluded from the re-query.
func (r *ticketRepository) seatConflict(ctx context.Context, tickets []*models.Ticket) error {
	requested := make([]int, 0, len(tickets))
	for _, t := range tickets {
		requested = append(requested, t.Seat)
	}

	values, err := r.collection.Distinct(ctx, "seat", bson.M{
		"trip_id": tickets[0].TripID,
		"sale_id": bson.M{"$ne": tickets[0].SaleID},
		"seat":    bson.M{"$in": requested},
	})
	if err != nil {
		return &domain.SeatUnavailableError{Seats: requested}
	}

	conflicts := make([]int, 0, len(values))
	for _, v := range values {
		switch n := v.(type) {
		case int32:
			conflicts = append(conflicts, int(n))
		case int64:
			conflicts = append(conflicts, int(n))
		case int:
			conflicts = append(conflicts, n)
		}
	}
	if len(conflicts) == 0 {
		return &domain.SeatUnavailableError{Seats: requested}
	}
	sort.Ints(conflicts)
	return &domain.SeatUnavailableError{Seats: conflicts}
}

func (r *ticketRepository) GetBySaleID(ctx context.Context, saleID primitive.ObjectID) ([]*models.Ticket, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"sale_id": saleID})
	if err != nil {
		return nil, fmt.Errorf("failed to get tickets: %w", err)
	}
	defer cursor.Close(ctx)

	var tickets []*models.Ticket
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("failed to decode tickets: %w", err)
	}
	return tickets, nil
}

func (r *ticketRepository) SoldSeats(ctx context.Context, tripID primitive.ObjectID) ([]int, error) {
	values, err := r.collection.Distinct(ctx, "seat", bson.M{"trip_id": tripID})
	if err != nil {
		return nil, fmt.Errorf("failed to list sold seats: %w", err)
	}

	seats := make([]int, 0, len(values))
	for _, v := range values {
		switch n := v.(type) {
		case int32:
			seats = append(seats, int(n))
		case int64:
			seats = append(seats, int(n))
		case int:
			seats = append(seats, n)
		default:
			return nil, errors.New("unexpected seat value type")
		}
	}
	return seats, nil
}

func (r *ticketRepository) CountByTrip(ctx context.Context, tripID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"trip_id": tripID})
	if err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}
	return count, nil
}

func (r *ticketRepository) DeleteBySaleID(ctx context.Context, saleID primitive.ObjectID) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"sale_id": saleID}); err != nil {
		return fmt.Errorf("failed to delete tickets: %w", err)
	}
	return nil
}
