package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"transcomarapa/internal/domain"
	"transcomarapa/internal/models"
	"transcomarapa/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type parcelRepository struct {
	collection *mongo.Collection
}

func NewParcelRepository(db *mongo.Database) interfaces.ParcelRepository {
	return &parcelRepository{
		collection: db.Collection("parcels"),
	}
}

func (r *parcelRepository) Create(ctx context.Context, parcel *models.Parcel) error {
	parcel.CreatedAt = time.Now()
	parcel.UpdatedAt = parcel.CreatedAt

	if _, err := r.collection.InsertOne(ctx, parcel); err != nil {
		return fmt.Errorf("failed to create parcel: %w", err)
	}
	return nil
}

func (r *parcelRepository) GetBySaleID(ctx context.Context, saleID primitive.ObjectID) (*models.Parcel, error) {
	var parcel models.Parcel
	err := r.collection.FindOne(ctx, bson.M{"_id": saleID}).Decode(&parcel)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get parcel: %w", err)
	}
	return &parcel, nil
}

func (r *parcelRepository) AddCollected(ctx context.Context, saleID primitive.ObjectID, origin, destination float64) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": saleID},
		bson.M{
			"$inc": bson.M{
				"collected_origin":      origin,
				"collected_destination": destination,
			},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to update parcel collections: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *parcelRepository) DeleteBySaleID(ctx context.Context, saleID primitive.ObjectID) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": saleID}); err != nil {
		return fmt.Errorf("failed to delete parcel: %w", err)
	}
	return nil
}
