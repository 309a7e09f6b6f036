package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"transcomarapa/internal/domain"
	"transcomarapa/internal/models"
	"transcomarapa/internal/repositories/interfaces"
	"transcomarapa/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type saleRepository struct {
	collection *mongo.Collection
}

func NewSaleRepository(db *mongo.Database) interfaces.SaleRepository {
	return &saleRepository{
		collection: db.Collection("sales"),
	}
}

func (r *saleRepository) Create(ctx context.Context, sale *models.Sale) error {
	if sale.ID.IsZero() {
		sale.ID = primitive.NewObjectID()
	}
	sale.CreatedAt = time.Now()
	sale.UpdatedAt = sale.CreatedAt

	if _, err := r.collection.InsertOne(ctx, sale); err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}
	return nil
}

func (r *saleRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Sale, error) {
	var sale models.Sale
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&sale)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}
	return &sale, nil
}

func (r *saleRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.SaleStatus) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update sale status: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *saleRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *saleRepository) ListByCustomer(ctx context.Context, customerID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Sale, int64, error) {
	filter := bson.M{"customer_id": customerID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count sales: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sales: %w", err)
	}
	defer cursor.Close(ctx)

	var sales []*models.Sale
	if err := cursor.All(ctx, &sales); err != nil {
		return nil, 0, fmt.Errorf("failed to decode sales: %w", err)
	}

	return sales, total, nil
}
