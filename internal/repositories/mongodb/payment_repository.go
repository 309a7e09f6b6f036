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

type paymentEntryRepository struct {
	collection *mongo.Collection
}

func NewPaymentEntryRepository(db *mongo.Database) interfaces.PaymentEntryRepository {
	return &paymentEntryRepository{
		collection: db.Collection("payment_entries"),
	}
}

func (r *paymentEntryRepository) Create(ctx context.Context, entry *models.PaymentEntry) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt

	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to create payment entry: %w", err)
	}
	return nil
}

func (r *paymentEntryRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.PaymentEntry, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *paymentEntryRepository) GetBySaleID(ctx context.Context, saleID primitive.ObjectID) ([]*models.PaymentEntry, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"sale_id": saleID})
	if err != nil {
		return nil, fmt.Errorf("failed to get payment entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.PaymentEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode payment entries: %w", err)
	}
	return entries, nil
}

func (r *paymentEntryRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*models.PaymentEntry, error) {
	// Cash entries carry an empty correlation id; never match on it.
	if correlationID == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"correlation_id": correlationID})
}

func (r *paymentEntryRepository) GetByExternalRef(ctx context.Context, externalRef string) (*models.PaymentEntry, error) {
	// Entries without a QR carry an empty ref; never match on it.
	if externalRef == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"external_ref": externalRef})
}

func (r *paymentEntryRepository) GetByIntentID(ctx context.Context, intentID string) (*models.PaymentEntry, error) {
	return r.findOne(ctx, bson.M{"payment_intent_id": intentID})
}

// Settle is conditional on the entry still being pending, so replayed
// gateway notifications cannot flip a settled entry.
func (r *paymentEntryRepository) Settle(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus, paidAt time.Time) error {
	update := bson.M{"status": status, "updated_at": time.Now()}
	if status == models.PaymentStatusPaid {
		update["paid_at"] = paidAt
	}

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": models.PaymentStatusPending},
		bson.M{"$set": update},
	)
	if err != nil {
		return fmt.Errorf("failed to settle payment entry: %w", err)
	}
	if result.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrAlreadySettled
	}
	return nil
}

func (r *paymentEntryRepository) SetQRDetails(ctx context.Context, id primitive.ObjectID, qrImage, correlationID, externalRef string) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"qr_image":       qrImage,
			"correlation_id": correlationID,
			"external_ref":   externalRef,
			"updated_at":     time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to set qr details: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentEntryRepository) SetIntentDetails(ctx context.Context, id primitive.ObjectID, intentID, settlementCurrency string, settlementAmount float64) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"payment_intent_id":   intentID,
			"settlement_currency": settlementCurrency,
			"settlement_amount":   settlementAmount,
			"updated_at":          time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to set intent details: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentEntryRepository) SumPaidBySale(ctx context.Context, saleID primitive.ObjectID) (float64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"sale_id": saleID, "status": models.PaymentStatusPaid}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amount"}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum paid entries: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total float64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("failed to decode paid sum: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

func (r *paymentEntryRepository) FindStalePending(ctx context.Context, cutoff time.Time) ([]*models.PaymentEntry, error) {
	filter := bson.M{
		"status":     models.PaymentStatusPending,
		"method":     bson.M{"$in": []models.PaymentMethod{models.PaymentMethodQR, models.PaymentMethodCard}},
		"created_at": bson.M{"$lt": cutoff},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.PaymentEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode stale entries: %w", err)
	}
	return entries, nil
}

func (r *paymentEntryRepository) DeleteBySaleID(ctx context.Context, saleID primitive.ObjectID) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"sale_id": saleID}); err != nil {
		return fmt.Errorf("failed to delete payment entries: %w", err)
	}
	return nil
}

func (r *paymentEntryRepository) findOne(ctx context.Context, filter bson.M) (*models.PaymentEntry, error) {
	var entry models.PaymentEntry
	err := r.collection.FindOne(ctx, filter).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment entry: %w", err)
	}
	return &entry, nil
}
