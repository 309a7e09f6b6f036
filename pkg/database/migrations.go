package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the sales engine depends on. The unique
// compound index on tickets is the authoritative double-booking constraint:
// even if the seat-lock layer is bypassed, a second insert for the same
// (trip, seat) pair fails at the storage layer.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	ticketIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "trip_id", Value: 1}, {Key: "seat", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_trip_seat"),
		},
		{
			Keys:    bson.D{{Key: "sale_id", Value: 1}},
			Options: options.Index().SetName("ticket_sale"),
		},
	}
	if _, err := db.Collection("tickets").Indexes().CreateMany(ctx, ticketIndexes); err != nil {
		return fmt.Errorf("failed to create ticket indexes: %w", err)
	}

	paymentIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sale_id", Value: 1}, {Key: "installment", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_sale_installment"),
		},
		{
			Keys:    bson.D{{Key: "correlation_id", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("payment_correlation"),
		},
		{
			Keys:    bson.D{{Key: "payment_intent_id", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("payment_intent"),
		},
	}
	if _, err := db.Collection("payment_entries").Indexes().CreateMany(ctx, paymentIndexes); err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}

	saleIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("sale_status_age"),
		},
		{
			Keys:    bson.D{{Key: "customer_id", Value: 1}},
			Options: options.Index().SetName("sale_customer"),
		},
	}
	if _, err := db.Collection("sales").Indexes().CreateMany(ctx, saleIndexes); err != nil {
		return fmt.Errorf("failed to create sale indexes: %w", err)
	}

	return nil
}
