package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ParcelModality string

const (
	ParcelPayAtOrigin      ParcelModality = "origin"
	ParcelPaySplit         ParcelModality = "split"
	ParcelPayAtDestination ParcelModality = "destination"
)

// Parcel is one shipment owned by a Sale (SaleID is the primary key).
// CollectedOrigin + CollectedDestination never exceed the sale total; the
// sale flips to paid when the ledger plus these amounts cover the total.
type Parcel struct {
	SaleID            primitive.ObjectID `json:"sale_id" bson:"_id"`
	TripID            primitive.ObjectID `json:"trip_id" bson:"trip_id" validate:"required"`
	RouteID           primitive.ObjectID `json:"route_id" bson:"route_id"`
	Weight            float64            `json:"weight" bson:"weight" validate:"required,min=0"`
	Description       string             `json:"description" bson:"description"`
	RecipientName     string             `json:"recipient_name" bson:"recipient_name" validate:"required"`
	Modality          ParcelModality     `json:"modality" bson:"modality" validate:"required"`
	DestinationMethod PaymentMethod      `json:"destination_method,omitempty" bson:"destination_method,omitempty"`

	// Amounts collected out-of-band (cash at the counter), folded into
	// reconciliation alongside the payment ledger.
	CollectedOrigin      float64 `json:"collected_origin" bson:"collected_origin"`
	CollectedDestination float64 `json:"collected_destination" bson:"collected_destination"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
