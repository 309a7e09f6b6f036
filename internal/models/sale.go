package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SaleKind string
type SaleStatus string

const (
	SaleKindTicket SaleKind = "ticket"
	SaleKindParcel SaleKind = "parcel"

	SaleStatusPending   SaleStatus = "pending"
	SaleStatusPaid      SaleStatus = "paid"
	SaleStatusCancelled SaleStatus = "cancelled"
)

// Sale is the purchase transaction: it owns 1..N tickets or exactly one
// parcel, and its status is the aggregate of its payment ledger. After
// creation only the reconciler writes Status, except for explicit
// cancellation.
type Sale struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Kind        SaleKind           `json:"kind" bson:"kind" validate:"required"`
	Status      SaleStatus         `json:"status" bson:"status" default:"pending"`
	TotalAmount float64            `json:"total_amount" bson:"total_amount" validate:"required"`
	Currency    string             `json:"currency" bson:"currency" default:"BOB"`
	CustomerID  primitive.ObjectID `json:"customer_id" bson:"customer_id" validate:"required"`
	// VehicleID is denormalized from the trip for per-vehicle reporting.
	VehicleID primitive.ObjectID `json:"vehicle_id" bson:"vehicle_id"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// Ticket is one seat on one trip, owned by a Sale. The storage layer keeps
// (trip_id, seat) unique across live tickets; this is the invariant that
// makes double-booking impossible even if the lock layer fails open.
type Ticket struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SaleID    primitive.ObjectID `json:"sale_id" bson:"sale_id" validate:"required"`
	TripID    primitive.ObjectID `json:"trip_id" bson:"trip_id" validate:"required"`
	RouteID   primitive.ObjectID `json:"route_id" bson:"route_id"`
	Seat      int                `json:"seat" bson:"seat" validate:"required,min=1"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// CheckoutResult is what a checkout returns to the caller: the persisted
// sale plus whatever the gateway handed back for client-side completion.
type CheckoutResult struct {
	Sale         *Sale         `json:"sale"`
	Tickets      []*Ticket     `json:"tickets,omitempty"`
	Parcel       *Parcel       `json:"parcel,omitempty"`
	Entry        *PaymentEntry `json:"payment_entry,omitempty"`
	QRImage      string        `json:"qr_image,omitempty"`
	ClientSecret string        `json:"client_secret,omitempty"`
}
