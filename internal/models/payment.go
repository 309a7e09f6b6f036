package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentStatus string
type PaymentMethod string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCancelled PaymentStatus = "cancelled"

	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodQR   PaymentMethod = "qr"
	PaymentMethodCard PaymentMethod = "card"
)

// PaymentEntry is one installment in a sale's append-only payment ledger.
// Status moves Pending -> Paid or Pending -> Cancelled and never back; the
// sale's aggregate status is always recomputed from the full ledger.
type PaymentEntry struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SaleID      primitive.ObjectID `json:"sale_id" bson:"sale_id" validate:"required"`
	Installment int                `json:"installment" bson:"installment" validate:"required,min=1"`
	Amount      float64            `json:"amount" bson:"amount" validate:"required"`
	Method      PaymentMethod      `json:"method" bson:"method" validate:"required"`
	Status      PaymentStatus      `json:"status" bson:"status" default:"pending"`
	PaidAt      *time.Time         `json:"paid_at,omitempty" bson:"paid_at,omitempty"`

	// QR channel correlation. CorrelationID is the paymentNumber we choose
	// and embed in the gateway request; ExternalRef is the id the provider
	// assigns. Callbacks are matched by CorrelationID first.
	QRImage       string `json:"qr_image,omitempty" bson:"qr_image,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	ExternalRef   string `json:"external_ref,omitempty" bson:"external_ref,omitempty"`

	// Card channel correlation and settlement audit trail.
	PaymentIntentID    string  `json:"payment_intent_id,omitempty" bson:"payment_intent_id,omitempty"`
	SettlementCurrency string  `json:"settlement_currency,omitempty" bson:"settlement_currency,omitempty"`
	SettlementAmount   float64 `json:"settlement_amount,omitempty" bson:"settlement_amount,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Settled reports whether the entry reached a terminal state.
func (e *PaymentEntry) Settled() bool {
	return e.Status == PaymentStatusPaid || e.Status == PaymentStatusCancelled
}
