package payment

import (
	"context"
	"fmt"
)

// ProviderStatus is the single internal view of a provider-side payment
// state. Raw provider codes never leak past the adapters.
type ProviderStatus string

const (
	StatusPending   ProviderStatus = "pending"
	StatusPaid      ProviderStatus = "paid"
	StatusCancelled ProviderStatus = "cancelled"
)

type Payer struct {
	FullName   string `json:"full_name"`
	DocumentID string `json:"document_id"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	ClientCode string `json:"client_code"`
}

type OrderLine struct {
	Serial   int     `json:"serial"`
	Product  string  `json:"product"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
}

type QRRequest struct {
	// CorrelationID is chosen by the caller and echoed back by callbacks, so
	// entries can be matched even when the provider assigns its own id.
	CorrelationID string
	Amount        float64
	Payer         Payer
	OrderLines    []OrderLine
}

type QRResponse struct {
	QRImage     string `json:"qr_image"` // base64 PNG
	ExternalRef string `json:"external_ref"`
}

type QRGateway interface {
	RequestQR(ctx context.Context, request *QRRequest) (*QRResponse, error)
	PollStatus(ctx context.Context, correlationID string) (ProviderStatus, error)
}

type IntentRequest struct {
	Amount      float64 // in the sale's native currency
	Currency    string  // native currency code (BOB, USD, ...)
	Description string
	Metadata    map[string]string
}

type IntentResponse struct {
	IntentID           string  `json:"intent_id"`
	ClientSecret       string  `json:"client_secret"`
	SettlementCurrency string  `json:"settlement_currency"`
	SettlementAmount   float64 `json:"settlement_amount"`
}

type WebhookEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	IntentID  string `json:"intent_id"`
	CreatedAt int64  `json:"created_at"`
}

type CardGateway interface {
	CreateIntent(ctx context.Context, request *IntentRequest) (*IntentResponse, error)
	GetIntentStatus(ctx context.Context, intentID string) (ProviderStatus, error)
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// AmountTooLowError reports a charge below the card processor's minimum,
// carrying the equivalent minimum in the sale's native currency for the
// user-facing message.
type AmountTooLowError struct {
	NativeCurrency     string
	NativeMinimum      string
	SettlementCurrency string
	SettlementMinimum  float64
}

func (e *AmountTooLowError) Error() string {
	return fmt.Sprintf("amount below card minimum of %.2f %s (about %s %s)",
		e.SettlementMinimum, e.SettlementCurrency, e.NativeMinimum, e.NativeCurrency)
}
