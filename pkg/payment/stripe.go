package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeProvider implements CardGateway. All intents are created in the
// settlement currency (USD); the native amount is converted with the
// configured rate table before the call.
type StripeProvider struct {
	client        *client.API
	webhookSecret string
	minimumUSD    float64
}

func NewStripeProvider(secretKey, webhookSecret string, minimumUSD float64) *StripeProvider {
	sc := &client.API{}
	sc.Init(secretKey, nil)

	return &StripeProvider{
		client:        sc,
		webhookSecret: webhookSecret,
		minimumUSD:    minimumUSD,
	}
}

func (s *StripeProvider) CreateIntent(ctx context.Context, request *IntentRequest) (*IntentResponse, error) {
	amountUSD := ConvertToUSD(request.Amount, request.Currency)

	if amountUSD < s.minimumUSD {
		return nil, &AmountTooLowError{
			NativeCurrency:     request.Currency,
			NativeMinimum:      MinimumInCurrency(s.minimumUSD, request.Currency),
			SettlementCurrency: "USD",
			SettlementMinimum:  s.minimumUSD,
		}
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(amountUSD * 100)), // Stripe uses cents
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		Description: stripe.String(request.Description),
	}
	params.Context = ctx

	for key, value := range request.Metadata {
		params.AddMetadata(key, value)
	}
	params.AddMetadata("native_currency", request.Currency)
	params.AddMetadata("native_amount", fmt.Sprintf("%.2f", request.Amount))

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &IntentResponse{
		IntentID:           pi.ID,
		ClientSecret:       pi.ClientSecret,
		SettlementCurrency: "USD",
		SettlementAmount:   amountUSD,
	}, nil
}

func (s *StripeProvider) GetIntentStatus(ctx context.Context, intentID string) (ProviderStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.client.PaymentIntents.Get(intentID, params)
	if err != nil {
		return StatusPending, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}

	return mapIntentStatus(pi.Status), nil
}

// mapIntentStatus normalizes Stripe intent statuses. "processing" counts as
// paid: funds are committed and the succeeded webhook follows shortly, so
// treating it as pending would let the reaper delete a sale that was paid.
func mapIntentStatus(status stripe.PaymentIntentStatus) ProviderStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		return StatusPaid
	case stripe.PaymentIntentStatusCanceled:
		return StatusCancelled
	default:
		return StatusPending
	}
}

func (s *StripeProvider) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to verify webhook signature: %w", err)
	}

	var object struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
	}

	return &WebhookEvent{
		EventID:   event.ID,
		EventType: string(event.Type),
		IntentID:  object.ID,
		CreatedAt: event.Created,
	}, nil
}
