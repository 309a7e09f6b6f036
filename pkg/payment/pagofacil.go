package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// PagoFácil constants. The gateway takes these as magic numbers: QR payment
// method, national identity document, bolivianos.
const (
	pagoFacilMethodQR    = 4
	pagoFacilDocumentCI  = 1
	pagoFacilCurrencyBOB = 2
)

// PagoFácil callback / poll state codes.
const (
	pagoFacilStatePending    = 1
	pagoFacilStateCompleted  = 2
	pagoFacilStateVoided     = 3
	pagoFacilStateExpired    = 4
	pagoFacilStateValidating = 5
)

// PagoFacilProvider implements QRGateway against the PagoFácil HTTP API.
// There is no SDK for this gateway; requests are plain JSON over HTTP with a
// bearer token.
type PagoFacilProvider struct {
	httpClient  *http.Client
	apiURL      string
	queryURL    string
	apiToken    string
	callbackURL string
}

type PagoFacilConfig struct {
	APIURL      string
	QueryURL    string
	APIToken    string
	CallbackURL string
	Timeout     time.Duration
}

func NewPagoFacilProvider(config *PagoFacilConfig) *PagoFacilProvider {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &PagoFacilProvider{
		httpClient:  &http.Client{Timeout: timeout},
		apiURL:      config.APIURL,
		queryURL:    config.QueryURL,
		apiToken:    config.APIToken,
		callbackURL: config.CallbackURL,
	}
}

type pagoFacilEnvelope struct {
	Error   json.Number `json:"error"`
	Message string      `json:"message"`
	Values  struct {
		QRBase64      string      `json:"qrBase64"`
		TransactionID string      `json:"transactionId"`
		PaymentStatus json.Number `json:"paymentStatus"`
	} `json:"values"`
}

func (p *PagoFacilProvider) RequestQR(ctx context.Context, request *QRRequest) (*QRResponse, error) {
	payload := map[string]interface{}{
		"paymentMethod": pagoFacilMethodQR,
		"clientName":    request.Payer.FullName,
		"documentType":  pagoFacilDocumentCI,
		"documentId":    request.Payer.DocumentID,
		"phoneNumber":   request.Payer.Phone,
		"email":         request.Payer.Email,
		"paymentNumber": request.CorrelationID,
		"amount":        request.Amount,
		"currency":      pagoFacilCurrencyBOB,
		"clientCode":    request.Payer.ClientCode,
		"callbackUrl":   p.callbackURL,
		"orderDetail":   request.OrderLines,
	}

	var envelope pagoFacilEnvelope
	if err := p.post(ctx, p.apiURL, payload, &envelope); err != nil {
		return nil, err
	}

	if code, err := envelope.Error.Int64(); err == nil && code != 0 {
		message := envelope.Message
		if message == "" {
			message = "unknown gateway error"
		}
		return nil, fmt.Errorf("pagofacil rejected request: %s", message)
	}

	if envelope.Values.QRBase64 == "" {
		return nil, fmt.Errorf("pagofacil response missing QR image")
	}

	return &QRResponse{
		QRImage:     envelope.Values.QRBase64,
		ExternalRef: envelope.Values.TransactionID,
	}, nil
}

func (p *PagoFacilProvider) PollStatus(ctx context.Context, correlationID string) (ProviderStatus, error) {
	if correlationID == "" {
		return StatusPending, fmt.Errorf("correlation id is required")
	}

	payload := map[string]interface{}{
		"companyTransactionId": correlationID,
	}

	var envelope pagoFacilEnvelope
	if err := p.post(ctx, p.queryURL, payload, &envelope); err != nil {
		return StatusPending, err
	}

	state, err := envelope.Values.PaymentStatus.Int64()
	if err != nil {
		return StatusPending, nil
	}
	return MapPollStatus(int(state)), nil
}

func (p *PagoFacilProvider) post(ctx context.Context, url string, payload interface{}, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode pagofacil payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pagofacil request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read pagofacil response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pagofacil returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode pagofacil response: %w", err)
	}
	return nil
}

// CallbackPayload is what PagoFácil posts to the callback URL. State arrives
// as a number or a quoted string depending on the gateway version, so it is
// normalized during decoding.
type CallbackPayload struct {
	CompanyTransactionID   string      `json:"CompanyTransactionId"`
	PagoFacilTransactionID string      `json:"PagofacilTransactionId"`
	State                  json.Number `json:"State"`
	Message                string      `json:"Message"`
}

// StateCode returns the numeric callback state, or 0 when absent/garbled.
func (c *CallbackPayload) StateCode() int {
	state, err := c.State.Int64()
	if err != nil {
		if parsed, perr := strconv.Atoi(strings.TrimSpace(c.State.String())); perr == nil {
			return parsed
		}
		return 0
	}
	return int(state)
}

// MapCallbackState normalizes callback State codes. Both 2 (completed) and
// 5 (pending validation) count as paid; unknown codes stay pending rather
// than failing the event.
func MapCallbackState(state int) ProviderStatus {
	switch state {
	case pagoFacilStateCompleted, pagoFacilStateValidating:
		return StatusPaid
	case pagoFacilStateVoided, pagoFacilStateExpired:
		return StatusCancelled
	default:
		return StatusPending
	}
}

// MapPollStatus normalizes the query endpoint's paymentStatus codes. This is
// a different code space than callbacks: the query endpoint reports success
// as 1 or 5.
func MapPollStatus(state int) ProviderStatus {
	switch state {
	case 1, 5:
		return StatusPaid
	case 3, 4:
		return StatusCancelled
	default:
		return StatusPending
	}
}
