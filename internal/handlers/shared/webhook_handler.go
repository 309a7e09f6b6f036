package handlers

import (
	"errors"
	"io"
	"net/http"

	"transcomarapa/internal/domain"
	"transcomarapa/internal/services"
	"transcomarapa/internal/utils"
	"transcomarapa/pkg/payment"

	"github.com/gin-gonic/gin"
)

// Card gateways send bodies well under this.
const maxWebhookBody = 64 * 1024

type WebhookHandler struct {
	paymentService services.PaymentService
}

func NewWebhookHandler(paymentService services.PaymentService) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
	}
}

// HandlePagoFacilCallback receives the QR gateway's payment notification.
// The gateway expects its own envelope back, not the API envelope.
func (h *WebhookHandler) HandlePagoFacilCallback(c *gin.Context) {
	var payload payment.CallbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   1,
			"status":  0,
			"message": "invalid payload",
		})
		return
	}

	err := h.paymentService.HandleQRCallback(c.Request.Context(), &payload)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   1,
			"status":  0,
			"message": "processing failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"error":   0,
		"status":  1,
		"message": "OK",
	})
}

// HandleStripeWebhook receives signed card gateway events
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.BadRequestResponse(c, "Failed to read request body")
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if err := h.paymentService.HandleCardWebhook(c.Request.Context(), body, signature); err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			utils.ErrorResponse(c, http.StatusBadRequest, "INVALID_SIGNATURE", "webhook signature verification failed")
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			// Ack unknown intents so the gateway stops retrying.
			utils.SuccessResponse(c, "Event ignored", nil)
			return
		}
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponse(c, "Event processed", nil)
}
