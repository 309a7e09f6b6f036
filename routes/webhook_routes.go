package routes

import (
	handlers "transcomarapa/internal/handlers/shared"

	"github.com/gin-gonic/gin"
)

// SetupWebhookRoutes wires the gateway notification endpoints. These are
// public: PagoFácil does not sign callbacks (settlement is re-verified
// against the ledger) and Stripe events carry their own signature.
func SetupWebhookRoutes(r *gin.RouterGroup, webhookHandler *handlers.WebhookHandler) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/pagofacil", webhookHandler.HandlePagoFacilCallback)
		webhooks.POST("/stripe", webhookHandler.HandleStripeWebhook)
	}
}
