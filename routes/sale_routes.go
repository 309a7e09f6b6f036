package routes

import (
	handlers "transcomarapa/internal/handlers/shared"
	"transcomarapa/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupSaleRoutes wires the counter-facing sales and inventory endpoints.
func SetupSaleRoutes(r *gin.RouterGroup, saleHandler *handlers.SaleHandler, tripHandler *handlers.TripHandler, jwtSecret string) {
	trips := r.Group("/trips")
	trips.Use(middleware.AuthRequired(jwtSecret))
	{
		trips.GET("/", tripHandler.ListTrips)
		trips.GET("/:id/availability", tripHandler.GetSeatAvailability)
		trips.GET("/:id/seats", tripHandler.GetSeatMap)
	}

	sales := r.Group("/sales")
	sales.Use(middleware.AuthRequired(jwtSecret), middleware.StaffRequired())
	{
		sales.POST("/tickets", saleHandler.CreateTicketSale)
		sales.POST("/parcels", saleHandler.CreateParcelSale)
		sales.GET("/:id", saleHandler.GetSale)
		sales.DELETE("/:id", saleHandler.CancelSale)
		sales.POST("/:id/retry-payment", saleHandler.RetryPayment)
		sales.POST("/:id/destination-payment", saleHandler.ConfirmDestinationPayment)
		sales.GET("/:id/payment-status", saleHandler.CheckPaymentStatus)
	}

	customers := r.Group("/customers")
	customers.Use(middleware.AuthRequired(jwtSecret), middleware.StaffRequired())
	{
		customers.GET("/lookup", saleHandler.FindCustomer)
		customers.GET("/:customer_id/sales", saleHandler.ListCustomerSales)
	}
}
