package handlers

import (
	"transcomarapa/internal/services"
	"transcomarapa/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TripHandler struct {
	inventoryService services.InventoryService
}

func NewTripHandler(inventoryService services.InventoryService) *TripHandler {
	return &TripHandler{
		inventoryService: inventoryService,
	}
}

// ListTrips returns the trips still open for sale
func (h *TripHandler) ListTrips(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	trips, total, err := h.inventoryService.ListSellableTrips(c.Request.Context(), params)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	meta := &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
		Total:      total,
		Count:      len(trips),
	}
	utils.SuccessResponseWithMeta(c, "Trips retrieved successfully", trips, meta)
}

// GetSeatAvailability returns the sold/available counts for a trip
func (h *TripHandler) GetSeatAvailability(c *gin.Context) {
	tripID, ok := tripIDParam(c)
	if !ok {
		return
	}

	availability, err := h.inventoryService.GetSeatAvailability(c.Request.Context(), tripID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	utils.SuccessResponse(c, "Availability retrieved successfully", availability)
}

// GetSeatMap returns the per-seat free/held/sold view
func (h *TripHandler) GetSeatMap(c *gin.Context) {
	tripID, ok := tripIDParam(c)
	if !ok {
		return
	}

	seatMap, err := h.inventoryService.GetSeatMap(c.Request.Context(), tripID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	utils.SuccessResponse(c, "Seat map retrieved successfully", seatMap)
}

func tripIDParam(c *gin.Context) (primitive.ObjectID, bool) {
	tripID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid trip ID")
		return primitive.NilObjectID, false
	}
	return tripID, true
}
