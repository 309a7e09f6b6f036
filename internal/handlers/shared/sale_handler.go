package handlers

import (
	"transcomarapa/internal/models"
	"transcomarapa/internal/services"
	"transcomarapa/internal/utils"
	"transcomarapa/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SaleHandler struct {
	saleService services.SaleService
}

func NewSaleHandler(saleService services.SaleService) *SaleHandler {
	return &SaleHandler{
		saleService: saleService,
	}
}

// CreateTicketSale sells seats on a trip
func (h *SaleHandler) CreateTicketSale(c *gin.Context) {
	var request services.TicketSaleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	if errs := validators.ValidateTicketSaleRequest(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	result, err := h.saleService.CreateTicketSale(c.Request.Context(), &request)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	utils.CreatedResponse(c, "Sale created successfully", result)
}

// CreateParcelSale registers a parcel shipment
func (h *SaleHandler) CreateParcelSale(c *gin.Context) {
	var request services.ParcelSaleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	if errs := validators.ValidateParcelSaleRequest(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	result, err := h.saleService.CreateParcelSale(c.Request.Context(), &request)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	utils.CreatedResponse(c, "Parcel sale created successfully", result)
}

// GetSale returns a sale with its line items and payment ledger
func (h *SaleHandler) GetSale(c *gin.Context) {
	saleID, ok := saleIDParam(c)
	if !ok {
		return
	}

	detail, err := h.saleService.GetSale(c.Request.Context(), saleID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	utils.SuccessResponse(c, "Sale retrieved successfully", detail)
}

// CancelSale voids a sale before departure
func (h *SaleHandler) CancelSale(c *gin.Context) {
	saleID, ok := saleIDParam(c)
	if !ok {
		return
	}

	if err := h.saleService.CancelSale(c.Request.Context(), saleID); err != nil {
		respondDomainError(c, err)
		return
	}

	utils.SuccessResponse(c, "Sale cancelled successfully", nil)
}

// RetryPayment reissues the QR or card intent for a pending sale
func (h *SaleHandler) RetryPayment(c *gin.Context) {
	saleID, ok := saleIDParam(c)
	if !ok {
		return
	}

	result, err := h.saleService.RetryPayment(c.Request.Context(), saleID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	utils.SuccessResponse(c, "Payment reissued successfully", result)
}

type destinationPaymentRequest struct {
	Method models.PaymentMethod `json:"method" binding:"required"`
}

// ConfirmDestinationPayment collects the remainder of a parcel sale
func (h *SaleHandler) ConfirmDestinationPayment(c *gin.Context) {
	saleID, ok := saleIDParam(c)
	if !ok {
		return
	}

	var request destinationPaymentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	result, err := h.saleService.ConfirmDestinationPayment(c.Request.Context(), saleID, request.Method)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	utils.SuccessResponse(c, "Destination payment confirmed", result)
}

// CheckPaymentStatus polls the gateway for pending entries
func (h *SaleHandler) CheckPaymentStatus(c *gin.Context) {
	saleID, ok := saleIDParam(c)
	if !ok {
		return
	}

	sale, err := h.saleService.CheckPaymentStatus(c.Request.Context(), saleID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	utils.SuccessResponse(c, "Payment status retrieved", sale)
}

// FindCustomer looks a customer up by document id
func (h *SaleHandler) FindCustomer(c *gin.Context) {
	documentID := c.Query("document_id")
	if documentID == "" {
		utils.BadRequestResponse(c, "document_id query parameter is required")
		return
	}

	customer, err := h.saleService.FindCustomerByDocument(c.Request.Context(), documentID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	utils.SuccessResponse(c, "Customer retrieved successfully", customer)
}

// ListCustomerSales pages through a customer's purchase history
func (h *SaleHandler) ListCustomerSales(c *gin.Context) {
	customerID, err := primitive.ObjectIDFromHex(c.Param("customer_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid customer ID")
		return
	}

	params := utils.GetPaginationParams(c)
	sales, total, err := h.saleService.ListCustomerSales(c.Request.Context(), customerID, params)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	meta := &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
		Total:      total,
		Count:      len(sales),
	}
	utils.SuccessResponseWithMeta(c, "Sales retrieved successfully", sales, meta)
}

func saleIDParam(c *gin.Context) (primitive.ObjectID, bool) {
	saleID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid sale ID")
		return primitive.NilObjectID, false
	}
	return saleID, true
}
