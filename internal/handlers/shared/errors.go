package handlers

import (
	"errors"
	"net/http"

	"transcomarapa/internal/domain"
	"transcomarapa/internal/utils"

	"github.com/gin-gonic/gin"
)

// respondDomainError maps service errors onto the HTTP surface.
func respondDomainError(c *gin.Context, err error) {
	var seatErr *domain.SeatUnavailableError
	var lockErr *domain.SeatLockedError
	var lowErr *domain.AmountTooLowError

	switch {
	case errors.As(err, &seatErr):
		utils.ErrorResponse(c, http.StatusConflict, "SEATS_UNAVAILABLE", seatErr.Error())
	case errors.As(err, &lockErr):
		// Distinct code: these seats free up once the holding checkout
		// finishes or its locks expire.
		utils.ErrorResponse(c, http.StatusConflict, "SEATS_LOCKED", lockErr.Error())
	case errors.As(err, &lowErr):
		utils.ErrorResponse(c, http.StatusUnprocessableEntity, "AMOUNT_TOO_LOW", lowErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		utils.NotFoundResponse(c, "resource")
	case errors.Is(err, domain.ErrTripNotSellable):
		utils.ConflictResponse(c, err.Error())
	case errors.Is(err, domain.ErrSaleNotCancellable):
		utils.ConflictResponse(c, err.Error())
	case errors.Is(err, domain.ErrAlreadySettled):
		utils.ConflictResponse(c, err.Error())
	case errors.Is(err, domain.ErrTooManySeats):
		utils.BadRequestResponse(c, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		utils.BadRequestResponse(c, err.Error())
	case errors.Is(err, domain.ErrInvalidSignature):
		utils.ErrorResponse(c, http.StatusBadRequest, "INVALID_SIGNATURE", err.Error())
	case errors.Is(err, domain.ErrGatewayUnavailable):
		utils.ErrorResponse(c, http.StatusBadGateway, "GATEWAY_UNAVAILABLE", err.Error())
	default:
		utils.InternalServerErrorResponse(c)
	}
}
