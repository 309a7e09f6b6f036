package interfaces

import (
	"context"

	"transcomarapa/internal/models"
	"transcomarapa/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SaleRepository interface {
	Create(ctx context.Context, sale *models.Sale) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Sale, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.SaleStatus) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	ListByCustomer(ctx context.Context, customerID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Sale, int64, error)
}
