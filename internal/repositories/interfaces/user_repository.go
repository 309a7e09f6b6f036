package interfaces

import (
	"context"

	"transcomarapa/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByDocumentID(ctx context.Context, documentID string) (*models.User, error)
}
