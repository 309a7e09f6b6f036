package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRole string

const (
	UserRoleCustomer  UserRole = "customer"
	UserRoleSecretary UserRole = "secretary"
	UserRoleAdmin     UserRole = "admin"
)

// User is read-only here; account management lives in its own service. The
// sales engine needs identity fields to build gateway order payloads.
type User struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	FirstName  string             `json:"first_name" bson:"first_name"`
	LastName   string             `json:"last_name" bson:"last_name"`
	DocumentID string             `json:"document_id" bson:"document_id"`
	Phone      string             `json:"phone" bson:"phone"`
	Email      string             `json:"email" bson:"email"`
	Role       UserRole           `json:"role" bson:"role" default:"customer"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at" bson:"updated_at"`
}

// FullName is the display name sent to payment gateways.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
