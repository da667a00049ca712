package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an agency operator or a brand-scoped account.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Role         string             `bson:"role" json:"role"` // admin, member
	BrandID      primitive.ObjectID `bson:"brand_id,omitempty" json:"brand_id,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}
