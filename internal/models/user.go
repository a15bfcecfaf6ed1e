package models

import "time"

// StoredUser is a requester known to the worker. It is upserted on every job.
type StoredUser struct {
	UserID    string    `json:"user_id"    bson:"user_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
