package domain

import "time"

// User is an account that can act as an OAuth client, a resource owner, or
// both. Clients authenticate with the same password hash as users.
type User struct {
	ID           int64     `bson:"_id"           json:"id"         db:"id"`
	Username     string    `bson:"username"      json:"username"   db:"username"`
	PasswordHash string    `bson:"password_hash" json:"-"          db:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"    json:"created_at" db:"created_at"`
}
