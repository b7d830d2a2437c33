package domain

import "time"

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
)

type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Status       UserStatus `db:"status" json:"status"`
	LastSeen     time.Time  `db:"last_seen" json:"lastSeen"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}
