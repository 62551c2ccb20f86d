package models

import (
	"fmt"
	"time"
)

// User is a registered account.
type User struct {
	ID           int       `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// DisplayName renders the user as "Last, First".
func (u User) DisplayName() string {
	return FullName(u.FirstName, u.LastName)
}

// FullName renders a first and last name as "Last, First".
func FullName(first, last string) string {
	return fmt.Sprintf("%s, %s", last, first)
}

// UserSummary is the public projection returned by user search.
type UserSummary struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Summary projects the user for search results.
func (u User) Summary() UserSummary {
	return UserSummary{Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}
