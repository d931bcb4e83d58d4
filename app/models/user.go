// Package models defines users, plans, usage counters and analysis records.
package models

// User is the identity record exposed to the dashboard.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// LocalAccount is a user stored in the local fallback table.
type LocalAccount struct {
	User
	PasswordHash string `json:"password_hash"`
}
