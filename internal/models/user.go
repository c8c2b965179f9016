package models

import (
	"time"
)

// ClientType is the permission level of a user
type ClientType int

const (
	ClientTypeBanned ClientType = -1
	ClientTypeAdmin  ClientType = 0
	ClientTypeNormal ClientType = 1
)

// Valid reports whether t is one of the known client types
func (t ClientType) Valid() bool {
	switch t {
	case ClientTypeBanned, ClientTypeAdmin, ClientTypeNormal:
		return true
	}
	return false
}

func (t ClientType) String() string {
	switch t {
	case ClientTypeBanned:
		return "banned"
	case ClientTypeAdmin:
		return "admin"
	case ClientTypeNormal:
		return "normal"
	}
	return "unknown"
}

// User is an identity issued by an external front-end client
type User struct {
	ID         int64      `json:"id" db:"id"`
	ClientID   string     `json:"client_id" db:"client_id"`
	ClientType ClientType `json:"client_type" db:"client_type"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// IsAdmin reports whether the user may use administrative routes
func (u *User) IsAdmin() bool {
	return u.ClientType == ClientTypeAdmin
}

// IsBanned reports whether the user is locked out
func (u *User) IsBanned() bool {
	return u.ClientType == ClientTypeBanned
}
