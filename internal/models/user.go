package models

import (
	"errors"
	"time"
)

var (
	ErrUserExists   = errors.New("email already registered")
	ErrUserNotFound = errors.New("user not found")
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID            string    `json:"id" firestore:"-"`
	Name          string    `json:"name" firestore:"name" validate:"required"`
	Email         string    `json:"email" firestore:"email" validate:"required,email"`
	PasswordHash  string    `json:"-" firestore:"passwordHash"`
	Role          string    `json:"role" firestore:"role" validate:"oneof=USER ADMIN"`
	EmailVerified bool      `json:"emailVerified" firestore:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt" firestore:"createdAt"`
}
