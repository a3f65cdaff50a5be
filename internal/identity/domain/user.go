// Package domain holds the identity types: clinic users and their roles.
package domain

import (
	"errors"
	"time"
)

// Roles a clinic account can hold. Role is fixed at registration.
const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// User is a clinic account, either a doctor or a patient.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	FullName     string    `json:"full_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks required fields and the role value.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("user id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Role != RoleDoctor && u.Role != RolePatient {
		return errors.New("role must be doctor or patient")
	}
	if u.FullName == "" {
		return errors.New("full name is required")
	}
	return nil
}
