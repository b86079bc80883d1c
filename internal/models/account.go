package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Account is a registered user of the reference photo service
type Account struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	CreatedAt    time.Time
}

// MinPasswordLength is the shortest password the service accepts
const MinPasswordLength = 6

// Account errors
var (
	ErrEmptyEmail        = PhotoError{"email cannot be empty"}
	ErrEmptyFullName     = PhotoError{"full name cannot be empty"}
	ErrEmailExists       = PhotoError{"email already registered"}
	ErrPasswordTooShort  = PhotoError{fmt.Sprintf("password must be at least %d characters", MinPasswordLength)}
	ErrInvalidCredential = PhotoError{"invalid email or password"}
)

// NewAccount creates an account with a normalized email and no password
func NewAccount(fullName, email string) (*Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	fullName = strings.TrimSpace(fullName)

	if email == "" {
		return nil, ErrEmptyEmail
	}
	if fullName == "" {
		return nil, ErrEmptyFullName
	}

	return &Account{
		ID:        uuid.New().String(),
		Email:     email,
		FullName:  fullName,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SetPassword hashes and sets the password using bcrypt
func (a *Account) SetPassword(password string, cost int) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	a.PasswordHash = string(hash)
	return nil
}

// VerifyPassword checks the password against the stored hash (constant-time via bcrypt)
func (a *Account) VerifyPassword(password string) bool {
	if a.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}

// Profile is the public view of the account
func (a *Account) Profile() User {
	return User{ID: a.ID, FullName: a.FullName, Email: a.Email}
}
