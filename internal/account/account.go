// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound indicates the requested account does not exist.
var ErrNotFound = errors.New("not found")

// ErrConstraintViolation indicates a storage-level uniqueness rule rejected a write.
var ErrConstraintViolation = errors.New("constraint violation")

// LookupField selects which unique key identifies an account.
type LookupField string

// Lookup fields.
const (
	FieldEmail       LookupField = "email"
	FieldDisplayName LookupField = "display_name"
)

// Valid reports whether f names a known lookup field.
func (f LookupField) Valid() bool {
	return f == FieldEmail || f == FieldDisplayName
}

// ParseLookupField converts a configuration string into a LookupField,
// ignoring case and surrounding space. "email" selects FieldEmail;
// "display_name", "displayName", "name" and "profile" select
// FieldDisplayName.
func ParseLookupField(s string) (LookupField, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return FieldEmail, true
	case "display_name", "displayname", "name", "profile":
		return FieldDisplayName, true
	}
	return "", false
}

// Account is a persisted identity.
type Account struct {
	ID           int64
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity is what callers learn about an account after register or login.
type Identity struct {
	ID          int64
	Email       string
	DisplayName string
}

// Identity returns the public view of the account.
func (a *Account) Identity() *Identity {
	return &Identity{ID: a.ID, Email: a.Email, DisplayName: a.DisplayName}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeDisplayName trims a display name. Case is preserved.
func NormalizeDisplayName(name string) string {
	return strings.TrimSpace(name)
}

// Normalize applies the normalization rule for the given field.
func Normalize(field LookupField, value string) string {
	if field == FieldEmail {
		return NormalizeEmail(value)
	}
	return NormalizeDisplayName(value)
}

// Repository stores accounts.
//
// Implementations must enforce uniqueness of Email and DisplayName
// themselves; callers pre-check for friendlier messages but the insert is
// the authority.
type Repository interface {
	// Exists reports whether an account with the given field value exists.
	// Email values are normalized before the lookup.
	Exists(ctx context.Context, field LookupField, value string) (bool, error)

	// Insert stores a new account and returns its assigned ID.
	// Returns an error wrapping ErrConstraintViolation if either unique key is taken.
	Insert(ctx context.Context, email, displayName, passwordHash string, createdAt time.Time) (int64, error)

	// FindByEmail returns the account with the given email.
	// Returns an error wrapping ErrNotFound if absent.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// FindByDisplayName returns the account with the given display name.
	// Returns an error wrapping ErrNotFound if absent.
	FindByDisplayName(ctx context.Context, name string) (*Account, error)

	// UpdatePasswordHash replaces the stored hash for an account.
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error

	// List returns all accounts ordered by ID.
	List(ctx context.Context) ([]*Account, error)

	// DeleteByEmail removes the account with the given email and returns the
	// number of rows removed (0 or 1).
	DeleteByEmail(ctx context.Context, email string) (int64, error)
}
