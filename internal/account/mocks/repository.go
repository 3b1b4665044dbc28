// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package mocks provides testify mocks for the account package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/pokeu/pokeu/internal/account"
)

// MockRepository is a mock account.Repository.
type MockRepository struct {
	mock.Mock
}

// NewMockRepository creates a MockRepository whose expectations are asserted on cleanup.
func NewMockRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockRepository {
	m := &MockRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Exists mocks account.Repository.Exists.
func (m *MockRepository) Exists(ctx context.Context, field account.LookupField, value string) (bool, error) {
	args := m.Called(ctx, field, value)
	return args.Bool(0), args.Error(1)
}

// Insert mocks account.Repository.Insert.
func (m *MockRepository) Insert(ctx context.Context, email, displayName, passwordHash string, createdAt time.Time) (int64, error) {
	args := m.Called(ctx, email, displayName, passwordHash, createdAt)
	return args.Get(0).(int64), args.Error(1)
}

// FindByEmail mocks account.Repository.FindByEmail.
func (m *MockRepository) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	args := m.Called(ctx, email)
	acct, _ := args.Get(0).(*account.Account)
	return acct, args.Error(1)
}

// FindByDisplayName mocks account.Repository.FindByDisplayName.
func (m *MockRepository) FindByDisplayName(ctx context.Context, name string) (*account.Account, error) {
	args := m.Called(ctx, name)
	acct, _ := args.Get(0).(*account.Account)
	return acct, args.Error(1)
}

// UpdatePasswordHash mocks account.Repository.UpdatePasswordHash.
func (m *MockRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

// List mocks account.Repository.List.
func (m *MockRepository) List(ctx context.Context) ([]*account.Account, error) {
	args := m.Called(ctx)
	accounts, _ := args.Get(0).([]*account.Account)
	return accounts, args.Error(1)
}

// DeleteByEmail mocks account.Repository.DeleteByEmail.
func (m *MockRepository) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(int64), args.Error(1)
}

var _ account.Repository = (*MockRepository)(nil)

// MockPasswordHasher is a mock account.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher whose expectations are asserted on cleanup.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash mocks account.PasswordHasher.Hash.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify mocks account.PasswordHasher.Verify.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// NeedsUpgrade mocks account.PasswordHasher.NeedsUpgrade.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	args := m.Called(hash)
	return args.Bool(0)
}

var _ account.PasswordHasher = (*MockPasswordHasher)(nil)
