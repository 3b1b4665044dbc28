// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package mocks provides testify mocks for the verify package.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pokeu/pokeu/internal/account"
)

// MockRegistrar is a mock verify.Registrar.
type MockRegistrar struct {
	mock.Mock
}

// NewMockRegistrar creates a MockRegistrar whose expectations are asserted on cleanup.
func NewMockRegistrar(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockRegistrar {
	m := &MockRegistrar{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// CheckRegistration mocks verify.Registrar.CheckRegistration.
func (m *MockRegistrar) CheckRegistration(ctx context.Context, email, password, displayName string) error {
	return m.Called(ctx, email, password, displayName).Error(0)
}

// Register mocks verify.Registrar.Register.
func (m *MockRegistrar) Register(ctx context.Context, email, password, displayName string) (*account.Identity, error) {
	args := m.Called(ctx, email, password, displayName)
	id, _ := args.Get(0).(*account.Identity)
	return id, args.Error(1)
}
