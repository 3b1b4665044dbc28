// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package mocks provides testify mocks for the mail package.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSender is a mock mail.Sender.
type MockSender struct {
	mock.Mock
}

// NewMockSender creates a MockSender whose expectations are asserted on cleanup.
func NewMockSender(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSender {
	m := &MockSender{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Send mocks mail.Sender.Send.
func (m *MockSender) Send(ctx context.Context, to, code string) error {
	return m.Called(ctx, to, code).Error(0)
}
