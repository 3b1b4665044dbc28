// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package errutil

import (
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
)

// TB is the part of testing.TB the assertions need.
type TB interface {
	assert.TestingT
	Helper()
}

// AssertErrorCode reports a failure unless err carries code. oops reports
// the innermost code in a wrap chain, so wrapping a coded error with another
// code keeps the inner one.
func AssertErrorCode(t TB, err error, code string) bool {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return assert.Fail(t, "expected a coded error", "want code %q, got %T: %v", code, err, err)
	}
	return assert.Equal(t, code, oopsErr.Code(), "error: %v", err)
}

// AssertErrorContext reports a failure unless err carries key with value in
// its oops context.
func AssertErrorContext(t TB, err error, key string, value any) bool {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return assert.Fail(t, "expected a coded error", "want context %q, got %T: %v", key, err, err)
	}
	ctx := oopsErr.Context()
	if !assert.Contains(t, ctx, key) {
		return false
	}
	return assert.Equal(t, value, ctx[key])
}
