// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package verify

import (
	"github.com/samber/oops"

	"github.com/pokeu/pokeu/internal/account"
)

var userFacing = map[string]bool{
	CodeDeliveryFailed:  true,
	CodeNoPending:       true,
	CodeExpired:         true,
	CodeMismatch:        true,
	CodeTooManyAttempts: true,
	CodeResendTooSoon:   true,
}

// UserMessage returns the text to show for err, covering both handshake and
// account outcomes.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if userFacing[account.ErrorCode(err)] {
		oopsErr, _ := oops.AsOops(err) //nolint:errcheck // a code implies an oops error
		return oopsErr.Error()
	}
	return account.UserMessage(err)
}
