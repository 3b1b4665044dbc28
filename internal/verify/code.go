// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package verify

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"

	"github.com/samber/oops"
)

// CodeLength is the number of digits in a verification code.
const CodeLength = 4

var codeSpace = big.NewInt(10000)

// GenerateCode returns a uniformly random zero-padded four digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", oops.Code("VERIFY_CODE_GENERATION_FAILED").Wrap(err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// codesMatch compares a submitted code exactly, in constant time. Callers
// trim user input before submitting.
func codesMatch(want, got string) bool {
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
