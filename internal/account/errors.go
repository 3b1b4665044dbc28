// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package account

import (
	"github.com/samber/oops"
)

// Error codes returned by Service.
const (
	CodeEmailTaken     = "ACCOUNT_EMAIL_TAKEN"
	CodeNameTaken      = "ACCOUNT_NAME_TAKEN"
	CodeInUse          = "ACCOUNT_IN_USE"
	CodeNotFound       = "ACCOUNT_NOT_FOUND"
	CodeWrongPassword  = "ACCOUNT_WRONG_PASSWORD"
	CodeRegisterFailed = "ACCOUNT_REGISTER_FAILED"
	CodeLoginFailed    = "ACCOUNT_LOGIN_FAILED"
	CodeAdminFailed    = "ACCOUNT_ADMIN_FAILED"
)

// GenericFailureMessage is shown for infrastructure failures.
const GenericFailureMessage = "something went wrong, please try again later"

// userFacing lists codes whose error message is safe to show verbatim.
var userFacing = map[string]bool{
	CodeValidationFailed: true,
	CodeEmailTaken:       true,
	CodeNameTaken:        true,
	CodeInUse:            true,
	CodeNotFound:         true,
	CodeWrongPassword:    true,
}

// failure reports an infrastructure error under code. oops reports the
// innermost code of a wrap chain, so the cause is folded into the message
// and its own code kept under "cause_code".
func failure(code string, err error, kv ...any) error {
	b := oops.Code(code).With(kv...)
	if cause := ErrorCode(err); cause != "" {
		b = b.With("cause_code", cause)
	}
	return b.Errorf("%v", err)
}

// ErrorCode returns the oops code of err, or "" if it has none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := any(oopsErr.Code()).(string) //nolint:errcheck // non-string codes are treated as absent
	return code
}

// IsUserError reports whether err is a user-correctable account outcome.
func IsUserError(err error) bool {
	return userFacing[ErrorCode(err)]
}

// UserMessage returns the text to show a user for err. User-correctable
// outcomes are shown verbatim; anything else gets a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if !IsUserError(err) {
		return GenericFailureMessage
	}
	oopsErr, _ := oops.AsOops(err) //nolint:errcheck // IsUserError implies an oops error
	return oopsErr.Error()
}
