// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package verify implements the email-code handshake that gates account
// creation.
//
// A caller owns one Session per client. RequestCode runs the account
// pre-checks, mails a four digit code and parks the registration on the
// session; SubmitCode commits it once the code matches. The handshake keeps
// no state of its own, so any number of sessions can run concurrently.
package verify
