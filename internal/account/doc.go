// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package account provides account identity for PokeU: credential storage
// contracts, input validation, password hashing, and the register/login flows.
//
// # Domain Types
//
//   - [Account]: a persisted identity with a unique email and display name
//   - [Identity]: the public view of an account returned to callers
//   - [Policy]: the allowed email domains and password strength tier
//
// # Services
//
//   - [Service]: registration, login, and the admin list/delete operations
//
// # Storage
//
// [Repository] is implemented by the sqlite and postgres subpackages. Both
// enforce uniqueness of email and display name at the storage layer and
// report violations as [ErrConstraintViolation].
package account
