// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package account

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// argon2id parameters for new hashes.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2SaltLen = 16
	argon2KeyLen  = 32
)

const argon2Prefix = "$argon2id$"

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = oops.Code("ACCOUNT_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	// Hash produces a one-way encoding of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches hash.
	// Returns (false, nil) on mismatch and an error only for malformed hashes.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade reports whether hash should be re-encoded on next login.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher encodes passwords as salted argon2id PHC strings.
type Argon2idHasher struct{}

// NewArgon2idHasher creates an Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash returns $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("ACCOUNT_SALT_FAILED").Wrap(err)
	}
	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix,
		argon2.Version,
		argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func parseArgon2id(encoded string) (*argon2Params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var p argon2Params
	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &threads); err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	p.threads = uint8(threads)

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Wrap(err)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Wrap(err)
	}
	if len(p.key) == 0 || len(p.key) > 1<<10 {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("invalid key length: %d", len(p.key))
	}
	return &p, nil
}

// Verify recomputes the argon2id key with the stored parameters.
func (h *Argon2idHasher) Verify(password, encoded string) (bool, error) {
	p, err := parseArgon2id(encoded)
	if err != nil {
		return false, err
	}
	//nolint:gosec // G115: key length bounded by parseArgon2id
	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// NeedsUpgrade reports whether hash is not argon2id.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, argon2Prefix)
}

// SHA256Hasher produces unsalted hex SHA-256 digests. It exists to read
// account databases created by the original desktop client.
type SHA256Hasher struct{}

// Hash returns the lowercase hex SHA-256 digest of password.
func (SHA256Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

// Verify compares the digest of password with hash.
func (SHA256Hasher) Verify(password, hash string) (bool, error) {
	if !isSHA256Hex(hash) {
		return false, oops.Code("ACCOUNT_INVALID_HASH").Errorf("invalid sha256 digest")
	}
	sum := sha256.Sum256([]byte(password))
	want, _ := hex.DecodeString(strings.ToLower(hash)) //nolint:errcheck // validated by isSHA256Hex
	return subtle.ConstantTimeCompare(sum[:], want) == 1, nil
}

// NeedsUpgrade always returns false; SHA256Hasher never re-encodes.
func (SHA256Hasher) NeedsUpgrade(string) bool {
	return false
}

func isSHA256Hex(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// MultiHasher hashes with argon2id and verifies both argon2id and legacy
// SHA-256 digests. Legacy digests report NeedsUpgrade.
type MultiHasher struct {
	current *Argon2idHasher
	legacy  SHA256Hasher
}

// NewMultiHasher creates the default hasher used by the service.
func NewMultiHasher() *MultiHasher {
	return &MultiHasher{current: NewArgon2idHasher()}
}

// Hash encodes with argon2id.
func (m *MultiHasher) Hash(password string) (string, error) {
	return m.current.Hash(password)
}

// Verify dispatches on the hash encoding.
func (m *MultiHasher) Verify(password, hash string) (bool, error) {
	if strings.HasPrefix(hash, argon2Prefix) {
		return m.current.Verify(password, hash)
	}
	return m.legacy.Verify(password, hash)
}

// NeedsUpgrade reports whether hash is not argon2id.
func (m *MultiHasher) NeedsUpgrade(hash string) bool {
	return m.current.NeedsUpgrade(hash)
}
