// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pokeu/pokeu/internal/account"
)

// Repository implements account.Repository using SQLite.
type Repository struct {
	db DBTX
}

// NewRepository creates a Repository on db.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// existsQueries maps lookup fields to fixed statements.
var existsQueries = map[account.LookupField]string{
	account.FieldEmail:       `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`,
	account.FieldDisplayName: `SELECT EXISTS(SELECT 1 FROM users WHERE display_name = ?)`,
}

// Exists reports whether an account has the given field value.
func (r *Repository) Exists(ctx context.Context, field account.LookupField, value string) (bool, error) {
	query, ok := existsQueries[field]
	if !ok {
		return false, oops.Code("STORE_EXISTS_FAILED").With("field", string(field)).Errorf("unknown lookup field")
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, account.Normalize(field, value)).Scan(&exists); err != nil {
		return false, oops.Code("STORE_EXISTS_FAILED").With("field", string(field)).Wrap(err)
	}
	return exists, nil
}

// Insert stores a new account.
func (r *Repository) Insert(ctx context.Context, email, displayName, passwordHash string, createdAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (email, display_name, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`,
		account.NormalizeEmail(email),
		account.NormalizeDisplayName(displayName),
		passwordHash,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return 0, oops.Code("STORE_CONSTRAINT_VIOLATION").
				With("field", field).
				Wrap(errors.Join(account.ErrConstraintViolation, err))
		}
		return 0, oops.Code("STORE_INSERT_FAILED").With("display_name", displayName).Wrap(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, oops.Code("STORE_INSERT_FAILED").With("operation", "last insert id").Wrap(err)
	}
	return id, nil
}

// uniqueViolation reports whether err is a UNIQUE constraint failure and
// which field it concerns.
func uniqueViolation(err error) (string, bool) {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return "", false
	}
	msg := sqliteErr.Error()
	switch {
	case strings.Contains(msg, "users.email"):
		return string(account.FieldEmail), true
	case strings.Contains(msg, "users.display_name"):
		return string(account.FieldDisplayName), true
	default:
		return "unknown", true
	}
}

const selectAccount = `SELECT id, email, display_name, password_hash, created_at FROM users`

// FindByEmail returns the account with the given email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	email = account.NormalizeEmail(email)
	acct, err := scanAccount(r.db.QueryRowContext(ctx, selectAccount+` WHERE email = ?`, email))
	if err != nil {
		return nil, findError(err, "email", email)
	}
	return acct, nil
}

// FindByDisplayName returns the account with the given display name.
func (r *Repository) FindByDisplayName(ctx context.Context, name string) (*account.Account, error) {
	name = account.NormalizeDisplayName(name)
	acct, err := scanAccount(r.db.QueryRowContext(ctx, selectAccount+` WHERE display_name = ?`, name))
	if err != nil {
		return nil, findError(err, "display_name", name)
	}
	return acct, nil
}

func findError(err error, key, value string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return oops.Code("STORE_NOT_FOUND").With(key, value).Wrap(account.ErrNotFound)
	}
	return oops.Code("STORE_FIND_FAILED").With(key, value).Wrap(err)
}

// UpdatePasswordHash replaces the stored password hash.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return oops.Code("STORE_UPDATE_FAILED").With("account_id", id).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("STORE_UPDATE_FAILED").With("account_id", id).Wrap(err)
	}
	if n == 0 {
		return oops.Code("STORE_NOT_FOUND").With("account_id", id).Wrap(account.ErrNotFound)
	}
	return nil
}

// List returns all accounts ordered by ID.
func (r *Repository) List(ctx context.Context) ([]*account.Account, error) {
	rows, err := r.db.QueryContext(ctx, selectAccount+` ORDER BY id`)
	if err != nil {
		return nil, oops.Code("STORE_LIST_FAILED").Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []*account.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("STORE_LIST_FAILED").With("operation", "scan").Wrap(err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_LIST_FAILED").With("operation", "iterate").Wrap(err)
	}
	return accounts, nil
}

// DeleteByEmail removes the account with the given email.
func (r *Repository) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE email = ?`, account.NormalizeEmail(email))
	if err != nil {
		return 0, oops.Code("STORE_DELETE_FAILED").With("email", email).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oops.Code("STORE_DELETE_FAILED").With("email", email).Wrap(err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var (
		acct      account.Account
		createdAt string
	)
	if err := row.Scan(&acct.ID, &acct.Email, &acct.DisplayName, &acct.PasswordHash, &createdAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, oops.Code("STORE_CORRUPT_ROW").With("account_id", acct.ID).Wrap(err)
	}
	acct.CreatedAt = t
	return &acct, nil
}

var _ account.Repository = (*Repository)(nil)
