// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package postgres implements account.Repository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/pokeu/pokeu/internal/account"
)

// poolIface is the subset of *pgxpool.Pool used by the repository.
// pgxmock.PgxPoolIface satisfies it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements account.Repository using PostgreSQL.
type Repository struct {
	pool poolIface
}

// NewRepository creates a Repository.
func NewRepository(pool poolIface) *Repository {
	return &Repository{pool: pool}
}

// constraintFields maps unique constraint names to account fields.
var constraintFields = map[string]account.LookupField{
	"users_email_key":        account.FieldEmail,
	"users_display_name_key": account.FieldDisplayName,
}

// Exists reports whether an account has the given field value.
func (r *Repository) Exists(ctx context.Context, field account.LookupField, value string) (bool, error) {
	var query string
	switch field {
	case account.FieldEmail:
		query = `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`
	case account.FieldDisplayName:
		query = `SELECT EXISTS(SELECT 1 FROM users WHERE display_name = $1)`
	default:
		return false, oops.Code("STORE_EXISTS_FAILED").With("field", string(field)).Errorf("unknown lookup field")
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, query, account.Normalize(field, value)).Scan(&exists); err != nil {
		return false, oops.Code("STORE_EXISTS_FAILED").With("field", string(field)).Wrap(err)
	}
	return exists, nil
}

// Insert stores a new account and returns its identity column.
func (r *Repository) Insert(ctx context.Context, email, displayName, passwordHash string, createdAt time.Time) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`,
		account.NormalizeEmail(email),
		account.NormalizeDisplayName(displayName),
		passwordHash,
		createdAt.UTC(),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			field, ok := constraintFields[pgErr.ConstraintName]
			if !ok {
				field = account.LookupField(pgErr.ConstraintName)
			}
			return 0, oops.Code("STORE_CONSTRAINT_VIOLATION").
				With("field", string(field)).
				Wrap(errors.Join(account.ErrConstraintViolation, err))
		}
		return 0, oops.Code("STORE_INSERT_FAILED").With("display_name", displayName).Wrap(err)
	}
	return id, nil
}

// FindByEmail returns the account with the given email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	email = account.NormalizeEmail(email)
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM users
		WHERE email = $1
	`, email)
	acct, err := scanAccount(row)
	if err != nil {
		return nil, findError(err, "email", email)
	}
	return acct, nil
}

// FindByDisplayName returns the account with the given display name.
func (r *Repository) FindByDisplayName(ctx context.Context, name string) (*account.Account, error) {
	name = account.NormalizeDisplayName(name)
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM users
		WHERE display_name = $1
	`, name)
	acct, err := scanAccount(row)
	if err != nil {
		return nil, findError(err, "display_name", name)
	}
	return acct, nil
}

func findError(err error, key, value string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("STORE_NOT_FOUND").With(key, value).Wrap(account.ErrNotFound)
	}
	return oops.Code("STORE_FIND_FAILED").With(key, value).Wrap(err)
}

// UpdatePasswordHash replaces the stored hash.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, id)
	if err != nil {
		return oops.Code("STORE_UPDATE_FAILED").With("account_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("STORE_NOT_FOUND").With("account_id", id).Wrap(account.ErrNotFound)
	}
	return nil
}

// List returns all accounts ordered by ID.
func (r *Repository) List(ctx context.Context) ([]*account.Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, oops.Code("STORE_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

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
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE email = $1`, account.NormalizeEmail(email))
	if err != nil {
		return 0, oops.Code("STORE_DELETE_FAILED").With("email", email).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var acct account.Account
	if err := row.Scan(&acct.ID, &acct.Email, &acct.DisplayName, &acct.PasswordHash, &acct.CreatedAt); err != nil {
		return nil, err
	}
	acct.CreatedAt = acct.CreatedAt.UTC()
	return &acct, nil
}

var _ account.Repository = (*Repository)(nil)
