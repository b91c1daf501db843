// Package directory reads users and their account memberships. It backs
// authentication and tenant resolution and is shared by the users module.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/nephrolytics/practice-api/auth"
	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/multitenant"
)

// Store reads principals and memberships from the users tables.
type Store struct {
	db      database.Querier
	builder squirrel.StatementBuilderType
}

var (
	_ multitenant.MembershipReader = (*Store)(nil)
	_ auth.PrincipalStore          = (*Store)(nil)
)

// NewStore creates a Store over db.
func NewStore(db database.Querier) *Store {
	return &Store{db: db, builder: database.Builder()}
}

// PrincipalByID loads the principal for user id, or database.ErrNotFound.
func (s *Store) PrincipalByID(ctx context.Context, id int64) (multitenant.Principal, error) {
	query, args, err := s.builder.
		Select("id", "username", "is_staff", "active_account_id").
		From("users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return multitenant.Principal{}, err
	}

	var (
		p         multitenant.Principal
		preferred sql.NullInt64
	)
	err = s.db.QueryRow(ctx, query, args...).Scan(&p.ID, &p.Username, &p.Staff, &preferred)
	if errors.Is(err, sql.ErrNoRows) {
		return multitenant.Principal{}, fmt.Errorf("user %d: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return multitenant.Principal{}, fmt.Errorf("load user %d: %w", id, err)
	}
	if preferred.Valid {
		p.PreferredTenantID = &preferred.Int64
	}
	return p, nil
}

// Memberships lists the accounts userID belongs to, ordered by account id.
func (s *Store) Memberships(ctx context.Context, userID int64) ([]multitenant.Tenant, error) {
	query, args, err := s.builder.
		Select("a.id", "a.name", "a.domain", "a.subdomain").
		From("accounts a").
		Join("account_users au ON au.account_id = a.id").
		Where(squirrel.Eq{"au.user_id": userID}).
		OrderBy("a.id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memberships of user %d: %w", userID, err)
	}
	defer rows.Close()

	var tenants []multitenant.Tenant
	for rows.Next() {
		var t multitenant.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Domain, &t.Subdomain); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// Credentials returns the id and password hash for username, or database.ErrNotFound.
func (s *Store) Credentials(ctx context.Context, username string) (int64, string, error) {
	query, args, err := s.builder.
		Select("id", "password_hash").
		From("users").
		Where(squirrel.Eq{"username": username}).
		ToSql()
	if err != nil {
		return 0, "", err
	}
	var (
		id   int64
		hash string
	)
	err = s.db.QueryRow(ctx, query, args...).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", database.ErrNotFound
	}
	return id, hash, err
}

// SetActiveAccount records accountID as userID's preferred account. The
// account must be one of the user's memberships.
func (s *Store) SetActiveAccount(ctx context.Context, userID, accountID int64) error {
	member := squirrel.Expr(
		"EXISTS (SELECT 1 FROM account_users au WHERE au.user_id = ? AND au.account_id = ?)",
		userID, accountID,
	)

	stmt := s.builder.Update("users").
		Set("active_account_id", accountID).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": userID}).
		Where(member)

	n, err := database.Exec(ctx, s.db, stmt)
	if err != nil {
		return fmt.Errorf("set active account of user %d: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("account %d: %w", accountID, database.ErrInvalidReference)
	}
	return nil
}
