// Package accounts serves tenants. Non-staff principals only ever see the
// account their request is scoped to; creating and deleting accounts is
// reserved to staff.
package accounts

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/modules/crud"
)

// Table scopes accounts by their own id.
var Table = database.Table{
	Name: "accounts",
	Filter: func(tenantID int64) squirrel.Sqlizer {
		return squirrel.Eq{"accounts.id": tenantID}
	},
}

var columns = []string{"accounts.id", "accounts.name", "accounts.domain", "accounts.subdomain"}

// Account is a tenant.
type Account struct {
	ID        int64  `json:"id"`
	Name      string `json:"name" validate:"required,max=255"`
	Domain    string `json:"domain" validate:"required,fqdn"`
	Subdomain string `json:"subdomain" validate:"required,subdomain"`
}

// Repository stores accounts.
type Repository struct {
	db     database.Interface
	scoper *database.Scoper
}

// NewRepository creates an account repository.
func NewRepository(db database.Interface, scoper *database.Scoper) *Repository {
	return &Repository{db: db, scoper: scoper}
}

// List returns one page of visible accounts ordered by id.
func (r *Repository) List(ctx context.Context, params crud.ListParams) (crud.Page[Account], error) {
	params = params.Normalized()

	countQ, err := r.scoper.Select(ctx, Table, "COUNT(*)")
	if err != nil {
		return crud.Page[Account]{}, err
	}
	query, args, err := countQ.ToSql()
	if err != nil {
		return crud.Page[Account]{}, err
	}
	page := crud.Page[Account]{Results: []Account{}}
	if err := r.db.QueryRow(ctx, query, args...).Scan(&page.Count); err != nil {
		return crud.Page[Account]{}, fmt.Errorf("count accounts: %w", err)
	}
	if page.Count == 0 {
		return page, nil
	}

	q, err := r.scoper.Select(ctx, Table, columns...)
	if err != nil {
		return crud.Page[Account]{}, err
	}
	q = q.OrderBy("accounts.id").
		Limit(uint64(params.PageSize)).
		Offset(params.Offset())
	page.Results, err = r.query(ctx, q)
	if err != nil {
		return crud.Page[Account]{}, err
	}
	return page, nil
}

// Get returns the visible account id, or database.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (*Account, error) {
	q, err := r.scoper.Select(ctx, Table, columns...)
	if err != nil {
		return nil, err
	}
	items, err := r.query(ctx, q.Where(squirrel.Eq{"accounts.id": id}))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("account %d: %w", id, database.ErrNotFound)
	}
	return &items[0], nil
}

// Create inserts a new account. Callers check the principal is staff.
func (r *Repository) Create(ctx context.Context, a *Account) (*Account, error) {
	if _, err := r.scoper.Scope(ctx); err != nil {
		return nil, err
	}
	query, args, err := r.scoper.Insert(Table.Name).
		Columns("name", "domain", "subdomain").
		Values(a.Name, a.Domain, a.Subdomain).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := r.db.QueryRow(ctx, query, args...).Scan(&a.ID); err != nil {
		return nil, fmt.Errorf("insert account: %w", database.Classify(err))
	}
	return a, nil
}

// Update replaces the fields of the visible account id.
func (r *Repository) Update(ctx context.Context, id int64, a *Account) (*Account, error) {
	upd, err := r.scoper.Update(ctx, Table)
	if err != nil {
		return nil, err
	}
	upd = upd.Set("name", a.Name).
		Set("domain", a.Domain).
		Set("subdomain", a.Subdomain).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"accounts.id": id})
	n, err := database.Exec(ctx, r.db, upd)
	if err != nil {
		return nil, fmt.Errorf("update account %d: %w", id, database.Classify(err))
	}
	if n == 0 {
		return nil, fmt.Errorf("account %d: %w", id, database.ErrNotFound)
	}
	a.ID = id
	return a, nil
}

// Delete removes the visible account id and, by cascade, everything it owns.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	del, err := r.scoper.Delete(ctx, Table)
	if err != nil {
		return err
	}
	n, err := database.Exec(ctx, r.db, del.Where(squirrel.Eq{"accounts.id": id}))
	if err != nil {
		return fmt.Errorf("delete account %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("account %d: %w", id, database.ErrNotFound)
	}
	return nil
}

func (r *Repository) query(ctx context.Context, q squirrel.SelectBuilder) ([]Account, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer rows.Close()

	items := []Account{}
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Domain, &a.Subdomain); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
