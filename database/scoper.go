package database

import (
	"context"

	"github.com/Masterminds/squirrel"

	"github.com/nephrolytics/practice-api/multitenant"
)

// DefaultTenantColumn is the owning-account column on entity tables.
const DefaultTenantColumn = "account_id"

// Table describes a tenant-owned table.
type Table struct {
	Name string
	// TenantColumn defaults to DefaultTenantColumn.
	TenantColumn string
	// Filter replaces the column predicate for tables whose visibility is not a
	// plain owner column, such as users visible through membership.
	Filter func(tenantID int64) squirrel.Sqlizer
}

// Predicate returns the condition restricting t to tenantID.
func (t Table) Predicate(tenantID int64) squirrel.Sqlizer {
	if t.Filter != nil {
		return t.Filter(tenantID)
	}
	column := t.TenantColumn
	if column == "" {
		column = DefaultTenantColumn
	}
	return squirrel.Eq{t.Name + "." + column: tenantID}
}

// Scoper builds statements restricted to the tenant bound on the request context.
// A missing scope, or a non-staff scope without a tenant, never reaches storage.
type Scoper struct {
	builder squirrel.StatementBuilderType
}

// NewScoper creates a Scoper using PostgreSQL placeholders.
func NewScoper() *Scoper {
	return &Scoper{builder: Builder()}
}

// Scope returns the validated scope bound to ctx.
func (s *Scoper) Scope(ctx context.Context) (multitenant.Scope, error) {
	scope, ok := multitenant.ScopeFromContext(ctx)
	if !ok || !scope.Valid() {
		return multitenant.Scope{}, multitenant.ErrTenancyInvalid
	}
	return scope, nil
}

// Filter returns the tenant predicate for t, or nil for an unrestricted staff scope.
func (s *Scoper) Filter(ctx context.Context, t Table) (squirrel.Sqlizer, error) {
	scope, err := s.Scope(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, ok := scope.TenantID()
	if !ok {
		return nil, nil
	}
	return t.Predicate(tenantID), nil
}

// Select starts a scoped SELECT on t.
func (s *Scoper) Select(ctx context.Context, t Table, columns ...string) (squirrel.SelectBuilder, error) {
	pred, err := s.Filter(ctx, t)
	if err != nil {
		return squirrel.SelectBuilder{}, err
	}
	q := s.builder.Select(columns...).From(t.Name)
	if pred != nil {
		q = q.Where(pred)
	}
	return q, nil
}

// Update starts a scoped UPDATE on t.
func (s *Scoper) Update(ctx context.Context, t Table) (squirrel.UpdateBuilder, error) {
	pred, err := s.Filter(ctx, t)
	if err != nil {
		return squirrel.UpdateBuilder{}, err
	}
	q := s.builder.Update(t.Name)
	if pred != nil {
		q = q.Where(pred)
	}
	return q, nil
}

// Delete starts a scoped DELETE on t.
func (s *Scoper) Delete(ctx context.Context, t Table) (squirrel.DeleteBuilder, error) {
	pred, err := s.Filter(ctx, t)
	if err != nil {
		return squirrel.DeleteBuilder{}, err
	}
	q := s.builder.Delete(t.Name)
	if pred != nil {
		q = q.Where(pred)
	}
	return q, nil
}

// Insert starts an INSERT on table. Callers set the owner column from Owner.
func (s *Scoper) Insert(table string) squirrel.InsertBuilder {
	return s.builder.Insert(table)
}

// Owner decides which account owns a new row. A scoped request always writes
// into its tenant and rejects a different requested account. An unscoped staff
// request must name the account.
func (s *Scoper) Owner(ctx context.Context, requested *int64) (int64, error) {
	scope, err := s.Scope(ctx)
	if err != nil {
		return 0, err
	}
	if tenantID, ok := scope.TenantID(); ok {
		if requested != nil && *requested != tenantID {
			return 0, ErrInvalidReference
		}
		return tenantID, nil
	}
	if requested == nil {
		return 0, ErrOwnerRequired
	}
	return *requested, nil
}
