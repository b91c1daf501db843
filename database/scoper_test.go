package database

import (
	"context"
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nephrolytics/practice-api/multitenant"
)

var patients = Table{Name: "patients"}

func tenantCtx(id int64) context.Context {
	return multitenant.WithScope(context.Background(), multitenant.Scope{
		Principal: multitenant.Principal{ID: 1},
		Tenant:    &multitenant.Tenant{ID: id},
	})
}

func staffCtx() context.Context {
	return multitenant.WithScope(context.Background(), multitenant.Scope{
		Principal: multitenant.Principal{ID: 2, Staff: true},
	})
}

func int64Ptr(v int64) *int64 { return &v }

func TestScoperSelect(t *testing.T) {
	s := NewScoper()

	t.Run("tenant scope injects predicate", func(t *testing.T) {
		q, err := s.Select(tenantCtx(7), patients, "patients.id")
		require.NoError(t, err)
		sql, args, err := q.Where(squirrel.Eq{"patients.id": 3}).ToSql()
		require.NoError(t, err)
		assert.Equal(t, "SELECT patients.id FROM patients WHERE patients.account_id = $1 AND patients.id = $2", sql)
		assert.Equal(t, []any{int64(7), 3}, args)
	})

	t.Run("staff without tenant is unfiltered", func(t *testing.T) {
		q, err := s.Select(staffCtx(), patients, "patients.id")
		require.NoError(t, err)
		sql, args, err := q.ToSql()
		require.NoError(t, err)
		assert.Equal(t, "SELECT patients.id FROM patients", sql)
		assert.Empty(t, args)
	})

	t.Run("missing scope is rejected", func(t *testing.T) {
		_, err := s.Select(context.Background(), patients, "id")
		assert.ErrorIs(t, err, multitenant.ErrTenancyInvalid)
	})

	t.Run("non-staff without tenant is rejected", func(t *testing.T) {
		ctx := multitenant.WithScope(context.Background(), multitenant.Scope{Principal: multitenant.Principal{ID: 9}})
		_, err := s.Select(ctx, patients, "id")
		assert.ErrorIs(t, err, multitenant.ErrTenancyInvalid)
	})
}

func TestScoperUpdateDelete(t *testing.T) {
	s := NewScoper()

	upd, err := s.Update(tenantCtx(4), patients)
	require.NoError(t, err)
	sql, args, err := upd.Set("last_name", "Doe").Where(squirrel.Eq{"id": 1}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE patients SET last_name = $1 WHERE patients.account_id = $2 AND id = $3", sql)
	assert.Equal(t, []any{"Doe", int64(4), 1}, args)

	del, err := s.Delete(tenantCtx(4), patients)
	require.NoError(t, err)
	sql, _, err = del.Where(squirrel.Eq{"id": 1}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM patients WHERE patients.account_id = $1 AND id = $2", sql)

	_, err = s.Update(context.Background(), patients)
	assert.ErrorIs(t, err, multitenant.ErrTenancyInvalid)
	_, err = s.Delete(context.Background(), patients)
	assert.ErrorIs(t, err, multitenant.ErrTenancyInvalid)
}

func TestTablePredicate(t *testing.T) {
	custom := Table{Name: "accounts", TenantColumn: "id"}
	sql, args, err := custom.Predicate(3).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "accounts.id = ?", sql)
	assert.Equal(t, []any{int64(3)}, args)

	membership := Table{Name: "users", Filter: func(id int64) squirrel.Sqlizer {
		return squirrel.Expr("users.id IN (SELECT user_id FROM account_users WHERE account_id = ?)", id)
	}}
	sql, _, err = membership.Predicate(3).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "account_users")
}

func TestScoperOwner(t *testing.T) {
	s := NewScoper()

	owner, err := s.Owner(tenantCtx(5), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), owner)

	owner, err = s.Owner(tenantCtx(5), int64Ptr(5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), owner)

	_, err = s.Owner(tenantCtx(5), int64Ptr(6))
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = s.Owner(staffCtx(), nil)
	assert.ErrorIs(t, err, ErrOwnerRequired)

	owner, err = s.Owner(staffCtx(), int64Ptr(8))
	require.NoError(t, err)
	assert.Equal(t, int64(8), owner)

	_, err = s.Owner(context.Background(), int64Ptr(8))
	assert.ErrorIs(t, err, multitenant.ErrTenancyInvalid)
}
