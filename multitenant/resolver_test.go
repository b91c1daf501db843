package multitenant

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nephrolytics/practice-api/logger"
)

type membershipFunc func(ctx context.Context, principalID int64) ([]Tenant, error)

func (f membershipFunc) Memberships(ctx context.Context, principalID int64) ([]Tenant, error) {
	return f(ctx, principalID)
}

func staticMemberships(tenants ...Tenant) MembershipReader {
	return membershipFunc(func(context.Context, int64) ([]Tenant, error) {
		return tenants, nil
	})
}

func int64Ptr(v int64) *int64 { return &v }

var (
	tenantA = Tenant{ID: 1, Name: "Acme", Subdomain: "acme"}
	tenantB = Tenant{ID: 2, Name: "Beta", Subdomain: "beta"}
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		memberships []Tenant
		principal   Principal
		want        *Tenant
		wantErr     error
	}{
		{
			name:      "non-staff without memberships",
			principal: Principal{ID: 10},
			wantErr:   ErrTenancyInvalid,
		},
		{
			name:      "staff without memberships runs unscoped",
			principal: Principal{ID: 10, Staff: true},
		},
		{
			name:        "preferred tenant among memberships wins",
			memberships: []Tenant{tenantA, tenantB},
			principal:   Principal{ID: 10, PreferredTenantID: int64Ptr(tenantB.ID)},
			want:        &tenantB,
		},
		{
			name:        "no preferred tenant falls back to first membership",
			memberships: []Tenant{tenantA, tenantB},
			principal:   Principal{ID: 10},
			want:        &tenantA,
		},
		{
			name:        "preferred tenant outside memberships falls back to first membership",
			memberships: []Tenant{tenantA, tenantB},
			principal:   Principal{ID: 10, PreferredTenantID: int64Ptr(99)},
			want:        &tenantA,
		},
		{
			name:        "staff with memberships is scoped",
			memberships: []Tenant{tenantB},
			principal:   Principal{ID: 10, Staff: true},
			want:        &tenantB,
		},
		{
			name:      "preferred tenant without memberships is ignored",
			principal: Principal{ID: 10, PreferredTenantID: int64Ptr(tenantA.ID)},
			wantErr:   ErrTenancyInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(staticMemberships(tt.memberships...), logger.Nop())

			got, err := r.Resolve(context.Background(), tt.principal)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMembershipLookupFailure(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "warn", false, nil)
	failing := membershipFunc(func(context.Context, int64) ([]Tenant, error) {
		return nil, errors.New("connection reset")
	})
	r := NewResolver(failing, log)

	_, err := r.Resolve(context.Background(), Principal{ID: 7})
	require.ErrorIs(t, err, ErrTenancyInvalid)
	assert.Contains(t, buf.String(), "connection reset")
	assert.Contains(t, buf.String(), `"principal_id":7`)

	tenant, err := r.Resolve(context.Background(), Principal{ID: 8, Staff: true})
	require.NoError(t, err)
	assert.Nil(t, tenant)
}

func TestResolveWithoutStaffBypass(t *testing.T) {
	r := NewResolver(staticMemberships(), nil, WithStaffBypass(false))

	_, err := r.Resolve(context.Background(), Principal{ID: 1, Staff: true})
	assert.ErrorIs(t, err, ErrTenancyInvalid)
}

func TestResolverScope(t *testing.T) {
	r := NewResolver(staticMemberships(tenantA), logger.Nop())
	p := Principal{ID: 3, Username: "nurse"}

	scope, err := r.Scope(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, p, scope.Principal)
	id, ok := scope.TenantID()
	assert.True(t, ok)
	assert.Equal(t, tenantA.ID, id)
	assert.False(t, scope.Unrestricted())
	assert.True(t, scope.Valid())
}

func TestSelectTenantReturnsCopy(t *testing.T) {
	memberships := []Tenant{tenantA}
	got := SelectTenant(memberships, nil)
	require.NotNil(t, got)
	got.Name = "mutated"
	assert.Equal(t, "Acme", memberships[0].Name)
}

func TestResolveSwitchingPreferredTenant(t *testing.T) {
	r := NewResolver(staticMemberships(tenantA, tenantB), logger.Nop())
	p := Principal{ID: 5, PreferredTenantID: int64Ptr(tenantA.ID)}

	first, err := r.Resolve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, tenantA.ID, first.ID)

	p.PreferredTenantID = int64Ptr(tenantB.ID)
	second, err := r.Resolve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, tenantB.ID, second.ID)
}
