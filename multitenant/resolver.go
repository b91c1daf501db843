package multitenant

import (
	"context"

	"github.com/nephrolytics/practice-api/logger"
)

// MembershipReader lists the tenants a principal belongs to, in stored order.
type MembershipReader interface {
	Memberships(ctx context.Context, principalID int64) ([]Tenant, error)
}

// Resolver picks the single tenant that scopes a principal's request.
type Resolver struct {
	memberships MembershipReader
	log         logger.Logger
	staffBypass bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithStaffBypass controls whether staff without a tenant run unscoped. Enabled by default.
func WithStaffBypass(enabled bool) ResolverOption {
	return func(r *Resolver) {
		r.staffBypass = enabled
	}
}

// NewResolver creates a Resolver backed by memberships.
func NewResolver(memberships MembershipReader, log logger.Logger, opts ...ResolverOption) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	r := &Resolver{memberships: memberships, log: log, staffBypass: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the tenant for p, or nil for a staff principal with none.
// A non-staff principal without a tenant yields ErrTenancyInvalid. Membership
// lookup failures are logged and treated as an empty membership set.
func (r *Resolver) Resolve(ctx context.Context, p Principal) (*Tenant, error) {
	memberships, err := r.memberships.Memberships(ctx, p.ID)
	if err != nil {
		r.log.WithContext(ctx).Warn().
			Err(err).
			Int64("principal_id", p.ID).
			Msg("Membership lookup failed, resolving without tenant")
		memberships = nil
	}

	tenant := SelectTenant(memberships, p.PreferredTenantID)
	if tenant == nil && !(p.Staff && r.staffBypass) {
		return nil, ErrTenancyInvalid
	}
	return tenant, nil
}

// Scope resolves p and packages the result.
func (r *Resolver) Scope(ctx context.Context, p Principal) (Scope, error) {
	tenant, err := r.Resolve(ctx, p)
	if err != nil {
		return Scope{}, err
	}
	return Scope{Principal: p, Tenant: tenant}, nil
}

// SelectTenant applies the precedence rule: the preferred tenant when it is a
// membership, else the first membership, else nil.
func SelectTenant(memberships []Tenant, preferred *int64) *Tenant {
	if len(memberships) == 0 {
		return nil
	}
	if preferred != nil {
		for i := range memberships {
			if memberships[i].ID == *preferred {
				t := memberships[i]
				return &t
			}
		}
	}
	t := memberships[0]
	return &t
}
