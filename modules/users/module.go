package users

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nephrolytics/practice-api/app"
	"github.com/nephrolytics/practice-api/auth"
	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/directory"
	"github.com/nephrolytics/practice-api/logger"
	"github.com/nephrolytics/practice-api/messaging"
	"github.com/nephrolytics/practice-api/modules/crud"
	"github.com/nephrolytics/practice-api/multitenant"
	"github.com/nephrolytics/practice-api/server"
)

const resource = "user"

// Module serves /users, /users/me and, when tokens are enabled, /auth/token.
type Module struct {
	hooks []PostCreateHook

	repo      *Repository
	directory *directory.Store
	tokens    auth.TokenIssuer
	events    *messaging.Emitter
	log       logger.Logger
}

var (
	_ app.Module          = (*Module)(nil)
	_ app.PublicRouter    = (*Module)(nil)
	_ app.PrincipalRouter = (*Module)(nil)
)

// NewModule creates the users module. hooks run after the default group
// assignment for every created user.
func NewModule(hooks ...PostCreateHook) *Module {
	return &Module{hooks: hooks}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "users"
}

// Init initializes the module with dependencies.
func (m *Module) Init(deps *app.ModuleDeps) error {
	hook := ChainHooks(append([]PostCreateHook{AssignGroup(deps.Config.Tenancy.DefaultGroup)}, m.hooks...)...)
	m.repo = NewRepository(deps.DB, deps.Scoper, hook)
	m.directory = deps.Directory
	m.tokens = deps.Tokens
	m.events = deps.Events
	m.log = deps.Logger
	return nil
}

// RegisterPublicRoutes registers token issuance when bearer tokens are enabled.
func (m *Module) RegisterPublicRoutes(hr *server.HandlerRegistry, r server.RouteRegistrar) {
	if m.tokens == nil {
		return
	}
	server.POST(hr, r, "/auth/token", m.issueToken)
}

// RegisterPrincipalRoutes registers the routes any authenticated user may
// call, including users without a membership.
func (m *Module) RegisterPrincipalRoutes(hr *server.HandlerRegistry, r server.RouteRegistrar) {
	server.GET(hr, r, "/users/me", m.me)
	server.PUT(hr, r, "/users/me/active-account", m.setActiveAccount)
}

// RegisterRoutes registers the user directory on the scoped group.
func (m *Module) RegisterRoutes(hr *server.HandlerRegistry, r server.RouteRegistrar) {
	server.GET(hr, r, "/users", m.list)
	server.GET(hr, r, "/users/:id", m.get)
	server.POST(hr, r, "/users", m.create)
	server.PUT(hr, r, "/users/:id", m.update)
	server.DELETE(hr, r, "/users/:id", m.delete)
}

// Shutdown cleans up module resources.
func (m *Module) Shutdown() error {
	return nil
}

func (m *Module) list(req crud.ListRequest, hc server.HandlerContext) (crud.Page[User], server.IAPIError) {
	page, err := m.repo.List(hc.Context(), crud.ListParams{Page: req.Page, PageSize: req.PageSize})
	if err != nil {
		return crud.Page[User]{}, m.fail(hc.Context(), err)
	}
	return page, nil
}

func (m *Module) get(req crud.IDRequest, hc server.HandlerContext) (*User, server.IAPIError) {
	u, err := m.repo.Get(hc.Context(), req.ID)
	if err != nil {
		return nil, m.fail(hc.Context(), err)
	}
	return u, nil
}

func (m *Module) create(req User, hc server.HandlerContext) (server.Result[*User], server.IAPIError) {
	ctx := hc.Context()
	if err := multitenant.RequireStaff(ctx); err != nil {
		return server.Result[*User]{}, m.fail(ctx, err)
	}
	u, err := m.repo.Create(ctx, &req)
	if err != nil {
		return server.Result[*User]{}, m.fail(ctx, err)
	}
	m.emit(hc, messaging.ActionCreated, u.ID)
	return server.Created(u), nil
}

func (m *Module) update(req User, hc server.HandlerContext) (*User, server.IAPIError) {
	ctx := hc.Context()
	if err := multitenant.RequireStaff(ctx); err != nil {
		return nil, m.fail(ctx, err)
	}
	id, apiErr := hc.PathID("id")
	if apiErr != nil {
		return nil, apiErr
	}
	u, err := m.repo.Update(ctx, id, &req)
	if err != nil {
		return nil, m.fail(ctx, err)
	}
	m.emit(hc, messaging.ActionUpdated, u.ID)
	return u, nil
}

func (m *Module) delete(req crud.IDRequest, hc server.HandlerContext) (server.NoContentResult, server.IAPIError) {
	ctx := hc.Context()
	if err := multitenant.RequireStaff(ctx); err != nil {
		return server.NoContentResult{}, m.fail(ctx, err)
	}
	if err := m.repo.Delete(ctx, req.ID); err != nil {
		return server.NoContentResult{}, m.fail(ctx, err)
	}
	m.emit(hc, messaging.ActionDeleted, req.ID)
	return server.NoContent(), nil
}

// emit publishes a user event attributed to the scope's account, or to no
// account for unscoped staff.
func (m *Module) emit(hc server.HandlerContext, action string, id int64) {
	var actor, account int64
	if scope, ok := hc.Scope(); ok {
		actor = scope.Principal.ID
		account, _ = scope.TenantID()
	}
	m.events.Emit(hc.Context(), messaging.NewEvent(resource, action, account, id, actor))
}

// MeResponse describes the caller and the account their requests resolve to.
type MeResponse struct {
	ID              int64                `json:"id"`
	Username        string               `json:"username"`
	IsStaff         bool                 `json:"is_staff"`
	ActiveAccountID *int64               `json:"active_account_id"`
	Accounts        []multitenant.Tenant `json:"accounts"`
	// Tenant is the account requests are scoped to, nil when there is none.
	Tenant *multitenant.Tenant `json:"tenant"`
}

func (m *Module) me(_ struct{}, hc server.HandlerContext) (*MeResponse, server.IAPIError) {
	ctx := hc.Context()
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, server.NewUnauthorizedError("")
	}
	memberships, err := m.directory.Memberships(ctx, principal.ID)
	if err != nil {
		return nil, m.fail(ctx, err)
	}
	if memberships == nil {
		memberships = []multitenant.Tenant{}
	}
	return &MeResponse{
		ID:              principal.ID,
		Username:        principal.Username,
		IsStaff:         principal.Staff,
		ActiveAccountID: principal.PreferredTenantID,
		Accounts:        memberships,
		Tenant:          multitenant.SelectTenant(memberships, principal.PreferredTenantID),
	}, nil
}

// ActiveAccountRequest switches the caller's preferred account.
type ActiveAccountRequest struct {
	AccountID int64 `json:"account_id" validate:"required,gt=0"`
}

func (m *Module) setActiveAccount(req ActiveAccountRequest, hc server.HandlerContext) (*MeResponse, server.IAPIError) {
	ctx := hc.Context()
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, server.NewUnauthorizedError("")
	}
	if err := m.directory.SetActiveAccount(ctx, principal.ID, req.AccountID); err != nil {
		return nil, m.fail(ctx, err)
	}
	principal.PreferredTenantID = &req.AccountID
	hc.Echo.SetRequest(hc.Echo.Request().WithContext(auth.WithPrincipal(ctx, principal)))
	return m.me(struct{}{}, hc)
}

// TokenRequest exchanges credentials for a bearer token.
type TokenRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse carries a signed bearer token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (m *Module) issueToken(req TokenRequest, hc server.HandlerContext) (*TokenResponse, server.IAPIError) {
	ctx := hc.Context()
	id, hash, err := m.directory.Credentials(ctx, req.Username)
	if errors.Is(err, database.ErrNotFound) || (err == nil && hash == "") {
		return nil, server.NewUnauthorizedError("Invalid username or password")
	}
	if err != nil {
		return nil, m.fail(ctx, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return nil, server.NewUnauthorizedError("Invalid username or password")
	}

	token, expires, err := m.tokens.IssueToken(id)
	if err != nil {
		return nil, m.fail(ctx, err)
	}
	return &TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expires}, nil
}

func (m *Module) fail(ctx context.Context, err error) server.IAPIError {
	apiErr := server.FromError(err, resource)
	if apiErr.HTTPStatus() >= 500 {
		m.log.WithContext(ctx).Error().Err(err).Str("resource", resource).Msg("Request failed")
	}
	return apiErr
}
