package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nephrolytics/practice-api/config"
	"github.com/nephrolytics/practice-api/database/postgresql"
	"github.com/nephrolytics/practice-api/logger"
	"github.com/nephrolytics/practice-api/messaging"
	"github.com/nephrolytics/practice-api/multitenant"
	"github.com/nephrolytics/practice-api/observability"
	"github.com/nephrolytics/practice-api/server"
)

const testUserHeader = "X-User-ID"

type recordingPublisher struct {
	messaging.NopPublisher
	closed bool
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

type testModule struct {
	name     string
	deps     *ModuleDeps
	initErr  error
	shutdown func(name string)
}

func (m *testModule) Name() string { return m.name }

func (m *testModule) Init(deps *ModuleDeps) error {
	m.deps = deps
	return m.initErr
}

func (m *testModule) RegisterPublicRoutes(_ *server.HandlerRegistry, r server.RouteRegistrar) {
	r.Add(http.MethodGet, "/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})
}

func (m *testModule) RegisterPrincipalRoutes(_ *server.HandlerRegistry, r server.RouteRegistrar) {
	r.Add(http.MethodGet, "/whoami", func(c echo.Context) error {
		_, scoped := multitenant.ScopeFromContext(c.Request().Context())
		return c.JSON(http.StatusOK, map[string]bool{"scoped": scoped})
	})
}

func (m *testModule) RegisterRoutes(_ *server.HandlerRegistry, r server.RouteRegistrar) {
	r.Add(http.MethodGet, "/tenant", func(c echo.Context) error {
		tenant, ok := multitenant.TenantFromContext(c.Request().Context())
		if !ok {
			return c.String(http.StatusOK, "none")
		}
		return c.String(http.StatusOK, strconv.FormatInt(tenant.ID, 10))
	})
}

func (m *testModule) Shutdown() error {
	if m.shutdown != nil {
		m.shutdown(m.name)
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "practice-api-test", Env: config.EnvProduction},
		Server: config.ServerConfig{
			Host:    "127.0.0.1",
			Port:    0,
			Timeout: config.TimeoutConfig{Shutdown: time.Second},
			Path:    config.PathConfig{Base: "/api", Health: "/health", Ready: "/ready"},
		},
		Auth:    config.AuthConfig{Mode: config.AuthModeHeader, Header: testUserHeader},
		Tenancy: config.TenancyConfig{StaffBypass: true},
	}
}

func newTestApp(t *testing.T) (*App, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	pub := &recordingPublisher{}
	a, err := NewWithOptions(context.Background(), testConfig(), logger.Nop(), &Options{
		Database:  postgresql.Wrap(db, logger.Nop()),
		Publisher: pub,
	})
	require.NoError(t, err)
	return a, mock, pub
}

func expectPrincipal(mock sqlmock.Sqlmock, id int64, staff bool) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, is_staff, active_account_id FROM users WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "is_staff", "active_account_id"}).
			AddRow(id, "user"+strconv.FormatInt(id, 10), staff, nil))
}

func expectMemberships(mock sqlmock.Sqlmock, userID int64, accounts ...int64) {
	rows := sqlmock.NewRows([]string{"id", "name", "domain", "subdomain"})
	for _, id := range accounts {
		rows.AddRow(id, "Account", "example.com", "acct")
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts a JOIN account_users au")).
		WithArgs(userID).
		WillReturnRows(rows)
}

func serve(a *App, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRouteTiers(t *testing.T) {
	a, mock, _ := newTestApp(t)
	require.NoError(t, a.RegisterModules(&testModule{name: "probe"}))

	rec := serve(a, "/api/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(a, "/api/whoami", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(a, "/api/tenant", "").Code)

	// A principal without memberships reaches principal routes but not scoped ones.
	expectPrincipal(mock, 7, false)
	rec = serve(a, "/api/whoami", "7")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"scoped":false}`, rec.Body.String())

	expectPrincipal(mock, 7, false)
	expectMemberships(mock, 7)
	rec = serve(a, "/api/tenant", "7")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenancy_invalid")

	expectPrincipal(mock, 8, false)
	expectMemberships(mock, 8, 3, 5)
	rec = serve(a, "/api/tenant", "8")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Body.String())

	expectPrincipal(mock, 9, true)
	expectMemberships(mock, 9)
	rec = serve(a, "/api/tenant", "9")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "none", rec.Body.String())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleDepsWired(t *testing.T) {
	a, _, _ := newTestApp(t)
	m := &testModule{name: "deps"}
	require.NoError(t, a.RegisterModules(m))

	require.NotNil(t, m.deps)
	assert.NotNil(t, m.deps.DB)
	assert.NotNil(t, m.deps.Scoper)
	assert.NotNil(t, m.deps.Events)
	assert.NotNil(t, m.deps.Directory)
	assert.Nil(t, m.deps.Tokens, "header authentication issues no tokens")
}

func TestRegisterModulesInitFailure(t *testing.T) {
	a, _, _ := newTestApp(t)
	err := a.RegisterModules(&testModule{name: "broken", initErr: errors.New("boom")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Empty(t, a.registry.Modules())
}

func TestReadyReportsDatabase(t *testing.T) {
	a, _, _ := newTestApp(t)
	rec := serve(a, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "database")
}

func TestShutdownOrderAndIdempotence(t *testing.T) {
	a, mock, pub := newTestApp(t)

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, name)
	}
	require.NoError(t, a.RegisterModules(
		&testModule{name: "first", shutdown: record},
		&testModule{name: "second", shutdown: record},
	))
	mock.ExpectClose()

	require.NoError(t, a.Shutdown(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))

	assert.Equal(t, []string{"second", "first"}, order)
	assert.True(t, pub.closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	a, mock, pub := newTestApp(t)
	var stopped []string
	require.NoError(t, a.RegisterModules(&testModule{name: "probe", shutdown: func(n string) { stopped = append(stopped, n) }}))
	mock.ExpectClose()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, []string{"probe"}, stopped)
	assert.True(t, pub.closed)
}

func TestNewWithInjectedTracing(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := testConfig()
	tp, err := observability.NewProvider(context.Background(), &cfg.Observability, &cfg.App, logger.Nop())
	require.NoError(t, err)

	a, err := NewWithOptions(context.Background(), cfg, logger.Nop(), &Options{
		Database: postgresql.Wrap(db, logger.Nop()),
		Tracing:  tp,
	})
	require.NoError(t, err)
	assert.IsType(t, messaging.NopPublisher{}, a.publisher)
}
