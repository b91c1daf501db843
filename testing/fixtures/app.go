// Package fixtures builds a fully wired application over go-sqlmock so module
// tests exercise the real middleware chain: authentication, tenant
// resolution, scoped queries and the response envelope.
package fixtures

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nephrolytics/practice-api/app"
	"github.com/nephrolytics/practice-api/config"
	"github.com/nephrolytics/practice-api/database/postgresql"
	"github.com/nephrolytics/practice-api/logger"
	"github.com/nephrolytics/practice-api/server"
	"github.com/nephrolytics/practice-api/testing/mocks"
)

// UserHeader carries the caller's user id in tests.
const UserHeader = "X-User-ID"

// Anonymous sends a request without credentials.
const Anonymous int64 = 0

var (
	principalQuery  = regexp.QuoteMeta("SELECT id, username, is_staff, active_account_id FROM users WHERE id = $1")
	membershipQuery = regexp.QuoteMeta("SELECT a.id, a.name, a.domain, a.subdomain FROM accounts a " +
		"JOIN account_users au ON au.account_id = a.id WHERE au.user_id = $1 ORDER BY a.id")
)

// Config returns a production-mode configuration using header authentication.
func Config() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "practice-api-test", Env: config.EnvProduction},
		Server: config.ServerConfig{
			Path: config.PathConfig{Base: "/api", Health: "/health", Ready: "/ready"},
		},
		Auth:    config.AuthConfig{Mode: config.AuthModeHeader, Header: UserHeader},
		Tenancy: config.TenancyConfig{DefaultGroup: "GoogleUsers", StaffBypass: true},
	}
}

// Harness is an application wired to a sqlmock database and a mock publisher.
type Harness struct {
	App       *app.App
	Mock      sqlmock.Sqlmock
	Publisher *mocks.MockPublisher

	t *testing.T
}

// NewHarness builds the application with modules registered. Unmet SQL
// expectations fail the test at cleanup.
func NewHarness(t *testing.T, modules ...app.Module) *Harness {
	t.Helper()
	return NewHarnessWithConfig(t, Config(), modules...)
}

// NewHarnessWithConfig is NewHarness with an explicit configuration.
func NewHarnessWithConfig(t *testing.T, cfg *config.Config, modules ...app.Module) *Harness {
	t.Helper()

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)

	pub := mocks.NewMockPublisher()
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	pub.On("Close").Return(nil).Maybe()

	a, err := app.NewWithOptions(context.Background(), cfg, logger.Nop(), &app.Options{
		Database:  postgresql.Wrap(db, logger.Nop()),
		Publisher: pub,
	})
	require.NoError(t, err)
	require.NoError(t, a.RegisterModules(modules...))

	t.Cleanup(func() {
		assert.NoError(t, sqlMock.ExpectationsWereMet())
		_ = db.Close()
	})

	return &Harness{App: a, Mock: sqlMock, Publisher: pub, t: t}
}

// ExpectPrincipal expects the authentication lookup of user id.
func (h *Harness) ExpectPrincipal(id int64, staff bool, preferred *int64) {
	var active any
	if preferred != nil {
		active = *preferred
	}
	h.Mock.ExpectQuery(principalQuery).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "is_staff", "active_account_id"}).
			AddRow(id, "user"+strconv.FormatInt(id, 10), staff, active))
}

// ExpectMemberships expects the membership lookup of user id returning accounts in order.
func (h *Harness) ExpectMemberships(userID int64, accountIDs ...int64) {
	rows := sqlmock.NewRows([]string{"id", "name", "domain", "subdomain"})
	for _, id := range accountIDs {
		sub := "account" + strconv.FormatInt(id, 10)
		rows.AddRow(id, "Account "+strconv.FormatInt(id, 10), sub+".example.com", sub)
	}
	h.Mock.ExpectQuery(membershipQuery).WithArgs(userID).WillReturnRows(rows)
}

// ExpectScope expects authentication and tenant resolution of a scoped request.
func (h *Harness) ExpectScope(userID int64, staff bool, preferred *int64, accountIDs ...int64) {
	h.ExpectPrincipal(userID, staff, preferred)
	h.ExpectMemberships(userID, accountIDs...)
}

// Do sends a request as userID. body, when not nil, is encoded as JSON.
func (h *Harness) Do(method, path string, userID int64, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	return Serve(h.t, h.App.Handler(), method, path, userID, body)
}

// Serve sends a request as userID to handler using the header authentication
// of Config.
func Serve(t *testing.T, handler http.Handler, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload := bytes.NewReader(nil)
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != Anonymous {
		req.Header.Set(UserHeader, strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// Data decodes the data member of a success envelope.
func Data[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Data
}

// Error decodes the error member of an error envelope.
func Error(t *testing.T, rec *httptest.ResponseRecorder) server.APIErrorResponse {
	t.Helper()
	var envelope server.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	require.NotNil(t, envelope.Error, rec.Body.String())
	return *envelope.Error
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
