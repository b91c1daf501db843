package accounts_test

import (
	"net/http"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nephrolytics/practice-api/modules/accounts"
	"github.com/nephrolytics/practice-api/modules/crud"
	"github.com/nephrolytics/practice-api/testing/fixtures"
)

var accountColumns = []string{"id", "name", "domain", "subdomain"}

func newAccount() map[string]any {
	return map[string]any{"name": "East Clinic", "domain": "east.example.com", "subdomain": "east"}
}

func TestListShowsOnlyTheScopedAccount(t *testing.T) {
	h := fixtures.NewHarness(t, accounts.NewModule())
	h.ExpectScope(5, false, nil, 3, 4)
	h.Mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM accounts WHERE accounts.id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	h.Mock.ExpectQuery(regexp.QuoteMeta("SELECT accounts.id, accounts.name, accounts.domain, accounts.subdomain FROM accounts WHERE accounts.id = $1 ORDER BY accounts.id LIMIT 20 OFFSET 0")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(3, "North Clinic", "north.example.com", "north"))

	rec := h.Do(http.MethodGet, "/api/accounts", 5, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := fixtures.Data[crud.Page[accounts.Account]](t, rec)
	assert.Equal(t, int64(1), page.Count)
	assert.Equal(t, "north", page.Results[0].Subdomain)
}

func TestGetForeignAccountIsNotFound(t *testing.T) {
	h := fixtures.NewHarness(t, accounts.NewModule())
	h.ExpectScope(5, false, nil, 3)
	h.Mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE accounts.id = $1 AND accounts.id = $2")).
		WithArgs(int64(3), int64(4)).
		WillReturnRows(sqlmock.NewRows(accountColumns))

	rec := h.Do(http.MethodGet, "/api/accounts/4", 5, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRequiresStaff(t *testing.T) {
	h := fixtures.NewHarness(t, accounts.NewModule())
	h.ExpectScope(5, false, nil, 3)

	rec := h.Do(http.MethodPost, "/api/accounts", 5, newAccount())
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", fixtures.Error(t, rec).Code)
	assert.Empty(t, h.Publisher.Events())
}

func TestStaffCreateEmitsEvent(t *testing.T) {
	h := fixtures.NewHarness(t, accounts.NewModule())
	h.ExpectScope(1, true, nil)
	h.Mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts (name,domain,subdomain) VALUES ($1,$2,$3) RETURNING id")).
		WithArgs("East Clinic", "east.example.com", "east").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	rec := h.Do(http.MethodPost, "/api/accounts", 1, newAccount())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(9), fixtures.Data[accounts.Account](t, rec).ID)

	require.Equal(t, []string{"account.created"}, h.Publisher.EventTypes())
	event := h.Publisher.Events()[0]
	assert.Equal(t, int64(9), event.AccountID)
	assert.Equal(t, int64(1), event.ActorID)
}

func TestCreateValidatesSubdomain(t *testing.T) {
	h := fixtures.NewHarness(t, accounts.NewModule())
	h.ExpectScope(1, true, nil)

	body := newAccount()
	body["subdomain"] = "Not A Label"
	rec := h.Do(http.MethodPost, "/api/accounts", 1, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateForeignAccountIsNotFound(t *testing.T) {
	h := fixtures.NewHarness(t, accounts.NewModule())
	h.ExpectScope(5, false, nil, 3)
	h.Mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET name = $1, domain = $2, subdomain = $3, updated_at = NOW() WHERE accounts.id = $4 AND accounts.id = $5")).
		WithArgs("East Clinic", "east.example.com", "east", int64(3), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := h.Do(http.MethodPut, "/api/accounts/4", 5, newAccount())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, h.Publisher.Events())
}
