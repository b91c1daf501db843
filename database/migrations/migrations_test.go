package migrations

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	createTable = regexp.MustCompile(`(?s)CREATE TABLE (\w+) \((.*?)\n\);`)
	ownerColumn = regexp.MustCompile(`account_id\s+BIGINT\s+NOT NULL REFERENCES accounts \(id\) ON DELETE CASCADE`)
)

func embeddedSQL(t *testing.T) map[string]string {
	t.Helper()
	entries, err := fs.ReadDir(files, dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		b, err := fs.ReadFile(files, dir+"/"+e.Name())
		require.NoError(t, err)
		out[e.Name()] = string(b)
	}
	return out
}

func TestMigrationsAreGooseAnnotated(t *testing.T) {
	for name, body := range embeddedSQL(t) {
		assert.True(t, strings.HasPrefix(body, "-- +goose Up"), name)
		assert.Contains(t, body, "-- +goose Down", name)
	}
}

func TestEntityTablesCarryOwningAccount(t *testing.T) {
	unowned := map[string]bool{
		"accounts": true, "users": true, "account_users": true, "groups": true, "user_groups": true,
		"practitioner_practices": true, "patient_practices": true, "payer_practices": true,
	}

	seen := 0
	for _, body := range embeddedSQL(t) {
		for _, m := range createTable.FindAllStringSubmatch(body, -1) {
			table, columns := m[1], m[2]
			if unowned[table] {
				continue
			}
			seen++
			assert.Regexp(t, ownerColumn, columns, "table %s", table)
		}
	}
	assert.Equal(t, 7, seen)
}
