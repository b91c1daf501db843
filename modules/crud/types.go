// Package crud implements tenant-scoped list/get/create/update/delete for
// entities described by a Schema. Every statement goes through
// database.Scoper, so a request only ever sees rows of its own account.
package crud

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nephrolytics/practice-api/database"
)

// Pagination bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps the row offset well inside PostgreSQL's bigint range.
	MaxPage = 1_000_000
)

// DateLayout is the wire and storage layout of Date.
const DateLayout = "2006-01-02"

// Meta holds the columns every tenant-owned record shares.
type Meta struct {
	ID int64 `json:"id"`
	// AccountID is the owning account. Staff without an active account set it on create.
	AccountID *int64 `json:"account_id,omitempty"`
}

// RecordMeta returns m. Entities embed Meta to satisfy Record.
func (m *Meta) RecordMeta() *Meta { return m }

// Record is satisfied by pointers to entity structs that embed Meta.
type Record[T any] interface {
	*T
	RecordMeta() *Meta
}

// Reference is a single foreign key that must point into the owning account.
type Reference[T any] struct {
	// Name is the JSON field reported in errors.
	Name   string
	Target database.Table
	// ID returns the referenced id, or nil when the reference is unset.
	ID func(*T) *int64
}

// Link is a many-to-many association stored in a join table.
type Link[T any] struct {
	// Name is the JSON field reported in errors.
	Name         string
	Table        string
	OwnerColumn  string
	TargetColumn string
	Target       database.Table
	// IDs returns the slice holding linked ids. A nil slice on update leaves links unchanged.
	IDs func(*T) *[]int64
}

// Schema describes how an entity maps onto its table.
type Schema[T any] struct {
	// Resource is the singular entity name used in errors and event types.
	Resource string
	Table    database.Table
	// Columns are the writable data columns, aligned with Fields.
	Columns []string
	// Fields returns pointers to the data fields of v in Columns order.
	Fields     func(v *T) []any
	References []Reference[T]
	Links      []Link[T]
	// Filters are id columns that list requests may filter on by query parameter.
	Filters []string
}

func (s Schema[T]) ownerColumn() string {
	if s.Table.TenantColumn != "" {
		return s.Table.TenantColumn
	}
	return database.DefaultTenantColumn
}

func (s Schema[T]) qualify(column string) string {
	return s.Table.Name + "." + column
}

func (s Schema[T]) selectColumns() []string {
	cols := make([]string, 0, len(s.Columns)+2)
	cols = append(cols, s.qualify("id"), s.qualify(s.ownerColumn()))
	for _, c := range s.Columns {
		cols = append(cols, s.qualify(c))
	}
	return cols
}

// ListParams selects one page of a list, optionally filtered by id columns.
type ListParams struct {
	Page     int
	PageSize int
	Filters  map[string]int64
}

// Normalized applies the default page and clamps the page and page size.
// A page past MaxPage is read as MaxPage, which is empty for any real table.
func (p ListParams) Normalized() ListParams {
	switch {
	case p.Page < 1:
		p.Page = 1
	case p.Page > MaxPage:
		p.Page = MaxPage
	}
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset is the number of rows skipped before the page. Call it on
// normalized params.
func (p ListParams) Offset() uint64 {
	return uint64(p.Page-1) * uint64(p.PageSize)
}

// Page is one page of results with the total match count.
type Page[T any] struct {
	Count   int64 `json:"count"`
	Results []T   `json:"results"`
}

// Date is a calendar date without time of day.
type Date struct {
	time.Time
}

// NewDate returns the given day at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts "2006-01-02" or an RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v.Year(), v.Month(), v.Day())
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}
