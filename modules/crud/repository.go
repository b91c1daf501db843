package crud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/Masterminds/squirrel"

	"github.com/nephrolytics/practice-api/database"
)

// Repository stores one entity type. Reads and writes are restricted to the
// scope bound on the context; references are checked inside the owning account.
type Repository[T any, P Record[T]] struct {
	db      database.Interface
	scoper  *database.Scoper
	builder squirrel.StatementBuilderType
	schema  Schema[T]
}

// NewRepository creates a repository for schema.
func NewRepository[T any, P Record[T]](db database.Interface, scoper *database.Scoper, schema Schema[T]) *Repository[T, P] {
	return &Repository[T, P]{
		db:      db,
		scoper:  scoper,
		builder: database.Builder(),
		schema:  schema,
	}
}

// Schema returns the schema the repository was built with.
func (r *Repository[T, P]) Schema() Schema[T] {
	return r.schema
}

// List returns one page of visible rows ordered by id.
func (r *Repository[T, P]) List(ctx context.Context, params ListParams) (Page[T], error) {
	params = params.Normalized()
	where, err := r.filters(params.Filters)
	if err != nil {
		return Page[T]{}, err
	}

	countQ, err := r.scoper.Select(ctx, r.schema.Table, "COUNT(*)")
	if err != nil {
		return Page[T]{}, err
	}
	if len(where) > 0 {
		countQ = countQ.Where(where)
	}
	query, args, err := countQ.ToSql()
	if err != nil {
		return Page[T]{}, err
	}
	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return Page[T]{}, fmt.Errorf("count %s: %w", r.schema.Table.Name, err)
	}

	page := Page[T]{Count: count, Results: []T{}}
	if count == 0 {
		return page, nil
	}

	q, err := r.scoper.Select(ctx, r.schema.Table, r.schema.selectColumns()...)
	if err != nil {
		return Page[T]{}, err
	}
	if len(where) > 0 {
		q = q.Where(where)
	}
	q = q.OrderBy(r.schema.qualify("id")).
		Limit(uint64(params.PageSize)).
		Offset(params.Offset())

	items, err := r.query(ctx, r.db, q)
	if err != nil {
		return Page[T]{}, err
	}
	if err := r.loadLinks(ctx, items); err != nil {
		return Page[T]{}, err
	}
	page.Results = items
	return page, nil
}

// Get returns the row with id, or database.ErrNotFound when it does not
// exist or belongs to another account.
func (r *Repository[T, P]) Get(ctx context.Context, id int64) (*T, error) {
	q, err := r.scoper.Select(ctx, r.schema.Table, r.schema.selectColumns()...)
	if err != nil {
		return nil, err
	}
	items, err := r.query(ctx, r.db, q.Where(squirrel.Eq{r.schema.qualify("id"): id}))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s %d: %w", r.schema.Resource, id, database.ErrNotFound)
	}
	if err := r.loadLinks(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// Create inserts v into the scope's account, or into v's account_id for
// unscoped staff, and returns it with id and owner set.
func (r *Repository[T, P]) Create(ctx context.Context, v *T) (*T, error) {
	meta := P(v).RecordMeta()
	owner, err := r.scoper.Owner(ctx, meta.AccountID)
	if err != nil {
		return nil, err
	}

	var id int64
	err = database.WithTx(ctx, r.db, func(tx database.Tx) error {
		if err := r.checkReferences(ctx, tx, owner, v); err != nil {
			return err
		}

		columns := append([]string{r.schema.ownerColumn()}, r.schema.Columns...)
		values := append([]any{owner}, fieldValues(r.schema.Fields(v))...)
		query, args, err := r.scoper.Insert(r.schema.Table.Name).
			Columns(columns...).
			Values(values...).
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			return fmt.Errorf("insert %s: %w", r.schema.Table.Name, database.Classify(err))
		}
		return r.writeLinks(ctx, tx, id, v, false)
	})
	if err != nil {
		return nil, err
	}

	meta.ID = id
	meta.AccountID = &owner
	r.normalizeLinks(v)
	return v, nil
}

// Update replaces the data columns of the visible row id and returns the
// stored row. Links whose slice is nil are left unchanged. The owner never changes.
func (r *Repository[T, P]) Update(ctx context.Context, id int64, v *T) (*T, error) {
	meta := P(v).RecordMeta()

	var owner int64
	err := database.WithTx(ctx, r.db, func(tx database.Tx) error {
		sel, err := r.scoper.Select(ctx, r.schema.Table, r.schema.qualify(r.schema.ownerColumn()))
		if err != nil {
			return err
		}
		query, args, err := sel.Where(squirrel.Eq{r.schema.qualify("id"): id}).Suffix("FOR UPDATE").ToSql()
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, query, args...).Scan(&owner); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%s %d: %w", r.schema.Resource, id, database.ErrNotFound)
			}
			return err
		}
		if meta.AccountID != nil && *meta.AccountID != owner {
			return fmt.Errorf("account_id: %w", database.ErrInvalidReference)
		}
		if err := r.checkReferences(ctx, tx, owner, v); err != nil {
			return err
		}

		upd, err := r.scoper.Update(ctx, r.schema.Table)
		if err != nil {
			return err
		}
		values := fieldValues(r.schema.Fields(v))
		for i, col := range r.schema.Columns {
			upd = upd.Set(col, values[i])
		}
		upd = upd.Set("updated_at", squirrel.Expr("NOW()")).
			Where(squirrel.Eq{r.schema.qualify("id"): id})
		if _, err := database.Exec(ctx, tx, upd); err != nil {
			return fmt.Errorf("update %s: %w", r.schema.Table.Name, database.Classify(err))
		}
		return r.writeLinks(ctx, tx, id, v, true)
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Delete removes the visible row id and returns its owning account.
func (r *Repository[T, P]) Delete(ctx context.Context, id int64) (int64, error) {
	del, err := r.scoper.Delete(ctx, r.schema.Table)
	if err != nil {
		return 0, err
	}
	query, args, err := del.Where(squirrel.Eq{r.schema.qualify("id"): id}).
		Suffix("RETURNING " + r.schema.ownerColumn()).
		ToSql()
	if err != nil {
		return 0, err
	}
	var owner int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%s %d: %w", r.schema.Resource, id, database.ErrNotFound)
		}
		return 0, fmt.Errorf("delete %s: %w", r.schema.Table.Name, err)
	}
	return owner, nil
}

func (r *Repository[T, P]) filters(values map[string]int64) (squirrel.Eq, error) {
	where := squirrel.Eq{}
	for col, v := range values {
		if !slices.Contains(r.schema.Filters, col) {
			return nil, fmt.Errorf("unknown filter %q", col)
		}
		where[r.schema.qualify(col)] = v
	}
	return where, nil
}

func (r *Repository[T, P]) query(ctx context.Context, q database.Querier, stmt squirrel.SelectBuilder) ([]T, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", r.schema.Table.Name, err)
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		var v T
		meta := P(&v).RecordMeta()
		dest := append([]any{&meta.ID, &meta.AccountID}, r.schema.Fields(&v)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.schema.Table.Name, err)
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// checkReferences verifies every reference and link of v points at a row of owner.
func (r *Repository[T, P]) checkReferences(ctx context.Context, q database.Querier, owner int64, v *T) error {
	for _, ref := range r.schema.References {
		id := ref.ID(v)
		if id == nil {
			continue
		}
		if err := r.checkOwned(ctx, q, ref.Target, owner, []int64{*id}); err != nil {
			return fmt.Errorf("%s %d: %w", ref.Name, *id, err)
		}
	}
	for _, link := range r.schema.Links {
		ids := link.IDs(v)
		if len(*ids) == 0 {
			continue
		}
		if err := r.checkOwned(ctx, q, link.Target, owner, uniqueIDs(*ids)); err != nil {
			return fmt.Errorf("%s: %w", link.Name, err)
		}
	}
	return nil
}

func (r *Repository[T, P]) checkOwned(ctx context.Context, q database.Querier, target database.Table, owner int64, ids []int64) error {
	query, args, err := r.builder.Select("COUNT(*)").
		From(target.Name).
		Where(target.Predicate(owner)).
		Where(squirrel.Eq{target.Name + ".id": ids}).
		ToSql()
	if err != nil {
		return err
	}
	var found int
	if err := q.QueryRow(ctx, query, args...).Scan(&found); err != nil {
		return err
	}
	if found != len(ids) {
		return database.ErrInvalidReference
	}
	return nil
}

// writeLinks stores link rows for id. On update existing rows are replaced
// only for links present in v.
func (r *Repository[T, P]) writeLinks(ctx context.Context, tx database.Tx, id int64, v *T, replace bool) error {
	for _, link := range r.schema.Links {
		ids := *link.IDs(v)
		if replace {
			if ids == nil {
				continue
			}
			del := r.builder.Delete(link.Table).Where(squirrel.Eq{link.OwnerColumn: id})
			if _, err := database.Exec(ctx, tx, del); err != nil {
				return fmt.Errorf("clear %s: %w", link.Table, err)
			}
		}
		ids = uniqueIDs(ids)
		if len(ids) == 0 {
			continue
		}
		ins := r.builder.Insert(link.Table).Columns(link.OwnerColumn, link.TargetColumn)
		for _, target := range ids {
			ins = ins.Values(id, target)
		}
		if _, err := database.Exec(ctx, tx, ins); err != nil {
			return fmt.Errorf("link %s: %w", link.Table, err)
		}
	}
	return nil
}

// loadLinks fills link slices for items with one query per link.
func (r *Repository[T, P]) loadLinks(ctx context.Context, items []T) error {
	if len(r.schema.Links) == 0 || len(items) == 0 {
		return nil
	}
	ids := make([]int64, len(items))
	for i := range items {
		ids[i] = P(&items[i]).RecordMeta().ID
	}

	for _, link := range r.schema.Links {
		query, args, err := r.builder.Select(link.OwnerColumn, link.TargetColumn).
			From(link.Table).
			Where(squirrel.Eq{link.OwnerColumn: ids}).
			OrderBy(link.OwnerColumn, link.TargetColumn).
			ToSql()
		if err != nil {
			return err
		}
		byOwner, err := r.linkRows(ctx, query, args)
		if err != nil {
			return fmt.Errorf("load %s: %w", link.Table, err)
		}
		for i := range items {
			targets := byOwner[P(&items[i]).RecordMeta().ID]
			if targets == nil {
				targets = []int64{}
			}
			*link.IDs(&items[i]) = targets
		}
	}
	return nil
}

func (r *Repository[T, P]) linkRows(ctx context.Context, query string, args []any) (map[int64][]int64, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byOwner := make(map[int64][]int64)
	for rows.Next() {
		var owner, target int64
		if err := rows.Scan(&owner, &target); err != nil {
			return nil, err
		}
		byOwner[owner] = append(byOwner[owner], target)
	}
	return byOwner, rows.Err()
}

func (r *Repository[T, P]) normalizeLinks(v *T) {
	for _, link := range r.schema.Links {
		ids := link.IDs(v)
		*ids = uniqueIDs(*ids)
	}
}

// uniqueIDs returns ids sorted without duplicates, never nil.
func uniqueIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	if out == nil {
		out = []int64{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// fieldValues dereferences field pointers into statement arguments.
func fieldValues(ptrs []any) []any {
	values := make([]any, len(ptrs))
	for i, p := range ptrs {
		values[i] = reflect.ValueOf(p).Elem().Interface()
	}
	return values
}
