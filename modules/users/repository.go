// Package users serves the user directory of an account, the caller's own
// profile and, with bearer authentication, token issuance.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/Masterminds/squirrel"
	"golang.org/x/crypto/bcrypt"

	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/modules/accounts"
	"github.com/nephrolytics/practice-api/modules/crud"
)

// Table scopes users by membership: a user is visible in every account it belongs to.
var Table = database.Table{
	Name: "users",
	Filter: func(tenantID int64) squirrel.Sqlizer {
		return squirrel.Expr(
			"EXISTS (SELECT 1 FROM account_users au WHERE au.user_id = users.id AND au.account_id = ?)",
			tenantID,
		)
	},
}

var columns = []string{"users.id", "users.username", "users.email", "users.is_staff", "users.active_account_id"}

// User is a login of the practice API.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username" validate:"required,max=150"`
	Email    string `json:"email" validate:"omitempty,email"`
	// Password is write-only. An empty password on update keeps the current one.
	Password        string   `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
	IsStaff         bool     `json:"is_staff"`
	ActiveAccountID *int64   `json:"active_account_id"`
	Accounts        []int64  `json:"accounts"`
	Groups          []string `json:"groups"`
}

// Repository stores users and their account memberships.
type Repository struct {
	db      database.Interface
	scoper  *database.Scoper
	builder squirrel.StatementBuilderType
	hook    PostCreateHook
	cost    int
}

// NewRepository creates a user repository. hook runs inside the transaction
// creating each user and may be nil.
func NewRepository(db database.Interface, scoper *database.Scoper, hook PostCreateHook) *Repository {
	return &Repository{
		db:      db,
		scoper:  scoper,
		builder: database.Builder(),
		hook:    hook,
		cost:    bcrypt.DefaultCost,
	}
}

// List returns one page of visible users ordered by id.
func (r *Repository) List(ctx context.Context, params crud.ListParams) (crud.Page[User], error) {
	params = params.Normalized()

	countQ, err := r.scoper.Select(ctx, Table, "COUNT(*)")
	if err != nil {
		return crud.Page[User]{}, err
	}
	query, args, err := countQ.ToSql()
	if err != nil {
		return crud.Page[User]{}, err
	}
	page := crud.Page[User]{Results: []User{}}
	if err := r.db.QueryRow(ctx, query, args...).Scan(&page.Count); err != nil {
		return crud.Page[User]{}, fmt.Errorf("count users: %w", err)
	}
	if page.Count == 0 {
		return page, nil
	}

	q, err := r.scoper.Select(ctx, Table, columns...)
	if err != nil {
		return crud.Page[User]{}, err
	}
	q = q.OrderBy("users.id").
		Limit(uint64(params.PageSize)).
		Offset(params.Offset())
	items, err := r.query(ctx, q)
	if err != nil {
		return crud.Page[User]{}, err
	}
	if err := r.loadRelations(ctx, items); err != nil {
		return crud.Page[User]{}, err
	}
	page.Results = items
	return page, nil
}

// Get returns the visible user id, or database.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (*User, error) {
	q, err := r.scoper.Select(ctx, Table, columns...)
	if err != nil {
		return nil, err
	}
	return r.first(ctx, q, id)
}

// reload reads user id after a committed write. The write already checked
// visibility, and a scoped write may have moved the user out of the scope's
// account, so the row is read by id alone. Memberships stay limited to the
// scope.
func (r *Repository) reload(ctx context.Context, id int64) (*User, error) {
	return r.first(ctx, r.builder.Select(columns...).From(Table.Name), id)
}

func (r *Repository) first(ctx context.Context, q squirrel.SelectBuilder, id int64) (*User, error) {
	items, err := r.query(ctx, q.Where(squirrel.Eq{"users.id": id}))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("user %d: %w", id, database.ErrNotFound)
	}
	if err := r.loadRelations(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// Create inserts u with its memberships and runs the post-create hook. A
// scoped request without accounts makes the user a member of the scope's
// account.
func (r *Repository) Create(ctx context.Context, u *User) (*User, error) {
	scope, err := r.scoper.Scope(ctx)
	if err != nil {
		return nil, err
	}
	memberships := uniqueIDs(u.Accounts)
	if tenantID, ok := scope.TenantID(); ok && len(memberships) == 0 {
		memberships = []int64{tenantID}
	}
	if u.ActiveAccountID != nil && !slices.Contains(memberships, *u.ActiveAccountID) {
		return nil, fmt.Errorf("active_account_id %d: %w", *u.ActiveAccountID, database.ErrInvalidReference)
	}
	hash, err := r.hashPassword(u.Password)
	if err != nil {
		return nil, err
	}

	var id int64
	err = database.WithTx(ctx, r.db, func(tx database.Tx) error {
		if err := r.checkAccounts(ctx, tx, memberships); err != nil {
			return err
		}
		query, args, err := r.builder.Insert(Table.Name).
			Columns("username", "email", "password_hash", "is_staff", "active_account_id").
			Values(u.Username, u.Email, hash, u.IsStaff, u.ActiveAccountID).
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			return fmt.Errorf("insert user: %w", database.Classify(err))
		}
		if err := r.addMemberships(ctx, tx, id, memberships); err != nil {
			return err
		}
		if r.hook == nil {
			return nil
		}
		created := *u
		created.ID = id
		created.Password = ""
		created.Accounts = memberships
		return r.hook(ctx, tx, &created)
	})
	if err != nil {
		return nil, err
	}
	return r.reload(ctx, id)
}

// Update replaces the profile of the visible user id. Accounts, when not nil,
// replace the memberships visible to the request; memberships in accounts
// outside the scope are kept.
func (r *Repository) Update(ctx context.Context, id int64, u *User) (*User, error) {
	hash, err := r.hashPassword(u.Password)
	if err != nil {
		return nil, err
	}

	err = database.WithTx(ctx, r.db, func(tx database.Tx) error {
		sel, err := r.scoper.Select(ctx, Table, "users.id")
		if err != nil {
			return err
		}
		query, args, err := sel.Where(squirrel.Eq{"users.id": id}).Suffix("FOR UPDATE").ToSql()
		if err != nil {
			return err
		}
		var locked int64
		if err := tx.QueryRow(ctx, query, args...).Scan(&locked); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("user %d: %w", id, database.ErrNotFound)
			}
			return err
		}

		if u.Accounts != nil {
			memberships := uniqueIDs(u.Accounts)
			if err := r.checkAccounts(ctx, tx, memberships); err != nil {
				return err
			}
			if err := r.clearMemberships(ctx, tx, id); err != nil {
				return err
			}
			if err := r.addMemberships(ctx, tx, id, memberships); err != nil {
				return err
			}
		}
		if u.ActiveAccountID != nil {
			if err := r.checkMember(ctx, tx, id, *u.ActiveAccountID); err != nil {
				return err
			}
		}

		upd := r.builder.Update(Table.Name).
			Set("username", u.Username).
			Set("email", u.Email).
			Set("is_staff", u.IsStaff).
			Set("active_account_id", u.ActiveAccountID).
			Set("updated_at", squirrel.Expr("NOW()"))
		if hash != "" {
			upd = upd.Set("password_hash", hash)
		}
		if _, err := database.Exec(ctx, tx, upd.Where(squirrel.Eq{"id": id})); err != nil {
			return fmt.Errorf("update user %d: %w", id, database.Classify(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.reload(ctx, id)
}

// Delete removes the visible user id. Unscoped staff delete the user row; a
// scoped request only removes the membership in its account, and the user
// keeps every other membership.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	scope, err := r.scoper.Scope(ctx)
	if err != nil {
		return err
	}
	tenantID, scoped := scope.TenantID()
	if !scoped {
		n, err := database.Exec(ctx, r.db, r.builder.Delete(Table.Name).Where(squirrel.Eq{"users.id": id}))
		if err != nil {
			return fmt.Errorf("delete user %d: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("user %d: %w", id, database.ErrNotFound)
		}
		return nil
	}

	return database.WithTx(ctx, r.db, func(tx database.Tx) error {
		del := r.builder.Delete("account_users").
			Where(squirrel.Eq{"user_id": id}).
			Where(squirrel.Eq{"account_id": tenantID})
		n, err := database.Exec(ctx, tx, del)
		if err != nil {
			return fmt.Errorf("remove user %d from account %d: %w", id, tenantID, err)
		}
		if n == 0 {
			return fmt.Errorf("user %d: %w", id, database.ErrNotFound)
		}
		upd := r.builder.Update(Table.Name).
			Set("active_account_id", squirrel.Expr("NULL")).
			Set("updated_at", squirrel.Expr("NOW()")).
			Where(squirrel.Eq{"id": id}).
			Where(squirrel.Eq{"active_account_id": tenantID})
		if _, err := database.Exec(ctx, tx, upd); err != nil {
			return fmt.Errorf("reset active account of user %d: %w", id, err)
		}
		return nil
	})
}

func (r *Repository) hashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// checkAccounts verifies every id is an account visible to the request.
func (r *Repository) checkAccounts(ctx context.Context, q database.Querier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	sel, err := r.scoper.Select(ctx, accounts.Table, "COUNT(*)")
	if err != nil {
		return err
	}
	query, args, err := sel.Where(squirrel.Eq{"accounts.id": ids}).ToSql()
	if err != nil {
		return err
	}
	var found int
	if err := q.QueryRow(ctx, query, args...).Scan(&found); err != nil {
		return err
	}
	if found != len(ids) {
		return fmt.Errorf("accounts: %w", database.ErrInvalidReference)
	}
	return nil
}

func (r *Repository) checkMember(ctx context.Context, q database.Querier, userID, accountID int64) error {
	query, args, err := r.builder.Select("COUNT(*)").
		From("account_users").
		Where(squirrel.Eq{"user_id": userID, "account_id": accountID}).
		ToSql()
	if err != nil {
		return err
	}
	var found int
	if err := q.QueryRow(ctx, query, args...).Scan(&found); err != nil {
		return err
	}
	if found == 0 {
		return fmt.Errorf("active_account_id %d: %w", accountID, database.ErrInvalidReference)
	}
	return nil
}

// clearMemberships drops the memberships of userID the request can see.
func (r *Repository) clearMemberships(ctx context.Context, tx database.Tx, userID int64) error {
	del := r.builder.Delete("account_users").Where(squirrel.Eq{"user_id": userID})
	scope, err := r.scoper.Scope(ctx)
	if err != nil {
		return err
	}
	if tenantID, ok := scope.TenantID(); ok {
		del = del.Where(squirrel.Eq{"account_id": tenantID})
	}
	if _, err := database.Exec(ctx, tx, del); err != nil {
		return fmt.Errorf("clear memberships of user %d: %w", userID, err)
	}
	return nil
}

func (r *Repository) addMemberships(ctx context.Context, tx database.Tx, userID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ins := r.builder.Insert("account_users").Columns("account_id", "user_id")
	for _, accountID := range ids {
		ins = ins.Values(accountID, userID)
	}
	if _, err := database.Exec(ctx, tx, ins.Suffix("ON CONFLICT DO NOTHING")); err != nil {
		return fmt.Errorf("add memberships of user %d: %w", userID, database.Classify(err))
	}
	return nil
}

func (r *Repository) query(ctx context.Context, q squirrel.SelectBuilder) ([]User, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	items := []User{}
	for rows.Next() {
		var (
			u      User
			active sql.NullInt64
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.IsStaff, &active); err != nil {
			return nil, err
		}
		if active.Valid {
			u.ActiveAccountID = &active.Int64
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

// loadRelations fills memberships and group names. A scoped request only
// sees the membership in its own account.
func (r *Repository) loadRelations(ctx context.Context, items []User) error {
	ids := make([]int64, len(items))
	index := make(map[int64]*User, len(items))
	for i := range items {
		ids[i] = items[i].ID
		items[i].Accounts = []int64{}
		items[i].Groups = []string{}
		index[items[i].ID] = &items[i]
	}

	scope, err := r.scoper.Scope(ctx)
	if err != nil {
		return err
	}
	memberQ := r.builder.Select("user_id", "account_id").
		From("account_users").
		Where(squirrel.Eq{"user_id": ids})
	if tenantID, ok := scope.TenantID(); ok {
		memberQ = memberQ.Where(squirrel.Eq{"account_id": tenantID})
	}
	err = r.eachRow(ctx, memberQ.OrderBy("user_id", "account_id"), func(rows *sql.Rows) error {
		var userID, accountID int64
		if err := rows.Scan(&userID, &accountID); err != nil {
			return err
		}
		u := index[userID]
		u.Accounts = append(u.Accounts, accountID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load memberships: %w", err)
	}

	groupQ := r.builder.Select("ug.user_id", "g.name").
		From("user_groups ug").
		Join("groups g ON g.id = ug.group_id").
		Where(squirrel.Eq{"ug.user_id": ids}).
		OrderBy("ug.user_id", "g.name")
	err = r.eachRow(ctx, groupQ, func(rows *sql.Rows) error {
		var (
			userID int64
			name   string
		)
		if err := rows.Scan(&userID, &name); err != nil {
			return err
		}
		u := index[userID]
		u.Groups = append(u.Groups, name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load groups: %w", err)
	}
	return nil
}

func (r *Repository) eachRow(ctx context.Context, q squirrel.SelectBuilder, fn func(*sql.Rows) error) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func uniqueIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	if out == nil {
		out = []int64{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
