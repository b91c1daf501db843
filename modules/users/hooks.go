package users

import (
	"context"
	"fmt"

	"github.com/nephrolytics/practice-api/database"
)

// PostCreateHook runs inside the transaction that creates u. Returning an
// error rolls the creation back.
type PostCreateHook func(ctx context.Context, tx database.Tx, u *User) error

// ChainHooks runs hooks in order, stopping at the first error.
func ChainHooks(hooks ...PostCreateHook) PostCreateHook {
	return func(ctx context.Context, tx database.Tx, u *User) error {
		for _, hook := range hooks {
			if hook == nil {
				continue
			}
			if err := hook(ctx, tx, u); err != nil {
				return err
			}
		}
		return nil
	}
}

// AssignGroup returns a hook adding every new user to the group named name,
// creating the group on first use. An empty name yields a no-op hook.
func AssignGroup(name string) PostCreateHook {
	builder := database.Builder()
	return func(ctx context.Context, tx database.Tx, u *User) error {
		if name == "" {
			return nil
		}
		query, args, err := builder.Insert("groups").
			Columns("name").
			Values(name).
			Suffix("ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id").
			ToSql()
		if err != nil {
			return err
		}
		var groupID int64
		if err := tx.QueryRow(ctx, query, args...).Scan(&groupID); err != nil {
			return fmt.Errorf("ensure group %q: %w", name, err)
		}

		ins := builder.Insert("user_groups").
			Columns("user_id", "group_id").
			Values(u.ID, groupID).
			Suffix("ON CONFLICT DO NOTHING")
		if _, err := database.Exec(ctx, tx, ins); err != nil {
			return fmt.Errorf("assign user %d to group %q: %w", u.ID, name, err)
		}
		return nil
	}
}

