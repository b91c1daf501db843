// Package practices serves the practices of an account.
package practices

import (
	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/modules/crud"
)

// Table is the practices table, owned by account_id.
var Table = database.Table{Name: "practices"}

// Practice is a clinic or group practice within an account.
type Practice struct {
	crud.Meta
	Name    string `json:"name" validate:"required,max=255"`
	Type    string `json:"type" validate:"required,max=100"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"omitempty,max=20"`
	Address string `json:"address"`
}

// Schema maps Practice onto Table.
var Schema = crud.Schema[Practice]{
	Resource: "practice",
	Table:    Table,
	Columns:  []string{"name", "type", "email", "phone", "address"},
	Fields: func(p *Practice) []any {
		return []any{&p.Name, &p.Type, &p.Email, &p.Phone, &p.Address}
	},
}

// NewModule creates the practices module.
func NewModule() *crud.Module[Practice, *Practice] {
	return crud.NewModule[Practice, *Practice]("practices", "/practices", Schema)
}
