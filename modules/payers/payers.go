// Package payers serves insurance payers contracted by an account's practices.
package payers

import (
	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/modules/crud"
	"github.com/nephrolytics/practice-api/modules/practices"
)

// Table is the payers table, owned by account_id.
var Table = database.Table{Name: "payers"}

// Payer is an insurer or other paying party.
type Payer struct {
	crud.Meta
	PayerName      string  `json:"payer_name" validate:"required,max=255"`
	Active         bool    `json:"active"`
	Description    string  `json:"description"`
	Contact        string  `json:"contact"`
	Qualification  string  `json:"qualification"`
	Alias          string  `json:"alias" validate:"omitempty,max=100"`
	FHIRResourceID string  `json:"fhir_resource_id"`
	Practices      []int64 `json:"practices"`
}

// Schema maps Payer onto Table.
var Schema = crud.Schema[Payer]{
	Resource: "payer",
	Table:    Table,
	Columns: []string{
		"payer_name", "active", "description", "contact", "qualification", "alias", "fhir_resource_id",
	},
	Fields: func(p *Payer) []any {
		return []any{
			&p.PayerName, &p.Active, &p.Description, &p.Contact, &p.Qualification, &p.Alias, &p.FHIRResourceID,
		}
	},
	Links: []crud.Link[Payer]{{
		Name:         "practices",
		Table:        "payer_practices",
		OwnerColumn:  "payer_id",
		TargetColumn: "practice_id",
		Target:       practices.Table,
		IDs:          func(p *Payer) *[]int64 { return &p.Practices },
	}},
}

// NewModule creates the payers module.
func NewModule() *crud.Module[Payer, *Payer] {
	return crud.NewModule[Payer, *Payer]("payers", "/payers", Schema)
}
