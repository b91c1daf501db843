// Package practitioners serves clinicians and the practices they work at.
package practitioners

import (
	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/modules/crud"
	"github.com/nephrolytics/practice-api/modules/practices"
)

// Table is the practitioners table, owned by account_id.
var Table = database.Table{Name: "practitioners"}

// Practitioner is a clinician employed by an account.
type Practitioner struct {
	crud.Meta
	FirstName      string     `json:"first_name" validate:"required,max=100"`
	LastName       string     `json:"last_name" validate:"required,max=100"`
	Gender         string     `json:"gender" validate:"omitempty,max=20"`
	Birthdate      *crud.Date `json:"birthdate"`
	Address        string     `json:"address"`
	City           string     `json:"city" validate:"omitempty,max=100"`
	State          string     `json:"state" validate:"omitempty,max=50"`
	Zipcode        string     `json:"zipcode" validate:"omitempty,zipcode"`
	Contact        string     `json:"contact"`
	Active         bool       `json:"active"`
	Qualification  string     `json:"qualification"`
	FHIRResourceID string     `json:"fhir_resource_id"`
	Practices      []int64    `json:"practices"`
}

// Schema maps Practitioner onto Table. Practices are linked through
// practitioner_practices and must belong to the same account.
var Schema = crud.Schema[Practitioner]{
	Resource: "practitioner",
	Table:    Table,
	Columns: []string{
		"first_name", "last_name", "gender", "birthdate", "address", "city",
		"state", "zipcode", "contact", "active", "qualification", "fhir_resource_id",
	},
	Fields: func(p *Practitioner) []any {
		return []any{
			&p.FirstName, &p.LastName, &p.Gender, &p.Birthdate, &p.Address, &p.City,
			&p.State, &p.Zipcode, &p.Contact, &p.Active, &p.Qualification, &p.FHIRResourceID,
		}
	},
	Links: []crud.Link[Practitioner]{{
		Name:         "practices",
		Table:        "practitioner_practices",
		OwnerColumn:  "practitioner_id",
		TargetColumn: "practice_id",
		Target:       practices.Table,
		IDs:          func(p *Practitioner) *[]int64 { return &p.Practices },
	}},
}

// NewModule creates the practitioners module.
func NewModule() *crud.Module[Practitioner, *Practitioner] {
	return crud.NewModule[Practitioner, *Practitioner]("practitioners", "/practitioners", Schema)
}
