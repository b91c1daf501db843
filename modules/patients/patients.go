// Package patients serves patient demographics and their practice assignments.
package patients

import (
	"time"

	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/modules/crud"
	"github.com/nephrolytics/practice-api/modules/practices"
)

// Table is the patients table, owned by account_id.
var Table = database.Table{Name: "patients"}

// Patient is a person receiving care from an account's practices.
type Patient struct {
	crud.Meta
	FirstName        string     `json:"first_name" validate:"required,max=100"`
	LastName         string     `json:"last_name" validate:"required,max=100"`
	Gender           string     `json:"gender" validate:"omitempty,max=20"`
	Birthdate        *crud.Date `json:"birthdate"`
	Address          string     `json:"address"`
	City             string     `json:"city" validate:"omitempty,max=100"`
	State            string     `json:"state" validate:"omitempty,max=50"`
	Zipcode          string     `json:"zipcode" validate:"omitempty,zipcode"`
	PatientStatus    *int       `json:"patient_status"`
	PRNo             *int       `json:"pr_no"`
	PrimaryInsurance string     `json:"primary_insurance"`
	LastAppointment  *time.Time `json:"last_appointment"`
	NextAppointment  *time.Time `json:"next_appointment"`
	PatientBalance   *float64   `json:"patient_balance"`
	Terminated       *int       `json:"terminated"`
	FHIRResourceID   string     `json:"fhir_resource_id"`
	Practices        []int64    `json:"practices"`
}

// Schema maps Patient onto Table.
var Schema = crud.Schema[Patient]{
	Resource: "patient",
	Table:    Table,
	Columns: []string{
		"first_name", "last_name", "gender", "birthdate", "address", "city", "state",
		"zipcode", "patient_status", "pr_no", "primary_insurance", "last_appointment",
		"next_appointment", "patient_balance", "terminated", "fhir_resource_id",
	},
	Fields: func(p *Patient) []any {
		return []any{
			&p.FirstName, &p.LastName, &p.Gender, &p.Birthdate, &p.Address, &p.City, &p.State,
			&p.Zipcode, &p.PatientStatus, &p.PRNo, &p.PrimaryInsurance, &p.LastAppointment,
			&p.NextAppointment, &p.PatientBalance, &p.Terminated, &p.FHIRResourceID,
		}
	},
	Links: []crud.Link[Patient]{{
		Name:         "practices",
		Table:        "patient_practices",
		OwnerColumn:  "patient_id",
		TargetColumn: "practice_id",
		Target:       practices.Table,
		IDs:          func(p *Patient) *[]int64 { return &p.Practices },
	}},
}

// NewModule creates the patients module.
func NewModule() *crud.Module[Patient, *Patient] {
	return crud.NewModule[Patient, *Patient]("patients", "/patients", Schema)
}
