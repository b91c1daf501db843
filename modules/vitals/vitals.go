// Package vitals serves patient vital sign measurements.
package vitals

import (
	"time"

	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/modules/crud"
	"github.com/nephrolytics/practice-api/modules/patients"
)

// Table is the vitals table, owned by account_id.
var Table = database.Table{Name: "vitals"}

// Vital is one set of measurements taken at DateTime.
type Vital struct {
	crud.Meta
	PatientID       int64     `json:"patient_id" validate:"required,gt=0"`
	DateTime        time.Time `json:"date_time" validate:"required"`
	Height          *float64  `json:"height" validate:"omitempty,gt=0"`
	Weight          *float64  `json:"weight" validate:"omitempty,gt=0"`
	BMI             *float64  `json:"bmi" validate:"omitempty,gt=0"`
	Systolic        *int      `json:"systolic" validate:"omitempty,gt=0"`
	Diastolic       *int      `json:"diastolic" validate:"omitempty,gt=0"`
	Pulse           *int      `json:"pulse" validate:"omitempty,gt=0"`
	SpO2            *float64  `json:"spo2" validate:"omitempty,gte=0,lte=100"`
	Temperature     *float64  `json:"temperature"`
	RespirationRate *int      `json:"respiration_rate" validate:"omitempty,gt=0"`
}

// Schema maps Vital onto Table.
var Schema = crud.Schema[Vital]{
	Resource: "vital",
	Table:    Table,
	Columns: []string{
		"patient_id", "date_time", "height", "weight", "bmi", "systolic",
		"diastolic", "pulse", "spo2", "temperature", "respiration_rate",
	},
	Fields: func(v *Vital) []any {
		return []any{
			&v.PatientID, &v.DateTime, &v.Height, &v.Weight, &v.BMI, &v.Systolic,
			&v.Diastolic, &v.Pulse, &v.SpO2, &v.Temperature, &v.RespirationRate,
		}
	},
	References: []crud.Reference[Vital]{{
		Name:   "patient_id",
		Target: patients.Table,
		ID:     func(v *Vital) *int64 { return &v.PatientID },
	}},
	Filters: []string{"patient_id"},
}

// NewModule creates the vitals module.
func NewModule() *crud.Module[Vital, *Vital] {
	return crud.NewModule[Vital, *Vital]("vitals", "/vitals", Schema)
}
