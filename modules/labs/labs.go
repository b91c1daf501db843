// Package labs serves patient laboratory results.
package labs

import (
	"time"

	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/modules/crud"
	"github.com/nephrolytics/practice-api/modules/patients"
)

// Table is the labs table, owned by account_id.
var Table = database.Table{Name: "labs"}

// Lab is one renal panel drawn for a patient.
type Lab struct {
	crud.Meta
	PatientID int64      `json:"patient_id" validate:"required,gt=0"`
	DateTime  *time.Time `json:"date_time"`
	Cr        *float64   `json:"cr" validate:"omitempty,gte=0"`
	BUN       *float64   `json:"bun" validate:"omitempty,gte=0"`
	GFR       *float64   `json:"gfr" validate:"omitempty,gte=0"`
	Alb       *float64   `json:"alb" validate:"omitempty,gte=0"`
	Hb        *float64   `json:"hb" validate:"omitempty,gte=0"`
	Hct       *float64   `json:"hct" validate:"omitempty,gte=0"`
	Phos      *float64   `json:"phos" validate:"omitempty,gte=0"`
	Ca        *float64   `json:"ca" validate:"omitempty,gte=0"`
	PTH       *float64   `json:"pth" validate:"omitempty,gte=0"`
	PCrRatio  *float64   `json:"p_cr_ratio" validate:"omitempty,gte=0"`
}

// Schema maps Lab onto Table. The patient must belong to the same account.
var Schema = crud.Schema[Lab]{
	Resource: "lab",
	Table:    Table,
	Columns: []string{
		"patient_id", "date_time", "cr", "bun", "gfr", "alb", "hb", "hct", "phos", "ca", "pth", "p_cr_ratio",
	},
	Fields: func(l *Lab) []any {
		return []any{
			&l.PatientID, &l.DateTime, &l.Cr, &l.BUN, &l.GFR, &l.Alb, &l.Hb, &l.Hct, &l.Phos, &l.Ca, &l.PTH, &l.PCrRatio,
		}
	},
	References: []crud.Reference[Lab]{{
		Name:   "patient_id",
		Target: patients.Table,
		ID:     func(l *Lab) *int64 { return &l.PatientID },
	}},
	Filters: []string{"patient_id"},
}

// NewModule creates the labs module.
func NewModule() *crud.Module[Lab, *Lab] {
	return crud.NewModule[Lab, *Lab]("labs", "/labs", Schema)
}
