// Package locations serves the sites of a practice.
package locations

import (
	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/modules/crud"
	"github.com/nephrolytics/practice-api/modules/practices"
)

// Location statuses.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// Table is the locations table, owned by account_id.
var Table = database.Table{Name: "locations"}

// Location is a physical site belonging to one practice.
type Location struct {
	crud.Meta
	LocationName     string `json:"location_name" validate:"required,max=255"`
	Phone            string `json:"phone" validate:"omitempty,max=20"`
	Description      string `json:"description"`
	Address          string `json:"address"`
	HoursOfOperation string `json:"hours_of_operation"`
	FHIRResourceID   string `json:"fhir_resource_id"`
	Status           string `json:"status" validate:"omitempty,oneof=active inactive suspended"`
	PracticeID       int64  `json:"practice_id" validate:"required,gt=0"`
}

// Schema maps Location onto Table. The practice must belong to the same
// account. An empty status is written as active.
var Schema = crud.Schema[Location]{
	Resource: "location",
	Table:    Table,
	Columns: []string{
		"location_name", "phone", "description", "address",
		"hours_of_operation", "fhir_resource_id", "status", "practice_id",
	},
	Fields: func(l *Location) []any {
		if l.Status == "" {
			l.Status = StatusActive
		}
		return []any{
			&l.LocationName, &l.Phone, &l.Description, &l.Address,
			&l.HoursOfOperation, &l.FHIRResourceID, &l.Status, &l.PracticeID,
		}
	},
	References: []crud.Reference[Location]{{
		Name:   "practice_id",
		Target: practices.Table,
		ID:     func(l *Location) *int64 { return &l.PracticeID },
	}},
	Filters: []string{"practice_id"},
}

// NewModule creates the locations module.
func NewModule() *crud.Module[Location, *Location] {
	return crud.NewModule[Location, *Location]("locations", "/locations", Schema)
}
