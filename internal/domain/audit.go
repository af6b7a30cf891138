package domain

import "time"

// Record status values. Rows are never hard-deleted; estatus flips to "B".
const (
	StatusActive  = "A"
	StatusDeleted = "B"
)

// Audit carries the bookkeeping columns shared by every table
// (creado, modificado, estatus).
type Audit struct {
	CreatedAt  time.Time `json:"creado"`
	ModifiedAt time.Time `json:"modificado"`
	Status     string    `json:"-"`
}

// IsDeleted reports whether the row is soft-deleted.
func (a Audit) IsDeleted() bool {
	return a.Status != StatusActive
}
