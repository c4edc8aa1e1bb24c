package instrument

import (
	"time"

	"gorm.io/gorm"
)

// Instrument stores the descriptor of a registered bond series under its
// derived id.
type Instrument struct {
	gorm.Model   `json:"-"`
	InstrumentID string    `gorm:"uniqueIndex" json:"instrument_id"`
	Acronym      string    `json:"acronym"`
	Code         string    `json:"code"`
	MaturityDate uint64    `json:"maturity_date"`
	CreatedAt    time.Time `json:"created_at"`
}
