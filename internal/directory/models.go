package directory

import (
	"time"

	"gorm.io/gorm"
)

// Institution maps a stable numeric participant code to its current
// settlement address. Overwriting the address is allowed; there is no
// history of prior addresses.
type Institution struct {
	gorm.Model    `json:"-"`
	InstitutionID uint64    `gorm:"uniqueIndex" json:"institution_id"`
	Address       string    `json:"address"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RegisterRequest is the payload for registering a settlement account.
type RegisterRequest struct {
	InstitutionID uint64 `json:"institution_id" binding:"required"`
	Address       string `json:"address" binding:"required"`
}
