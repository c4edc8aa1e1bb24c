package bond

import (
	"time"

	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/types"
)

// Position is a holder's balance in one instrument.
type Position struct {
	gorm.Model   `json:"-"`
	Holder       string    `gorm:"uniqueIndex:idx_holder_instrument" json:"holder"`
	InstrumentID string    `gorm:"uniqueIndex:idx_holder_instrument" json:"instrument_id"`
	Amount       uint64    `json:"amount"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EnabledAddress is the allow-list gate: only enabled addresses may hold
// positions or act as a transfer endpoint.
type EnabledAddress struct {
	gorm.Model `json:"-"`
	Address    string    `gorm:"uniqueIndex" json:"address"`
	CreatedAt  time.Time `json:"created_at"`
}

// EnableRequest is the payload for enabling or disabling an address.
type EnableRequest struct {
	Address string `json:"address" binding:"required"`
}

// MintRequest is the payload for minting bond units.
type MintRequest struct {
	To         string               `json:"to" binding:"required"`
	Instrument types.InstrumentData `json:"instrument" binding:"required"`
	Amount     uint64               `json:"amount" binding:"required"`
}
