package currency

import (
	"time"

	"gorm.io/gorm"
)

// Account is a holder's fungible currency balance.
type Account struct {
	gorm.Model `json:"-"`
	Holder     string    `gorm:"uniqueIndex" json:"holder"`
	Balance    uint64    `json:"balance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Allowance is the amount a spender may move on behalf of an owner,
// consumed as delegated transfers execute.
type Allowance struct {
	gorm.Model `json:"-"`
	Owner      string    `gorm:"uniqueIndex:idx_owner_spender" json:"owner"`
	Spender    string    `gorm:"uniqueIndex:idx_owner_spender" json:"spender"`
	Amount     uint64    `json:"amount"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MintRequest is the payload for minting currency.
type MintRequest struct {
	To     string `json:"to" binding:"required"`
	Amount uint64 `json:"amount" binding:"required"`
}

// BurnRequest is the payload for burning currency.
type BurnRequest struct {
	From   string `json:"from" binding:"required"`
	Amount uint64 `json:"amount" binding:"required"`
}

// ApproveRequest is the payload for setting an allowance. The owner is
// the authenticated caller.
type ApproveRequest struct {
	Spender string `json:"spender" binding:"required"`
	Amount  uint64 `json:"amount"`
}
