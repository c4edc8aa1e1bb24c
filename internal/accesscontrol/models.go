package accesscontrol

import (
	"time"

	"gorm.io/gorm"
)

// Role names mirror the capability set of the settlement network.
const (
	RoleAdmin            = "ADMIN_ROLE"
	RoleAccess           = "ACCESS_ROLE"
	RoleMinter           = "MINTER_ROLE"
	RoleBurner           = "BURNER_ROLE"
	RoleAuctionPlacement = "AUCTION_PLACEMENT_ROLE"
)

// RoleGrant records set-membership of a holder in a role.
type RoleGrant struct {
	gorm.Model `json:"-"`
	Role       string    `gorm:"uniqueIndex:idx_role_holder" json:"role"`
	Holder     string    `gorm:"uniqueIndex:idx_role_holder" json:"holder"`
	CreatedAt  time.Time `json:"created_at"`
}

// GrantRequest is the payload for granting or revoking a role.
type GrantRequest struct {
	Role   string `json:"role" binding:"required"`
	Holder string `json:"holder" binding:"required"`
}
