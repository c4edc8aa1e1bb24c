package currency

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/accesscontrol"
	"github.com/jeftarmascarenhas/drex-temporary/pkg/response"
)

// Service is the fungible digital currency ledger with allowances for
// delegated transfers.
type Service struct {
	gorm  *gorm.DB
	db    *Database
	roles *accesscontrol.Service
}

func NewService(gormDB *gorm.DB, roles *accesscontrol.Service) *Service {
	return &Service{
		gorm:  gormDB,
		db:    NewDatabase(gormDB),
		roles: roles,
	}
}

// Mint issues currency to an account. Requires the MINTER role.
func (s *Service) Mint(caller, to string, amount uint64) error {
	if err := s.roles.Require(accesscontrol.RoleMinter, caller); err != nil {
		return err
	}

	err := s.gorm.Transaction(func(tx *gorm.DB) error {
		return s.db.Credit(tx, to, amount)
	})
	if err != nil {
		return fmt.Errorf("failed to mint currency: %w", err)
	}

	log.Info().Str("to", to).Uint64("amount", amount).Msg("currency minted")
	return nil
}

// Burn destroys currency held by an account. Requires the BURNER role.
func (s *Service) Burn(caller, from string, amount uint64) error {
	if err := s.roles.Require(accesscontrol.RoleBurner, caller); err != nil {
		return err
	}

	err := s.gorm.Transaction(func(tx *gorm.DB) error {
		return s.db.Debit(tx, from, amount)
	})
	if err != nil {
		return err
	}

	log.Info().Str("from", from).Uint64("amount", amount).Msg("currency burned")
	return nil
}

// Transfer moves currency between two accounts in one transaction.
func (s *Service) Transfer(from, to string, amount uint64) error {
	return s.gorm.Transaction(func(tx *gorm.DB) error {
		if err := s.db.Debit(tx, from, amount); err != nil {
			return err
		}
		return s.db.Credit(tx, to, amount)
	})
}

// Approve sets the absolute allowance an owner grants a spender.
func (s *Service) Approve(owner, spender string, amount uint64) error {
	if err := s.db.SetAllowance(owner, spender, amount); err != nil {
		return fmt.Errorf("failed to set allowance: %w", err)
	}

	log.Info().
		Str("owner", owner).
		Str("spender", spender).
		Uint64("amount", amount).
		Msg("allowance set")
	return nil
}

// TransferFrom moves currency from owner to a destination on behalf of
// the spender, consuming allowance.
func (s *Service) TransferFrom(spender, owner, to string, amount uint64) error {
	return s.gorm.Transaction(func(tx *gorm.DB) error {
		return s.TransferFromTx(tx, spender, owner, to, amount)
	})
}

// TransferFromTx is the delegated-transfer leg composed into a
// caller-owned transaction. Allowance is checked and consumed before the
// balance moves, so a short allowance aborts before any mutation.
func (s *Service) TransferFromTx(tx *gorm.DB, spender, owner, to string, amount uint64) error {
	if err := s.db.ConsumeAllowance(tx, owner, spender, amount); err != nil {
		return err
	}
	if err := s.db.Debit(tx, owner, amount); err != nil {
		return err
	}
	return s.db.Credit(tx, to, amount)
}

// VerifyAccount reports whether an address may hold currency. This
// deployment keeps currency accounts open; the bond allow-list is the
// regulatory gate.
func (s *Service) VerifyAccount(address string) bool {
	return address != ""
}

// BalanceOf returns the balance of an account.
func (s *Service) BalanceOf(holder string) (uint64, error) {
	return s.db.GetBalance(s.gorm, holder)
}

// GetAllowance returns the remaining allowance for an (owner, spender)
// pair.
func (s *Service) GetAllowance(owner, spender string) (uint64, error) {
	return s.db.GetAllowance(s.gorm, owner, spender)
}

// TotalSupply returns the sum of all balances.
func (s *Service) TotalSupply() (uint64, error) {
	return s.db.TotalSupply()
}

// GinHandlers contains HTTP handlers for currency ledger endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// MintHandler handles POST requests to mint currency.
func (h *GinHandlers) MintHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		caller := c.GetString("address")
		if err := h.service.Mint(caller, req.To, req.Amount); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"to": req.To, "amount": req.Amount})
	}
}

// BurnHandler handles POST requests to burn currency.
func (h *GinHandlers) BurnHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BurnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		caller := c.GetString("address")
		if err := h.service.Burn(caller, req.From, req.Amount); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"from": req.From, "amount": req.Amount})
	}
}

// ApproveHandler handles POST requests to set an allowance. The owner is
// the authenticated caller's settlement address.
func (h *GinHandlers) ApproveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ApproveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		owner := c.GetString("address")
		if owner == "" {
			response.Unauthorized(c, "missing caller address")
			return
		}

		if err := h.service.Approve(owner, req.Spender, req.Amount); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"spender": req.Spender, "amount": req.Amount})
	}
}

// BalanceHandler handles GET requests for an account balance.
// URL parameter: holder
func (h *GinHandlers) BalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		holder := c.Param("holder")

		balance, err := h.service.BalanceOf(holder)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{
			"holder":  holder,
			"balance": strconv.FormatUint(balance, 10),
		})
	}
}

// AllowanceHandler handles GET requests for a remaining allowance.
// URL parameters: holder (the owner), spender
func (h *GinHandlers) AllowanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.Param("holder")
		spender := c.Param("spender")

		amount, err := h.service.GetAllowance(owner, spender)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{
			"owner":   owner,
			"spender": spender,
			"amount":  strconv.FormatUint(amount, 10),
		})
	}
}
