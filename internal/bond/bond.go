package bond

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/accesscontrol"
	"github.com/jeftarmascarenhas/drex-temporary/internal/instrument"
	"github.com/jeftarmascarenhas/drex-temporary/internal/types"
	"github.com/jeftarmascarenhas/drex-temporary/pkg/response"
)

// Service is the permissioned multi-asset bond ledger. Positions are
// keyed by (holder, instrument) and gated by an address allow-list.
type Service struct {
	gorm        *gorm.DB
	db          *Database
	roles       *accesscontrol.Service
	instruments *instrument.Service
}

func NewService(gormDB *gorm.DB, roles *accesscontrol.Service, instruments *instrument.Service) *Service {
	return &Service{
		gorm:        gormDB,
		db:          NewDatabase(gormDB),
		roles:       roles,
		instruments: instruments,
	}
}

// Enable adds an address to the allow-list. Requires the ACCESS role.
func (s *Service) Enable(caller, address string) error {
	if err := s.roles.Require(accesscontrol.RoleAccess, caller); err != nil {
		return err
	}
	if err := s.db.EnableAddress(address); err != nil {
		return fmt.Errorf("failed to enable address: %w", err)
	}
	log.Info().Str("address", address).Msg("bond address enabled")
	return nil
}

// Disable removes an address from the allow-list. Requires the ACCESS
// role. Existing positions are retained but frozen until re-enabled.
func (s *Service) Disable(caller, address string) error {
	if err := s.roles.Require(accesscontrol.RoleAccess, caller); err != nil {
		return err
	}
	if err := s.db.DisableAddress(address); err != nil {
		return fmt.Errorf("failed to disable address: %w", err)
	}
	log.Info().Str("address", address).Msg("bond address disabled")
	return nil
}

// Mint issues new units of a registered instrument to an enabled address.
// Requires the MINTER role.
func (s *Service) Mint(caller, to string, data types.InstrumentData, amount uint64) error {
	if err := s.roles.Require(accesscontrol.RoleMinter, caller); err != nil {
		return err
	}

	instrumentID, err := s.instruments.Resolve(data)
	if err != nil {
		return err
	}

	err = s.gorm.Transaction(func(tx *gorm.DB) error {
		enabled, err := s.db.IsEnabled(tx, to)
		if err != nil {
			return err
		}
		if !enabled {
			return types.ErrAccountNotEnabled
		}
		return s.db.Credit(tx, to, instrumentID, amount)
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("to", to).
		Str("instrument_id", instrumentID).
		Uint64("amount", amount).
		Msg("bond units minted")
	return nil
}

// Transfer moves units between two enabled addresses inside a single
// transaction.
func (s *Service) Transfer(from, to, instrumentID string, amount uint64) error {
	return s.gorm.Transaction(func(tx *gorm.DB) error {
		return s.TransferTx(tx, from, to, instrumentID, amount)
	})
}

// TransferTx is the transfer leg composed into a caller-owned
// transaction; the settlement engine uses it so the bond and currency
// legs commit or roll back together.
func (s *Service) TransferTx(tx *gorm.DB, from, to, instrumentID string, amount uint64) error {
	for _, address := range []string{from, to} {
		enabled, err := s.db.IsEnabled(tx, address)
		if err != nil {
			return err
		}
		if !enabled {
			return types.ErrAccountNotEnabled
		}
	}

	if err := s.db.Debit(tx, from, instrumentID, amount); err != nil {
		return err
	}
	return s.db.Credit(tx, to, instrumentID, amount)
}

// BalanceOf returns a holder's position in an instrument.
func (s *Service) BalanceOf(holder, instrumentID string) (uint64, error) {
	return s.db.GetPosition(s.gorm, holder, instrumentID)
}

// TotalSupply returns the sum of all positions in an instrument.
func (s *Service) TotalSupply(instrumentID string) (uint64, error) {
	return s.db.TotalSupply(instrumentID)
}

// IsEnabled reports whether an address is on the allow-list.
func (s *Service) IsEnabled(address string) (bool, error) {
	return s.db.IsEnabled(s.gorm, address)
}

// GinHandlers contains HTTP handlers for bond ledger endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// EnableAddressHandler handles POST requests to enable an address.
func (h *GinHandlers) EnableAddressHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EnableRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		caller := c.GetString("address")
		if err := h.service.Enable(caller, req.Address); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"address": req.Address, "enabled": true})
	}
}

// DisableAddressHandler handles POST requests to disable an address.
func (h *GinHandlers) DisableAddressHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EnableRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		caller := c.GetString("address")
		if err := h.service.Disable(caller, req.Address); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"address": req.Address, "enabled": false})
	}
}

// MintHandler handles POST requests to mint bond units.
func (h *GinHandlers) MintHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		caller := c.GetString("address")
		if err := h.service.Mint(caller, req.To, req.Instrument, req.Amount); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"to": req.To, "amount": req.Amount})
	}
}

// BalanceHandler handles GET requests for a holder's position.
// URL parameters: holder, instrument_id
func (h *GinHandlers) BalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		holder := c.Param("holder")
		instrumentID := c.Param("instrument_id")

		amount, err := h.service.BalanceOf(holder, instrumentID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{
			"holder":        holder,
			"instrument_id": instrumentID,
			"amount":        strconv.FormatUint(amount, 10),
		})
	}
}
