package directory

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/accesscontrol"
	"github.com/jeftarmascarenhas/drex-temporary/pkg/response"
)

// Service maintains the institution-to-settlement-address directory.
type Service struct {
	db    *Database
	roles *accesscontrol.Service
}

func NewService(gormDB *gorm.DB, roles *accesscontrol.Service) *Service {
	return &Service{
		db:    NewDatabase(gormDB),
		roles: roles,
	}
}

// RegisterAccount maps an institution id to its settlement address,
// overwriting any previous mapping. Requires the ACCESS role.
func (s *Service) RegisterAccount(caller string, institutionID uint64, address string) error {
	if err := s.roles.Require(accesscontrol.RoleAccess, caller); err != nil {
		return err
	}

	if err := s.db.UpsertInstitution(institutionID, address); err != nil {
		return fmt.Errorf("failed to register settlement account: %w", err)
	}

	log.Info().
		Uint64("institution_id", institutionID).
		Str("address", address).
		Msg("settlement account registered")
	return nil
}

// Resolve returns the current settlement address for an institution.
func (s *Service) Resolve(institutionID uint64) (string, error) {
	institution, err := s.db.GetInstitution(institutionID)
	if err != nil {
		return "", err
	}
	return institution.Address, nil
}

// VerifyCaller reports whether address is the registered settlement
// address for the given institution.
func (s *Service) VerifyCaller(institutionID uint64, address string) (bool, error) {
	resolved, err := s.Resolve(institutionID)
	if err != nil {
		return false, err
	}
	return resolved == address, nil
}

// GinHandlers contains HTTP handlers for directory endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// RegisterAccountHandler handles POST requests to register an
// institution's settlement account.
func (h *GinHandlers) RegisterAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		caller := c.GetString("address")
		if err := h.service.RegisterAccount(caller, req.InstitutionID, req.Address); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{
			"institution_id": req.InstitutionID,
			"address":        req.Address,
		})
	}
}

// GetInstitutionHandler handles GET requests to resolve an institution.
// URL parameter: institution_id
func (h *GinHandlers) GetInstitutionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		institutionID, err := strconv.ParseUint(c.Param("institution_id"), 10, 64)
		if err != nil {
			response.BadRequest(c, "invalid institution id")
			return
		}

		address, err := h.service.Resolve(institutionID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{
			"institution_id": institutionID,
			"address":        address,
		})
	}
}
