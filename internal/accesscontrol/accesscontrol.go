package accesscontrol

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/types"
	"github.com/jeftarmascarenhas/drex-temporary/pkg/response"
)

// Service manages per-capability role grants. Every mutating call in the
// other services checks membership here before touching ledger state.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Seed grants ADMIN to the given holder when no admin exists yet. The
// bootstrap admin is provisioned externally in production; this covers
// fresh databases in the simulation and tests.
func (s *Service) Seed(adminHolder string) error {
	count, err := s.db.CountHolders(RoleAdmin)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	log.Info().Str("holder", adminHolder).Msg("seeding bootstrap admin")
	return s.db.CreateGrant(RoleAdmin, adminHolder)
}

// GrantRole adds holder to role. Only an existing ADMIN holder may grant.
func (s *Service) GrantRole(caller, role, holder string) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}

	if err := s.db.CreateGrant(role, holder); err != nil {
		return fmt.Errorf("failed to persist role grant: %w", err)
	}

	log.Info().
		Str("role", role).
		Str("holder", holder).
		Str("granted_by", caller).
		Msg("role granted")
	return nil
}

// RevokeRole removes holder from role. Only an existing ADMIN holder may
// revoke. Revoking a grant that does not exist is a no-op.
func (s *Service) RevokeRole(caller, role, holder string) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}

	if err := s.db.DeleteGrant(role, holder); err != nil {
		return fmt.Errorf("failed to delete role grant: %w", err)
	}

	log.Info().
		Str("role", role).
		Str("holder", holder).
		Str("revoked_by", caller).
		Msg("role revoked")
	return nil
}

// HasRole reports whether holder is a member of role.
func (s *Service) HasRole(role, holder string) (bool, error) {
	return s.db.GrantExists(role, holder)
}

// Require fails with Unauthorized unless holder is a member of role.
func (s *Service) Require(role, holder string) error {
	ok, err := s.HasRole(role, holder)
	if err != nil {
		return fmt.Errorf("failed to check role %s: %w", role, err)
	}
	if !ok {
		return types.ErrUnauthorized
	}
	return nil
}

func (s *Service) requireAdmin(caller string) error {
	return s.Require(RoleAdmin, caller)
}

// GinHandlers contains HTTP handlers for role management endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GrantRoleHandler handles POST requests to grant a role.
// The caller address is taken from the authenticated context.
func (h *GinHandlers) GrantRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GrantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		caller := c.GetString("address")
		if err := h.service.GrantRole(caller, req.Role, req.Holder); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"role": req.Role, "holder": req.Holder})
	}
}

// RevokeRoleHandler handles DELETE requests to revoke a role.
func (h *GinHandlers) RevokeRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GrantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		caller := c.GetString("address")
		if err := h.service.RevokeRole(caller, req.Role, req.Holder); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"message": "role revoked"})
	}
}
