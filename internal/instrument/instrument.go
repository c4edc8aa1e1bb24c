package instrument

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/accesscontrol"
	"github.com/jeftarmascarenhas/drex-temporary/internal/types"
	"github.com/jeftarmascarenhas/drex-temporary/pkg/response"
)

// Service registers bond series and derives their deterministic ids.
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

// DeriveID computes the instrument id for a descriptor. The hash covers
// the fields in a fixed order with length prefixes, so distinct
// descriptors cannot collide by field-boundary shifting. The derivation
// is a fixed contract: changing it changes every instrument id.
func DeriveID(data types.InstrumentData) string {
	h := sha256.New()

	var lenBuf [8]byte
	writeString := func(s string) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}

	writeString(data.Acronym)
	writeString(data.Code)
	binary.BigEndian.PutUint64(lenBuf[:], data.MaturityDate)
	h.Write(lenBuf[:])

	return hex.EncodeToString(h.Sum(nil))
}

// Create registers a descriptor under its derived id. Requires the ADMIN
// role. Creating an identical descriptor again is a no-op success;
// creating a descriptor whose id is already bound to different data fails.
func (s *Service) Create(caller string, data types.InstrumentData) (string, error) {
	if err := s.roles.Require(accesscontrol.RoleAdmin, caller); err != nil {
		return "", err
	}

	id := DeriveID(data)

	existing, err := s.db.GetInstrument(id)
	if err != nil {
		return "", fmt.Errorf("failed to look up instrument: %w", err)
	}
	if existing != nil {
		if existing.Acronym != data.Acronym ||
			existing.Code != data.Code ||
			existing.MaturityDate != data.MaturityDate {
			return "", types.ErrInstrumentAlreadyExists
		}
		// Idempotent create.
		return id, nil
	}

	if err := s.db.CreateInstrument(&Instrument{
		InstrumentID: id,
		Acronym:      data.Acronym,
		Code:         data.Code,
		MaturityDate: data.MaturityDate,
	}); err != nil {
		return "", fmt.Errorf("failed to create instrument: %w", err)
	}

	log.Info().
		Str("instrument_id", id).
		Str("acronym", data.Acronym).
		Str("code", data.Code).
		Uint64("maturity_date", data.MaturityDate).
		Msg("instrument created")
	return id, nil
}

// Resolve derives the id for a descriptor and verifies it is registered.
func (s *Service) Resolve(data types.InstrumentData) (string, error) {
	id := DeriveID(data)

	existing, err := s.db.GetInstrument(id)
	if err != nil {
		return "", fmt.Errorf("failed to look up instrument: %w", err)
	}
	if existing == nil {
		return "", types.ErrInstrumentNotFound
	}
	return id, nil
}

// GinHandlers contains HTTP handlers for instrument registry endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateInstrumentHandler handles POST requests to register an instrument.
func (h *GinHandlers) CreateInstrumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var data types.InstrumentData
		if err := c.ShouldBindJSON(&data); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		caller := c.GetString("address")
		id, err := h.service.Create(caller, data)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"instrument_id": id})
	}
}

// ResolveInstrumentHandler handles POST requests to resolve a descriptor
// to its registered id without mutating state.
func (h *GinHandlers) ResolveInstrumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var data types.InstrumentData
		if err := c.ShouldBindJSON(&data); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		id, err := h.service.Resolve(data)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"instrument_id": id})
	}
}
