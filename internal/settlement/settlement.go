package settlement

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/accesscontrol"
	"github.com/jeftarmascarenhas/drex-temporary/internal/bond"
	"github.com/jeftarmascarenhas/drex-temporary/internal/currency"
	"github.com/jeftarmascarenhas/drex-temporary/internal/directory"
	"github.com/jeftarmascarenhas/drex-temporary/internal/instrument"
	"github.com/jeftarmascarenhas/drex-temporary/internal/types"
	"github.com/jeftarmascarenhas/drex-temporary/pkg/response"
)

// Service coordinates two independent confirmations into one atomic
// delivery-versus-payment transfer across the bond and currency ledgers.
// The engine's own address must hold the AUCTION_PLACEMENT role and be
// approved as a currency spender by each paying institution.
type Service struct {
	gorm        *gorm.DB
	db          *Database
	roles       *accesscontrol.Service
	directory   *directory.Service
	instruments *instrument.Service
	bonds       *bond.Service
	currency    *currency.Service

	engineAddress string

	// Serializes steps on the same operation id so two near-simultaneous
	// first confirmations cannot both create a record.
	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

func NewService(
	gormDB *gorm.DB,
	roles *accesscontrol.Service,
	dir *directory.Service,
	instruments *instrument.Service,
	bonds *bond.Service,
	cur *currency.Service,
	engineAddress string,
) *Service {
	return &Service{
		gorm:          gormDB,
		db:            NewDatabase(gormDB),
		roles:         roles,
		directory:     dir,
		instruments:   instruments,
		bonds:         bonds,
		currency:      cur,
		engineAddress: engineAddress,
		locks:         make(map[uint64]*sync.Mutex),
	}
}

func (s *Service) operationLock(operationID uint64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.locks[operationID]
	if !exists {
		l = &sync.Mutex{}
		s.locks[operationID] = l
	}
	return l
}

// releaseLock drops the mutex for a terminal operation so the map does
// not grow unbounded. A goroutine still waiting on the old mutex will
// find the terminal record once it acquires it.
func (s *Service) releaseLock(operationID uint64) {
	s.mu.Lock()
	delete(s.locks, operationID)
	s.mu.Unlock()
}

// Confirm registers one party's confirmation of a settlement operation
// and, on the second matching confirmation, executes the DvP transfer
// atomically. A failed execution leaves the record Pending with both
// confirmations retained, so the operation can be retried once balances
// or allowances are corrected.
func (s *Service) Confirm(callerAddress string, req ConfirmRequest) error {
	logger := log.With().
		Uint64("operation_id", req.OperationID).
		Uint8("caller_part", req.CallerPart).
		Str("service", "settlement").
		Logger()

	if req.CallerPart != types.CallerPartSender && req.CallerPart != types.CallerPartReceiver {
		return fmt.Errorf("invalid caller part %d: %w", req.CallerPart, types.ErrUnauthorized)
	}

	// The payment leg is amount*unitPrice; terms whose product wraps a
	// uint64 would settle the bonds for a truncated payment, so they are
	// rejected before any record exists.
	if req.Amount != 0 && req.Amount*req.UnitPrice/req.Amount != req.UnitPrice {
		return fmt.Errorf("amount %d at unit price %d: %w", req.Amount, req.UnitPrice, types.ErrNumericOverflow)
	}

	// Step 1: the traded instrument must be registered.
	instrumentID, err := s.instruments.Resolve(req.Instrument)
	if err != nil {
		return err
	}

	// Step 2: the caller must be the registered settlement address of
	// the institution it claims to represent.
	callerInstitution := req.SenderInstitutionID
	if req.CallerPart == types.CallerPartReceiver {
		callerInstitution = req.ReceiverInstitutionID
	}
	ok, err := s.directory.VerifyCaller(callerInstitution, callerAddress)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn().
			Uint64("institution_id", callerInstitution).
			Str("caller", callerAddress).
			Msg("confirmation from unregistered address")
		return types.ErrUnauthorized
	}

	lock := s.operationLock(req.OperationID)
	lock.Lock()
	defer lock.Unlock()

	op, err := s.db.GetOperation(req.OperationID)
	if err != nil {
		return fmt.Errorf("failed to load operation: %w", err)
	}

	// Step 3: first confirmation creates the Pending record.
	if op == nil {
		return s.createPending(logger, req, instrumentID)
	}

	if op.Status != StatusPending {
		s.releaseLock(req.OperationID)
		return types.ErrOperationAlreadyExecuted
	}

	// Step 4: second confirmation must come from the other part and
	// match every stored term. A fully confirmed Pending record means a
	// prior execution attempt failed; a matching re-confirmation retries
	// it rather than counting as a duplicate.
	alreadyConfirmed := op.SenderConfirmed
	if req.CallerPart == types.CallerPartReceiver {
		alreadyConfirmed = op.ReceiverConfirmed
	}
	bothConfirmed := op.SenderConfirmed && op.ReceiverConfirmed
	if alreadyConfirmed && !bothConfirmed {
		return types.ErrDuplicateConfirmation
	}

	if op.SenderInstitutionID != req.SenderInstitutionID ||
		op.ReceiverInstitutionID != req.ReceiverInstitutionID ||
		op.InstrumentID != instrumentID ||
		op.Amount != req.Amount ||
		op.UnitPrice != req.UnitPrice {
		logger.Warn().Msg("confirmation terms differ from pending operation")
		return types.ErrTermsMismatch
	}

	if !alreadyConfirmed {
		if req.CallerPart == types.CallerPartSender {
			op.SenderConfirmed = true
		} else {
			op.ReceiverConfirmed = true
		}
		if err := s.db.SaveOperation(op); err != nil {
			return fmt.Errorf("failed to record confirmation: %w", err)
		}
		if err := s.db.RecordEvent(op.OperationID, EventConfirmationRecorded,
			fmt.Sprintf("part %d confirmed", req.CallerPart)); err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}
	}

	// Step 5: both parts confirmed, execute the swap.
	if err := s.execute(logger, op); err != nil {
		return err
	}
	s.releaseLock(req.OperationID)
	return nil
}

func (s *Service) createPending(logger zerolog.Logger, req ConfirmRequest, instrumentID string) error {
	// Operation records may only be opened by an engine that holds the
	// AUCTION_PLACEMENT role, pre-granted at provisioning time.
	if err := s.roles.Require(accesscontrol.RoleAuctionPlacement, s.engineAddress); err != nil {
		return err
	}

	op := &Operation{
		OperationID:           req.OperationID,
		SenderInstitutionID:   req.SenderInstitutionID,
		ReceiverInstitutionID: req.ReceiverInstitutionID,
		InstrumentID:          instrumentID,
		Amount:                req.Amount,
		UnitPrice:             req.UnitPrice,
		SenderConfirmed:       req.CallerPart == types.CallerPartSender,
		ReceiverConfirmed:     req.CallerPart == types.CallerPartReceiver,
		Status:                StatusPending,
	}
	if err := s.db.CreateOperation(op); err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}
	if err := s.db.RecordEvent(op.OperationID, EventConfirmationRecorded,
		fmt.Sprintf("part %d confirmed", req.CallerPart)); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	logger.Info().
		Uint64("sender_institution_id", op.SenderInstitutionID).
		Uint64("receiver_institution_id", op.ReceiverInstitutionID).
		Str("instrument_id", op.InstrumentID).
		Uint64("amount", op.Amount).
		Uint64("unit_price", op.UnitPrice).
		Msg("settlement operation opened")
	return nil
}

// execute runs both DvP legs in one database transaction: the sender
// delivers bond units and the receiver pays amount*unitPrice via the
// allowance it granted the engine. Either both legs commit or neither.
func (s *Service) execute(logger zerolog.Logger, op *Operation) error {
	senderAddress, err := s.directory.Resolve(op.SenderInstitutionID)
	if err != nil {
		return err
	}
	receiverAddress, err := s.directory.Resolve(op.ReceiverInstitutionID)
	if err != nil {
		return err
	}

	payment := op.Amount * op.UnitPrice

	err = s.gorm.Transaction(func(tx *gorm.DB) error {
		if err := s.bonds.TransferTx(tx, senderAddress, receiverAddress, op.InstrumentID, op.Amount); err != nil {
			return err
		}
		if err := s.currency.TransferFromTx(tx, s.engineAddress, receiverAddress, senderAddress, payment); err != nil {
			return err
		}
		op.Status = StatusExecuted
		return s.db.SaveOperationTx(tx, op)
	})
	if err != nil {
		// The record stays Pending with both confirmations retained;
		// the rollback has undone any ledger mutation.
		op.Status = StatusPending
		logger.Warn().Err(err).Msg("settlement execution failed, operation remains pending")
		if eventErr := s.db.RecordEvent(op.OperationID, EventExecutionFailed, err.Error()); eventErr != nil {
			logger.Error().Err(eventErr).Msg("failed to record execution failure event")
		}
		return err
	}

	if err := s.db.RecordEvent(op.OperationID, EventExecuted,
		fmt.Sprintf("delivered %d units for %d", op.Amount, payment)); err != nil {
		logger.Error().Err(err).Msg("failed to record execution event")
	}

	logger.Info().
		Str("sender_address", senderAddress).
		Str("receiver_address", receiverAddress).
		Uint64("amount", op.Amount).
		Uint64("payment", payment).
		Msg("settlement executed")
	return nil
}

// Query returns the current record for an operation id.
func (s *Service) Query(operationID uint64) (*Operation, error) {
	return s.db.MustGetOperation(operationID)
}

// Events returns the transition history of an operation.
func (s *Service) Events(operationID uint64) ([]Event, error) {
	if _, err := s.db.MustGetOperation(operationID); err != nil {
		return nil, err
	}
	return s.db.GetEvents(operationID)
}

// GinHandlers contains HTTP handlers for settlement endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ConfirmHandler handles POST requests carrying one party's
// confirmation. The caller address comes from the authenticated token.
func (h *GinHandlers) ConfirmHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConfirmRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		callerAddress := c.GetString("address")
		if callerAddress == "" {
			response.Unauthorized(c, "missing caller address")
			return
		}

		if err := h.service.Confirm(callerAddress, req); err != nil {
			response.Handle(c, nil, err)
			return
		}

		op, err := h.service.Query(req.OperationID)
		response.Handle(c, op, err)
	}
}

// QueryHandler handles GET requests for an operation record.
// URL parameter: operation_id
func (h *GinHandlers) QueryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		operationID, err := strconv.ParseUint(c.Param("operation_id"), 10, 64)
		if err != nil {
			response.BadRequest(c, "invalid operation id")
			return
		}

		op, err := h.service.Query(operationID)
		response.Handle(c, op, err)
	}
}

// EventsHandler handles GET requests for an operation's event history.
// URL parameter: operation_id
func (h *GinHandlers) EventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		operationID, err := strconv.ParseUint(c.Param("operation_id"), 10, 64)
		if err != nil {
			response.BadRequest(c, "invalid operation id")
			return
		}

		events, err := h.service.Events(operationID)
		response.Handle(c, events, err)
	}
}
