package settlement

import (
	"time"

	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/types"
)

// Operation statuses. EXECUTED and REJECTED are terminal.
const (
	StatusPending  = "PENDING"
	StatusExecuted = "EXECUTED"
	StatusRejected = "REJECTED"
)

// Event types recorded on operation state transitions.
const (
	EventConfirmationRecorded = "CONFIRMATION_RECORDED"
	EventExecutionFailed      = "EXECUTION_FAILED"
	EventExecuted             = "EXECUTED"
)

// Operation is a dual-confirmation DvP settlement record. It is created
// on the first confirmation, completed on the second, and never leaves a
// terminal status.
type Operation struct {
	gorm.Model            `json:"-"`
	OperationID           uint64    `gorm:"uniqueIndex" json:"operation_id"`
	SenderInstitutionID   uint64    `json:"sender_institution_id"`
	ReceiverInstitutionID uint64    `json:"receiver_institution_id"`
	InstrumentID          string    `json:"instrument_id"`
	Amount                uint64    `json:"amount"`
	UnitPrice             uint64    `json:"unit_price"`
	SenderConfirmed       bool      `json:"sender_confirmed"`
	ReceiverConfirmed     bool      `json:"receiver_confirmed"`
	Status                string    `json:"status"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Event is a structured record of an operation state transition, standing
// in for the emitted events of the on-chain protocol.
type Event struct {
	gorm.Model  `json:"-"`
	EventID     string    `gorm:"uniqueIndex" json:"event_id"`
	OperationID uint64    `gorm:"index" json:"operation_id"`
	Type        string    `json:"type"`
	Detail      string    `json:"detail"`
	CreatedAt   time.Time `json:"created_at"`
}

// ConfirmRequest carries one party's confirmation of a settlement
// operation. CallerPart selects which institution the caller claims to
// represent: 0 sender (deliverer), 1 receiver (payer).
type ConfirmRequest struct {
	OperationID           uint64               `json:"operation_id" binding:"required"`
	SenderInstitutionID   uint64               `json:"sender_institution_id" binding:"required"`
	ReceiverInstitutionID uint64               `json:"receiver_institution_id" binding:"required"`
	CallerPart            uint8                `json:"caller_part"`
	Instrument            types.InstrumentData `json:"instrument" binding:"required"`
	Amount                uint64               `json:"amount" binding:"required"`
	UnitPrice             uint64               `json:"unit_price" binding:"required"`
}
