package settlement

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOperation(op *Operation) error {
	return d.db.Create(op).Error
}

// GetOperation returns the record for an id, or nil when none exists.
func (d *Database) GetOperation(operationID uint64) (*Operation, error) {
	var op Operation
	err := d.db.Where("operation_id = ?", operationID).First(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (d *Database) SaveOperation(op *Operation) error {
	op.UpdatedAt = time.Now()
	return d.db.Save(op).Error
}

// SaveOperationTx persists the record inside a caller-owned transaction,
// so the EXECUTED status commits with the ledger legs or not at all.
func (d *Database) SaveOperationTx(tx *gorm.DB, op *Operation) error {
	op.UpdatedAt = time.Now()
	return tx.Save(op).Error
}

func (d *Database) RecordEvent(operationID uint64, eventType, detail string) error {
	return d.db.Create(&Event{
		EventID:     uuid.New().String(),
		OperationID: operationID,
		Type:        eventType,
		Detail:      detail,
	}).Error
}

func (d *Database) GetEvents(operationID uint64) ([]Event, error) {
	var events []Event
	if err := d.db.Where("operation_id = ?", operationID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// MustGetOperation returns the record or the domain not-found error.
func (d *Database) MustGetOperation(operationID uint64) (*Operation, error) {
	op, err := d.GetOperation(operationID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, types.ErrOperationNotFound
	}
	return op, nil
}
