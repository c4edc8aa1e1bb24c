package bond

import (
	"errors"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) EnableAddress(address string) error {
	var existing EnabledAddress
	err := d.db.Where("address = ?", address).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return d.db.Create(&EnabledAddress{Address: address}).Error
}

func (d *Database) DisableAddress(address string) error {
	// Hard delete: a soft-deleted row would keep occupying the address
	// unique index and block a later re-enable.
	return d.db.Unscoped().Where("address = ?", address).
		Delete(&EnabledAddress{}).Error
}

// IsEnabled checks the allow-list within the given db handle so it can
// run inside a larger transaction.
func (d *Database) IsEnabled(tx *gorm.DB, address string) (bool, error) {
	var count int64
	if err := tx.Model(&EnabledAddress{}).
		Where("address = ?", address).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *Database) GetPosition(tx *gorm.DB, holder, instrumentID string) (uint64, error) {
	var position Position
	err := tx.Where("holder = ? AND instrument_id = ?", holder, instrumentID).
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return position.Amount, nil
}

// Credit increases a holder's position, creating the row if needed.
func (d *Database) Credit(tx *gorm.DB, holder, instrumentID string, amount uint64) error {
	var position Position
	err := tx.Where("holder = ? AND instrument_id = ?", holder, instrumentID).
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&Position{
			Holder:       holder,
			InstrumentID: instrumentID,
			Amount:       amount,
		}).Error
	}
	if err != nil {
		return err
	}

	if position.Amount > math.MaxUint64-amount {
		return types.ErrNumericOverflow
	}
	position.Amount += amount
	position.UpdatedAt = time.Now()
	return tx.Save(&position).Error
}

// Debit decreases a holder's position, failing if the balance is short.
func (d *Database) Debit(tx *gorm.DB, holder, instrumentID string, amount uint64) error {
	var position Position
	err := tx.Where("holder = ? AND instrument_id = ?", holder, instrumentID).
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ErrInsufficientBalance
	}
	if err != nil {
		return err
	}
	if position.Amount < amount {
		return types.ErrInsufficientBalance
	}

	position.Amount -= amount
	position.UpdatedAt = time.Now()
	return tx.Save(&position).Error
}

// TotalSupply sums every position in an instrument.
func (d *Database) TotalSupply(instrumentID string) (uint64, error) {
	var positions []Position
	if err := d.db.Where("instrument_id = ?", instrumentID).Find(&positions).Error; err != nil {
		return 0, err
	}
	var total uint64
	for _, p := range positions {
		total += p.Amount
	}
	return total, nil
}
