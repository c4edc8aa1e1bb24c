package currency

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

func (d *Database) GetBalance(tx *gorm.DB, holder string) (uint64, error) {
	var account Account
	err := tx.Where("holder = ?", holder).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (d *Database) Credit(tx *gorm.DB, holder string, amount uint64) error {
	var account Account
	err := tx.Where("holder = ?", holder).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&Account{Holder: holder, Balance: amount}).Error
	}
	if err != nil {
		return err
	}

	if account.Balance > math.MaxUint64-amount {
		return types.ErrNumericOverflow
	}
	account.Balance += amount
	account.UpdatedAt = time.Now()
	return tx.Save(&account).Error
}

func (d *Database) Debit(tx *gorm.DB, holder string, amount uint64) error {
	var account Account
	err := tx.Where("holder = ?", holder).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ErrInsufficientBalance
	}
	if err != nil {
		return err
	}
	if account.Balance < amount {
		return types.ErrInsufficientBalance
	}

	account.Balance -= amount
	account.UpdatedAt = time.Now()
	return tx.Save(&account).Error
}

// SetAllowance writes the absolute allowance for an (owner, spender) pair.
func (d *Database) SetAllowance(owner, spender string, amount uint64) error {
	var allowance Allowance
	err := d.db.Where("owner = ? AND spender = ?", owner, spender).First(&allowance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d.db.Create(&Allowance{Owner: owner, Spender: spender, Amount: amount}).Error
	}
	if err != nil {
		return err
	}

	allowance.Amount = amount
	allowance.UpdatedAt = time.Now()
	return d.db.Save(&allowance).Error
}

func (d *Database) GetAllowance(tx *gorm.DB, owner, spender string) (uint64, error) {
	var allowance Allowance
	err := tx.Where("owner = ? AND spender = ?", owner, spender).First(&allowance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return allowance.Amount, nil
}

// ConsumeAllowance decrements an allowance by the transferred amount.
// Never drops below zero and never re-increases.
func (d *Database) ConsumeAllowance(tx *gorm.DB, owner, spender string, amount uint64) error {
	var allowance Allowance
	err := tx.Where("owner = ? AND spender = ?", owner, spender).First(&allowance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ErrInsufficientAllowance
	}
	if err != nil {
		return err
	}
	if allowance.Amount < amount {
		return types.ErrInsufficientAllowance
	}

	allowance.Amount -= amount
	allowance.UpdatedAt = time.Now()
	return tx.Save(&allowance).Error
}

// TotalSupply sums all account balances.
func (d *Database) TotalSupply() (uint64, error) {
	var accounts []Account
	if err := d.db.Find(&accounts).Error; err != nil {
		return 0, err
	}
	var total uint64
	for _, a := range accounts {
		total += a.Balance
	}
	return total, nil
}
