package accesscontrol

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateGrant(role, holder string) error {
	var existing RoleGrant
	err := d.db.Where("role = ? AND holder = ?", role, holder).First(&existing).Error
	if err == nil {
		// Already granted, nothing to do.
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return d.db.Create(&RoleGrant{Role: role, Holder: holder}).Error
}

func (d *Database) DeleteGrant(role, holder string) error {
	// Hard delete: a soft-deleted row would keep occupying the role+holder
	// unique index and block a later re-grant.
	return d.db.Unscoped().Where("role = ? AND holder = ?", role, holder).
		Delete(&RoleGrant{}).Error
}

func (d *Database) GrantExists(role, holder string) (bool, error) {
	var count int64
	if err := d.db.Model(&RoleGrant{}).
		Where("role = ? AND holder = ?", role, holder).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *Database) CountHolders(role string) (int64, error) {
	var count int64
	err := d.db.Model(&RoleGrant{}).Where("role = ?", role).Count(&count).Error
	return count, err
}
