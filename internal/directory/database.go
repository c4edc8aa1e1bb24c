package directory

import (
	"errors"
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

// UpsertInstitution writes the address for an institution id, overwriting
// any prior mapping. Last write wins.
func (d *Database) UpsertInstitution(institutionID uint64, address string) error {
	var existing Institution
	err := d.db.Where("institution_id = ?", institutionID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d.db.Create(&Institution{
			InstitutionID: institutionID,
			Address:       address,
		}).Error
	}
	if err != nil {
		return err
	}

	existing.Address = address
	existing.UpdatedAt = time.Now()
	return d.db.Save(&existing).Error
}

func (d *Database) GetInstitution(institutionID uint64) (*Institution, error) {
	var institution Institution
	if err := d.db.Where("institution_id = ?", institutionID).First(&institution).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrUnknownInstitution
		}
		return nil, err
	}
	return &institution, nil
}
