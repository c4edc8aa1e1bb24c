package instrument

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

func (d *Database) CreateInstrument(instrument *Instrument) error {
	return d.db.Create(instrument).Error
}

// GetInstrument returns the stored instrument for an id, or nil when the
// id has never been registered.
func (d *Database) GetInstrument(instrumentID string) (*Instrument, error) {
	var instrument Instrument
	err := d.db.Where("instrument_id = ?", instrumentID).First(&instrument).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &instrument, nil
}
