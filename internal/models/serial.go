package models

import "time"

// SerialNumber is a single-use redemption code
type SerialNumber struct {
	ID        uint      `gorm:"column:id;primaryKey" json:"-"`
	Serial    string    `gorm:"column:serial;size:64;uniqueIndex;not null" json:"serial"`
	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
}

func (SerialNumber) TableName() string {
	return "serial_numbers"
}
