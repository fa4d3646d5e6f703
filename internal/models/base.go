package models

import (
	"strconv"
	"time"
)

// BaseModel defines the common fields for all models.
// Records in this service are never soft-deleted: requests are kept as history
// and users are only removed by administrative tooling outside the service.
type BaseModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IDString returns the ID as a string.
func (b *BaseModel) IDString() string {
	return strconv.FormatUint(uint64(b.ID), 10)
}
