package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base model with UUID primary key and timestamps
type Base struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Record exposes the embedded Base so generic helpers can carry identity
// across an upsert.
func (b *Base) Record() *Base { return b }

// Inventory marks a row as produced by discovery.
type Inventory struct {
	Discovered bool      `gorm:"not null" json:"discovered"`
	LastSynced time.Time `gorm:"index" json:"last_synced"`
}

func (i *Inventory) Touch(now time.Time) {
	i.Discovered = true
	i.LastSynced = now
}

// Discoverable is implemented by every catalog entity a collector upserts.
// NaturalKey maps column names to the provider-assigned identity within the
// entity's scope; those columns carry a composite unique index.
type Discoverable interface {
	Record() *Base
	Touch(now time.Time)
	NaturalKey() map[string]any
}

// JSON encodes v for a datatypes.JSON column. Nil collections are stored as
// JSON null.
func JSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}
