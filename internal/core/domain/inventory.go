package domain

import (
	"math"
	"time"
)

const (
	// DefaultStorageLocation marks a record that has not been placed yet.
	DefaultStorageLocation = "HOLD"
	// UncountedQuantity marks a pallet that has not been counted yet.
	UncountedQuantity = -100

	MaxLabelIDLength            = 100
	MaxStorageLocationLength    = 4
	MaxProductDescriptionLength = 200

	// Quantities are stored in 32-bit integer columns.
	MinQuantity = math.MinInt32
	MaxQuantity = math.MaxInt32

	// RetentionWindow is how long a soft-deleted record is kept before it
	// becomes eligible for purging. Nothing in this module purges.
	RetentionWindow = 30 * 24 * time.Hour
)

type InventoryRecord struct {
	RecordID             int64      `json:"record_id,string"`
	LabelID              string     `json:"label_id"`
	StorageLocation      string     `json:"storage_location"`
	QuantityOnPallet     int        `json:"quantity_on_pallet"`
	ProductDescription   string     `json:"product_description"`
	ScheduledForDeletion *time.Time `json:"scheduled_for_deletion"`
	LatestTransactionID  int64      `json:"latest_transaction_id,string"`
	Version              int        `json:"-"` // optimistic locking
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (r *InventoryRecord) IsScheduledForDeletion() bool {
	return r.ScheduledForDeletion != nil
}

func (r *InventoryRecord) IsCounted() bool {
	return r.QuantityOnPallet != UncountedQuantity
}

// PurgeAfter reports when a soft-deleted record may be physically removed.
func (r *InventoryRecord) PurgeAfter() (time.Time, bool) {
	if r.ScheduledForDeletion == nil {
		return time.Time{}, false
	}
	return r.ScheduledForDeletion.Add(RetentionWindow), true
}

// Clone returns a deep copy so stored state is never aliased by callers.
func (r InventoryRecord) Clone() InventoryRecord {
	if r.ScheduledForDeletion != nil {
		at := *r.ScheduledForDeletion
		r.ScheduledForDeletion = &at
	}
	return r
}
