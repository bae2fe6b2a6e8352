package domain

import "strings"

// Criteria selects inventory records. Nil fields do not filter.
type Criteria struct {
	RecordID                 *int64
	LabelID                  *string
	StorageLocation          *string
	QuantityOnPallet         *int
	ProductDescription       *string
	OnlyScheduledForDeletion bool
}

func (c Criteria) IsEmpty() bool {
	return c.RecordID == nil && c.LabelID == nil && c.StorageLocation == nil &&
		c.QuantityOnPallet == nil && c.ProductDescription == nil && !c.OnlyScheduledForDeletion
}

// Matches evaluates the criteria in memory. SQL adapters translate the same
// fields into a WHERE clause instead.
func (c Criteria) Matches(r *InventoryRecord) bool {
	if c.RecordID != nil && r.RecordID != *c.RecordID {
		return false
	}
	if c.LabelID != nil && !containsFold(r.LabelID, *c.LabelID) {
		return false
	}
	if c.StorageLocation != nil && !containsFold(r.StorageLocation, *c.StorageLocation) {
		return false
	}
	if c.QuantityOnPallet != nil && r.QuantityOnPallet != *c.QuantityOnPallet {
		return false
	}
	if c.ProductDescription != nil && !containsFold(r.ProductDescription, *c.ProductDescription) {
		return false
	}
	if c.OnlyScheduledForDeletion && r.ScheduledForDeletion == nil {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
