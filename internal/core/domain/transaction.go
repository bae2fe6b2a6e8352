package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type Action int

const (
	ActionCreated Action = iota + 1
	ActionDeleted
	ActionMoveLocation
	ActionEditQuantity
)

var actionNames = map[Action]string{
	ActionCreated:      "CREATED",
	ActionDeleted:      "DELETED",
	ActionMoveLocation: "MOVE_LOCATION",
	ActionEditQuantity: "EDIT_QUANTITY",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

func (a Action) MarshalJSON() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("marshal action: %s", a)
	}
	return json.Marshal(a.String())
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// TransactionRecord documents a single transition of an inventory record.
// Entries are append-only.
type TransactionRecord struct {
	ID                int64     `json:"id,string"`
	InventoryRecordID int64     `json:"inventory_record_id,string"`
	Action            Action    `json:"action"`
	Timestamp         time.Time `json:"timestamp"`
	PerformedBy       int64     `json:"performed_by,string"`
	PerformedByName   string    `json:"performed_by_name"`
	PreviousQuantity  *int      `json:"previous_quantity,omitempty"`
	NewQuantity       *int      `json:"new_quantity,omitempty"`
	PreviousLocation  *string   `json:"previous_location,omitempty"`
	NewLocation       *string   `json:"new_location,omitempty"`
}

// Validate checks that only the fields belonging to the entry's action are set.
func (t *TransactionRecord) Validate() error {
	if t.PerformedBy == 0 {
		return &ValidationError{Field: "performed_by", Reason: "is required"}
	}
	switch t.Action {
	case ActionCreated:
		if t.NewQuantity == nil || t.NewLocation == nil || t.PreviousQuantity != nil || t.PreviousLocation != nil {
			return fmt.Errorf("%s entry must carry only new quantity and location", t.Action)
		}
	case ActionEditQuantity:
		if t.PreviousQuantity == nil || t.NewQuantity == nil || t.PreviousLocation != nil || t.NewLocation != nil {
			return fmt.Errorf("%s entry must carry previous and new quantity only", t.Action)
		}
	case ActionMoveLocation:
		if t.PreviousLocation == nil || t.NewLocation == nil || t.PreviousQuantity != nil || t.NewQuantity != nil {
			return fmt.Errorf("%s entry must carry previous and new location only", t.Action)
		}
	case ActionDeleted:
		if t.PreviousQuantity != nil || t.NewQuantity != nil || t.PreviousLocation != nil || t.NewLocation != nil {
			return fmt.Errorf("%s entry must not carry quantity or location", t.Action)
		}
	default:
		return fmt.Errorf("unknown action %s", t.Action)
	}
	return nil
}

// Clone returns a copy that shares no pointers with the original.
func (t TransactionRecord) Clone() TransactionRecord {
	if t.PreviousQuantity != nil {
		t.PreviousQuantity = IntPtr(*t.PreviousQuantity)
	}
	if t.NewQuantity != nil {
		t.NewQuantity = IntPtr(*t.NewQuantity)
	}
	if t.PreviousLocation != nil {
		t.PreviousLocation = StringPtr(*t.PreviousLocation)
	}
	if t.NewLocation != nil {
		t.NewLocation = StringPtr(*t.NewLocation)
	}
	return t
}

func IntPtr(v int) *int { return &v }

func StringPtr(v string) *string { return &v }
