package port

import (
	"context"

	"github.com/rl1809/warehouse-inventory/internal/core/domain"
)

// MutateFunc validates and applies a transition to a locked record. The
// returned entry is appended in the same unit of work; returning an error
// aborts the transition with nothing written.
type MutateFunc func(record *domain.InventoryRecord) (*domain.TransactionRecord, error)

type InventoryRepository interface {
	// CreateRecord persists a new record and its Created entry atomically
	CreateRecord(ctx context.Context, record domain.InventoryRecord, entry domain.TransactionRecord) error

	// MutateRecord serializes fn against other mutations of the same record
	// and commits the updated record together with the entry fn returns
	MutateRecord(ctx context.Context, recordID int64, fn MutateFunc) (*domain.InventoryRecord, error)

	// GetRecord retrieves a record by ID, NotFoundError if absent
	GetRecord(ctx context.Context, recordID int64) (*domain.InventoryRecord, error)

	// FindRecords returns matching records ordered by record ID ascending
	FindRecords(ctx context.Context, criteria domain.Criteria) ([]domain.InventoryRecord, error)

	// History returns a record's entries, newest first
	History(ctx context.Context, recordID int64) ([]domain.TransactionRecord, error)
}

type AssociateRepository interface {
	// CreateAssociate stores a new associate; names are unique
	CreateAssociate(ctx context.Context, associate domain.Associate) error

	// GetAssociateByName returns NotFoundError if no associate has the name
	GetAssociateByName(ctx context.Context, name string) (*domain.Associate, error)

	// GetAssociateByID returns NotFoundError if the associate does not exist
	GetAssociateByID(ctx context.Context, id int64) (*domain.Associate, error)
}
