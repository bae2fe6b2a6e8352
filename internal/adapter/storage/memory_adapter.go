package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rl1809/warehouse-inventory/internal/core/domain"
	"github.com/rl1809/warehouse-inventory/internal/port"
)

// MemoryAdapter keeps everything in process. Mutations are serialized by a
// single lock and callers only ever see copies.
type MemoryAdapter struct {
	mu         sync.RWMutex
	records    map[int64]domain.InventoryRecord
	history    map[int64][]domain.TransactionRecord
	associates map[int64]domain.Associate
	byName     map[string]int64
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		records:    make(map[int64]domain.InventoryRecord),
		history:    make(map[int64][]domain.TransactionRecord),
		associates: make(map[int64]domain.Associate),
		byName:     make(map[string]int64),
	}
}

func (m *MemoryAdapter) CreateRecord(ctx context.Context, record domain.InventoryRecord, entry domain.TransactionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.RecordID]; exists {
		return errDuplicateKey("inventory_records", record.RecordID)
	}
	m.records[record.RecordID] = record.Clone()
	m.history[record.RecordID] = append(m.history[record.RecordID], entry.Clone())
	return nil
}

func (m *MemoryAdapter) MutateRecord(ctx context.Context, recordID int64, fn port.MutateFunc) (*domain.InventoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.records[recordID]
	if !ok {
		return nil, &domain.NotFoundError{ID: recordID}
	}

	working := stored.Clone()
	entry, err := fn(&working)
	if err != nil {
		return nil, err
	}

	working.Version = stored.Version + 1
	m.records[recordID] = working
	m.history[recordID] = append(m.history[recordID], entry.Clone())

	result := working.Clone()
	return &result, nil
}

func (m *MemoryAdapter) GetRecord(ctx context.Context, recordID int64) (*domain.InventoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.records[recordID]
	if !ok {
		return nil, &domain.NotFoundError{ID: recordID}
	}
	record := stored.Clone()
	return &record, nil
}

func (m *MemoryAdapter) FindRecords(ctx context.Context, criteria domain.Criteria) ([]domain.InventoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := []domain.InventoryRecord{}
	for _, stored := range m.records {
		if criteria.Matches(&stored) {
			records = append(records, stored.Clone())
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].RecordID < records[j].RecordID
	})
	return records, nil
}

func (m *MemoryAdapter) History(ctx context.Context, recordID int64) ([]domain.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.records[recordID]; !ok {
		return nil, &domain.NotFoundError{ID: recordID}
	}
	appended := m.history[recordID]
	entries := make([]domain.TransactionRecord, 0, len(appended))
	for _, entry := range appended {
		entries = append(entries, entry.Clone())
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].ID > entries[j].ID
	})
	return entries, nil
}

func (m *MemoryAdapter) CreateAssociate(ctx context.Context, associate domain.Associate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[associate.Name]; exists {
		return errDuplicateKey("associates.name", associate.Name)
	}
	if _, exists := m.associates[associate.ID]; exists {
		return errDuplicateKey("associates", associate.ID)
	}
	m.associates[associate.ID] = associate
	m.byName[associate.Name] = associate.ID
	return nil
}

func (m *MemoryAdapter) GetAssociateByName(ctx context.Context, name string) (*domain.Associate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[name]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "associate", Key: name}
	}
	associate := m.associates[id]
	return &associate, nil
}

func (m *MemoryAdapter) GetAssociateByID(ctx context.Context, id int64) (*domain.Associate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	associate, ok := m.associates[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "associate", ID: id}
	}
	return &associate, nil
}

func errDuplicateKey(table string, key any) error {
	return fmt.Errorf("duplicate key %v in %s", key, table)
}
